// Package sqlite provides the SQLite implementation of the storage
// interfaces. It is the default backend: a single embedded database file in
// WAL mode, with the memory/relationship/embedding cascade applied
// explicitly on delete.
package sqlite

// Schema contains the SQL statements creating the Engram schema.
//
// The column layout is part of the on-disk compatibility contract: metadata
// is stored as JSON text defaulting to '{}' and embeddings as raw
// little-endian float64 bytes. The ON DELETE CASCADE clauses document the
// referential contract; because foreign-key enforcement is left at SQLite's
// default (off) to permit dangling inserts, the actual cascade is performed
// by Store.DeleteMemory in a transaction.
const Schema = `
-- Memories table: core content storage
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    metadata TEXT DEFAULT '{}',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Relationships table: directed, typed, weighted edges between memories
CREATE TABLE IF NOT EXISTS relationships (
    id TEXT PRIMARY KEY,
    from_memory_id TEXT NOT NULL,
    to_memory_id TEXT NOT NULL,
    relationship_type TEXT NOT NULL,
    strength REAL DEFAULT 1.0,
    metadata TEXT DEFAULT '{}',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (from_memory_id) REFERENCES memories(id) ON DELETE CASCADE,
    FOREIGN KEY (to_memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

-- Embedding index: optional vector side table, 1:1 or 0:1 with memories.
-- The vector is a fixed-length blob of little-endian float64 values.
CREATE TABLE IF NOT EXISTS embeddings (
    memory_id TEXT PRIMARY KEY,
    vector BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

-- Indexes for relationship queries and traversal
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_memory_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_memory_id);
CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships(relationship_type);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
`
