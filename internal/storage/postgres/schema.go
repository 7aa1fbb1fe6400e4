// Package postgres provides the PostgreSQL implementation of the storage
// interfaces. When the pgvector extension is installed, nearest-neighbour
// queries run against an indexed vector column instead of a client-side
// scan, which is the recommended deployment for larger datasets.
package postgres

// Schema contains the SQL statements creating the Engram schema.
//
// Foreign-key constraints are intentionally absent: relationship inserts may
// reference endpoints that do not exist, and the delete cascade is performed
// explicitly by Store.DeleteMemory in a transaction (mirroring the SQLite
// backend).
const Schema = `
-- Memories table: core content storage
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    metadata JSONB DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Relationships table: directed, typed, weighted edges between memories
CREATE TABLE IF NOT EXISTS relationships (
    id TEXT PRIMARY KEY,
    from_memory_id TEXT NOT NULL,
    to_memory_id TEXT NOT NULL,
    relationship_type TEXT NOT NULL,
    strength REAL DEFAULT 1.0,
    metadata JSONB DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_memory_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_memory_id);
CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships(relationship_type);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
`

// vectorSchema creates the embedding index table. It is only applied when
// the pgvector extension is available; the %d placeholder is the deployment
// embedding dimension.
const vectorSchema = `
CREATE TABLE IF NOT EXISTS embeddings (
    memory_id TEXT PRIMARY KEY,
    embedding vector(%d) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
