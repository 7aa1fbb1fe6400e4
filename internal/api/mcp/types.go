// Package mcp implements the Model Context Protocol (MCP) server for Engram.
// It provides JSON-RPC 2.0 based tools for storing, searching, and linking
// memories.
package mcp

import "github.com/engramhq/engram/pkg/types"

// AddMemoryArgs contains arguments for the add_memory tool.
type AddMemoryArgs struct {
	Content  string                 `json:"content"`            // Memory content (required)
	Metadata map[string]interface{} `json:"metadata,omitempty"` // Arbitrary metadata
}

// AddMemoryResult contains the result of adding a memory.
type AddMemoryResult struct {
	Success bool          `json:"success"`
	Memory  *types.Memory `json:"memory,omitempty"` // The stored memory
	Error   string        `json:"error,omitempty"`  // Error message on failure
}

// GetMemoryArgs contains arguments for the get_memory tool.
type GetMemoryArgs struct {
	ID string `json:"id"` // Memory ID (required)
}

// GetMemoryResult contains the result of retrieving a memory.
type GetMemoryResult struct {
	Success bool          `json:"success"`
	Found   bool          `json:"found"`            // Whether the memory exists
	Memory  *types.Memory `json:"memory,omitempty"` // The memory when found
	Error   string        `json:"error,omitempty"`
}

// UpdateMemoryArgs contains arguments for the update_memory tool.
type UpdateMemoryArgs struct {
	// ID is the memory ID to update (required).
	ID string `json:"id"`
	// Content replaces the memory content when non-empty and regenerates
	// the embedding.
	Content string `json:"content,omitempty"`
	// Metadata replaces the metadata map wholesale when non-nil.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateMemoryResult contains the result of updating a memory.
type UpdateMemoryResult struct {
	Success bool   `json:"success"`
	Updated bool   `json:"updated"` // False when the memory does not exist
	Error   string `json:"error,omitempty"`
}

// DeleteMemoryArgs contains arguments for the delete_memory tool.
type DeleteMemoryArgs struct {
	ID string `json:"id"` // Memory ID to delete (required)
}

// DeleteMemoryResult contains the result of deleting a memory.
type DeleteMemoryResult struct {
	Success bool   `json:"success"`
	Deleted bool   `json:"deleted"` // False when the memory does not exist
	Error   string `json:"error,omitempty"`
}

// SearchMemoriesArgs contains arguments for the search_memories tool.
type SearchMemoriesArgs struct {
	Query     string  `json:"query"`               // Search query (required)
	Limit     int     `json:"limit,omitempty"`     // Max results (default 10)
	Threshold float64 `json:"threshold,omitempty"` // Similarity floor in (0,1] (default 0.5)
}

// MemoryHit is a single search match. Similarity is set only when the vector
// path produced the result; substring-fallback matches carry no score.
type MemoryHit struct {
	types.Memory
	Similarity *float64 `json:"similarity,omitempty"`
}

// SearchMemoriesResult contains the result of a search.
type SearchMemoriesResult struct {
	Success  bool        `json:"success"`
	Memories []MemoryHit `json:"memories"`
	Total    int         `json:"total"`
	Error    string      `json:"error,omitempty"`
}

// AddRelationshipArgs contains arguments for the add_relationship tool.
type AddRelationshipArgs struct {
	FromMemoryID     string                 `json:"from_memory_id"`    // Source memory ID (required)
	ToMemoryID       string                 `json:"to_memory_id"`      // Target memory ID (required)
	RelationshipType string                 `json:"relationship_type"` // Free-form type label (required)
	Strength         *float64               `json:"strength,omitempty"` // Edge weight, conventionally [0,1] (default 1.0; explicit 0 kept)
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// AddRelationshipResult contains the result of adding a relationship.
type AddRelationshipResult struct {
	Success      bool                `json:"success"`
	Relationship *types.Relationship `json:"relationship,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// GetRelationshipsArgs contains arguments for the get_relationships tool.
type GetRelationshipsArgs struct {
	MemoryID         string  `json:"memory_id,omitempty"`         // Endpoint filter; empty matches all edges
	RelationshipType string  `json:"relationship_type,omitempty"` // Exact type match
	Direction        string  `json:"direction,omitempty"`         // from, to, or both (default both)
	MinStrength      float64 `json:"min_strength,omitempty"`      // Inclusive strength floor (default 0)
	Limit            int     `json:"limit,omitempty"`             // Max results (default 100)
}

// GetRelationshipsResult contains the result of querying relationships.
type GetRelationshipsResult struct {
	Success       bool                 `json:"success"`
	Relationships []types.Relationship `json:"relationships"`
	Total         int                  `json:"total"`
	Error         string               `json:"error,omitempty"`
}

// UpdateRelationshipArgs contains arguments for the update_relationship tool.
type UpdateRelationshipArgs struct {
	// ID is the relationship ID to update (required).
	ID string `json:"id"`
	// Strength replaces the edge weight when non-nil.
	Strength *float64 `json:"strength,omitempty"`
	// Metadata replaces the metadata map wholesale when non-nil.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateRelationshipResult contains the result of updating a relationship.
type UpdateRelationshipResult struct {
	Success bool   `json:"success"`
	Updated bool   `json:"updated"` // False when the relationship does not exist
	Error   string `json:"error,omitempty"`
}

// DeleteRelationshipArgs contains arguments for the delete_relationship tool.
type DeleteRelationshipArgs struct {
	ID string `json:"id"` // Relationship ID to delete (required)
}

// DeleteRelationshipResult contains the result of deleting a relationship.
type DeleteRelationshipResult struct {
	Success bool   `json:"success"`
	Deleted bool   `json:"deleted"` // False when the relationship does not exist
	Error   string `json:"error,omitempty"`
}

// GetConnectedMemoriesArgs contains arguments for the get_connected_memories tool.
type GetConnectedMemoriesArgs struct {
	MemoryID string `json:"memory_id"`           // Start memory ID (required)
	MaxDepth int    `json:"max_depth,omitempty"` // Hop limit (default 2)
}

// ConnectedMemoryEntry is a memory reached by graph traversal, with its hop
// distance from the start memory.
type ConnectedMemoryEntry struct {
	types.Memory
	Depth int `json:"depth"`
}

// GetConnectedMemoriesResult contains the result of a graph traversal.
type GetConnectedMemoriesResult struct {
	Success  bool                   `json:"success"`
	Memories []ConnectedMemoryEntry `json:"memories"`
	Total    int                    `json:"total"`
	Error    string                 `json:"error,omitempty"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // Must be "2.0"
	Method  string      `json:"method"`  // Method name
	Params  interface{} `json:"params"`  // Method parameters
	ID      interface{} `json:"id"`      // Request ID (string, number, or null)
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`          // Must be "2.0"
	Result  interface{}   `json:"result,omitempty"` // Result (if successful)
	Error   *JSONRPCError `json:"error,omitempty"`  // Error (if failed)
	ID      interface{}   `json:"id"`               // Request ID
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error code
	Message string      `json:"message"`        // Error message
	Data    interface{} `json:"data,omitempty"` // Additional error data
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// ---------------------------------------------------------------------------
// Standard MCP protocol types (initialize / tools/list / tools/call)
// ---------------------------------------------------------------------------

// MCPInitializeParams holds the parameters sent by an MCP client in the
// initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo          `json:"clientInfo"`
}

// MCPClientInfo identifies the connecting MCP client.
type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via the MCP tools/list endpoint.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text" for now
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
