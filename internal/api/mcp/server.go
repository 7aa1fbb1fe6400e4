package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/engramhq/engram/internal/memory"
	"github.com/engramhq/engram/internal/storage"
	"github.com/engramhq/engram/pkg/types"
)

// Server implements the Model Context Protocol (MCP) for Engram.
// It provides JSON-RPC 2.0 based tools for AI assistants to interact
// with the memory graph.
type Server struct {
	service *memory.Service
	logger  *log.Logger
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger injects a logger into the Server. The default logs to stderr,
// which keeps stdout clean for JSON-RPC framing on the stdio transport.
func WithLogger(logger *log.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP server instance around a memory service.
func NewServer(service *memory.Service, opts ...ServerOption) *Server {
	s := &Server{
		service: service,
		logger:  log.New(os.Stderr, "engram-mcp: ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleRequest processes a JSON-RPC 2.0 request and returns a response.
// This is the main entry point for MCP protocol handling.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err)
	}

	// Validate JSON-RPC version
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	// Route to appropriate handler
	var result interface{}
	var err error

	switch req.Method {
	// Standard MCP protocol methods
	case "initialize":
		result, err = s.handleInitialize(ctx, req.Params)
	case "initialized":
		// Notification — no response body required; return empty object.
		result = map[string]interface{}{}
	case "tools/list":
		result, err = s.handleToolsList(ctx, req.Params)
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)

	// Native JSON-RPC methods (kept for direct callers that skip the MCP envelope)
	case "add_memory":
		result, err = s.handleAddMemory(ctx, req.Params)
	case "get_memory":
		result, err = s.handleGetMemory(ctx, req.Params)
	case "update_memory":
		result, err = s.handleUpdateMemory(ctx, req.Params)
	case "delete_memory":
		result, err = s.handleDeleteMemory(ctx, req.Params)
	case "search_memories":
		result, err = s.handleSearchMemories(ctx, req.Params)
	case "add_relationship":
		result, err = s.handleAddRelationship(ctx, req.Params)
	case "get_relationships":
		result, err = s.handleGetRelationships(ctx, req.Params)
	case "update_relationship":
		result, err = s.handleUpdateRelationship(ctx, req.Params)
	case "delete_relationship":
		result, err = s.handleDeleteRelationship(ctx, req.Params)
	case "get_connected_memories":
		result, err = s.handleGetConnectedMemories(ctx, req.Params)
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	if err != nil {
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}

	return s.successResponse(req.ID, result)
}

// AddMemory stores a new memory with an embedding. Provider failure fails
// the call; a missing vector index does not (the memory is still stored and
// findable via substring search).
func (s *Server) AddMemory(ctx context.Context, args AddMemoryArgs) *AddMemoryResult {
	if args.Content == "" {
		return &AddMemoryResult{Error: "content is required"}
	}

	m, err := s.service.AddMemory(ctx, args.Content, args.Metadata)
	if err != nil {
		return &AddMemoryResult{Error: err.Error()}
	}

	return &AddMemoryResult{Success: true, Memory: m}
}

// GetMemory retrieves a memory by ID. A missing memory is not an error:
// the result reports found=false.
func (s *Server) GetMemory(ctx context.Context, args GetMemoryArgs) *GetMemoryResult {
	if args.ID == "" {
		return &GetMemoryResult{Error: "id is required"}
	}

	m, err := s.service.GetMemory(ctx, args.ID)
	if err != nil {
		return &GetMemoryResult{Error: err.Error()}
	}
	if m == nil {
		return &GetMemoryResult{Success: true, Found: false}
	}

	return &GetMemoryResult{Success: true, Found: true, Memory: m}
}

// UpdateMemory applies a partial update. Empty content means "leave content
// alone"; a nil metadata map means "leave metadata alone"; a non-nil map
// replaces metadata wholesale.
func (s *Server) UpdateMemory(ctx context.Context, args UpdateMemoryArgs) *UpdateMemoryResult {
	if args.ID == "" {
		return &UpdateMemoryResult{Error: "id is required"}
	}

	var upd storage.MemoryUpdate
	if args.Content != "" {
		upd.Content = &args.Content
	}
	if args.Metadata != nil {
		upd.Metadata = args.Metadata
	}

	updated, err := s.service.UpdateMemory(ctx, args.ID, upd)
	if err != nil {
		return &UpdateMemoryResult{Error: err.Error()}
	}

	return &UpdateMemoryResult{Success: true, Updated: updated}
}

// DeleteMemory removes a memory and all relationships touching it.
func (s *Server) DeleteMemory(ctx context.Context, args DeleteMemoryArgs) *DeleteMemoryResult {
	if args.ID == "" {
		return &DeleteMemoryResult{Error: "id is required"}
	}

	deleted, err := s.service.DeleteMemory(ctx, args.ID)
	if err != nil {
		return &DeleteMemoryResult{Error: err.Error()}
	}

	return &DeleteMemoryResult{Success: true, Deleted: deleted}
}

// SearchMemories runs semantic search with substring fallback.
func (s *Server) SearchMemories(ctx context.Context, args SearchMemoriesArgs) *SearchMemoriesResult {
	if args.Query == "" {
		return &SearchMemoriesResult{Error: "query is required"}
	}

	results, err := s.service.SearchMemories(ctx, args.Query, args.Limit, args.Threshold)
	if err != nil {
		return &SearchMemoriesResult{Error: err.Error()}
	}

	hits := make([]MemoryHit, len(results))
	for i, r := range results {
		hits[i] = MemoryHit{Memory: r.Memory, Similarity: r.Similarity}
	}

	return &SearchMemoriesResult{Success: true, Memories: hits, Total: len(hits)}
}

// AddRelationship creates a typed, weighted edge between two memory IDs.
func (s *Server) AddRelationship(ctx context.Context, args AddRelationshipArgs) *AddRelationshipResult {
	if args.FromMemoryID == "" || args.ToMemoryID == "" {
		return &AddRelationshipResult{Error: "from_memory_id and to_memory_id are required"}
	}
	if args.RelationshipType == "" {
		return &AddRelationshipResult{Error: "relationship_type is required"}
	}

	r, err := s.service.AddRelationship(ctx, args.FromMemoryID, args.ToMemoryID, args.RelationshipType, args.Strength, args.Metadata)
	if err != nil {
		return &AddRelationshipResult{Error: err.Error()}
	}

	return &AddRelationshipResult{Success: true, Relationship: r}
}

// GetRelationships queries edges matching the filter. All filter fields are
// optional; omitting memory_id queries edges regardless of endpoint.
func (s *Server) GetRelationships(ctx context.Context, args GetRelationshipsArgs) *GetRelationshipsResult {
	rels, err := s.service.GetRelationships(ctx, storage.RelationshipFilter{
		MemoryID:    args.MemoryID,
		Type:        args.RelationshipType,
		Direction:   types.RelationshipDirection(args.Direction),
		MinStrength: args.MinStrength,
		Limit:       args.Limit,
	})
	if err != nil {
		return &GetRelationshipsResult{Error: err.Error()}
	}
	if rels == nil {
		rels = []types.Relationship{}
	}

	return &GetRelationshipsResult{Success: true, Relationships: rels, Total: len(rels)}
}

// UpdateRelationship applies a partial update to an edge.
func (s *Server) UpdateRelationship(ctx context.Context, args UpdateRelationshipArgs) *UpdateRelationshipResult {
	if args.ID == "" {
		return &UpdateRelationshipResult{Error: "id is required"}
	}

	updated, err := s.service.UpdateRelationship(ctx, args.ID, storage.RelationshipUpdate{
		Strength: args.Strength,
		Metadata: args.Metadata,
	})
	if err != nil {
		return &UpdateRelationshipResult{Error: err.Error()}
	}

	return &UpdateRelationshipResult{Success: true, Updated: updated}
}

// DeleteRelationship removes an edge.
func (s *Server) DeleteRelationship(ctx context.Context, args DeleteRelationshipArgs) *DeleteRelationshipResult {
	if args.ID == "" {
		return &DeleteRelationshipResult{Error: "id is required"}
	}

	deleted, err := s.service.DeleteRelationship(ctx, args.ID)
	if err != nil {
		return &DeleteRelationshipResult{Error: err.Error()}
	}

	return &DeleteRelationshipResult{Success: true, Deleted: deleted}
}

// GetConnectedMemories walks the relationship graph breadth-first from a
// start memory.
func (s *Server) GetConnectedMemories(ctx context.Context, args GetConnectedMemoriesArgs) *GetConnectedMemoriesResult {
	if args.MemoryID == "" {
		return &GetConnectedMemoriesResult{Error: "memory_id is required"}
	}

	connected, err := s.service.GetConnectedMemories(ctx, args.MemoryID, args.MaxDepth)
	if err != nil {
		return &GetConnectedMemoriesResult{Error: err.Error()}
	}

	entries := make([]ConnectedMemoryEntry, len(connected))
	for i, c := range connected {
		entries[i] = ConnectedMemoryEntry{Memory: c.Memory, Depth: c.Depth}
	}

	return &GetConnectedMemoriesResult{Success: true, Memories: entries, Total: len(entries)}
}

// ---------------------------------------------------------------------------
// JSON-RPC handler wrappers
// ---------------------------------------------------------------------------

func (s *Server) handleAddMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args AddMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.AddMemory(ctx, args), nil
}

func (s *Server) handleGetMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args GetMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.GetMemory(ctx, args), nil
}

func (s *Server) handleUpdateMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args UpdateMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.UpdateMemory(ctx, args), nil
}

func (s *Server) handleDeleteMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args DeleteMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.DeleteMemory(ctx, args), nil
}

func (s *Server) handleSearchMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args SearchMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.SearchMemories(ctx, args), nil
}

func (s *Server) handleAddRelationship(ctx context.Context, params interface{}) (interface{}, error) {
	var args AddRelationshipArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.AddRelationship(ctx, args), nil
}

func (s *Server) handleGetRelationships(ctx context.Context, params interface{}) (interface{}, error) {
	var args GetRelationshipsArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.GetRelationships(ctx, args), nil
}

func (s *Server) handleUpdateRelationship(ctx context.Context, params interface{}) (interface{}, error) {
	var args UpdateRelationshipArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.UpdateRelationship(ctx, args), nil
}

func (s *Server) handleDeleteRelationship(ctx context.Context, params interface{}) (interface{}, error) {
	var args DeleteRelationshipArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.DeleteRelationship(ctx, args), nil
}

func (s *Server) handleGetConnectedMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args GetConnectedMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.GetConnectedMemories(ctx, args), nil
}

// ---------------------------------------------------------------------------
// Standard MCP protocol handlers
// ---------------------------------------------------------------------------

// handleInitialize handles the MCP initialize handshake.
func (s *Server) handleInitialize(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities: MCPServerCapabilities{
			Tools: &MCPToolsCapability{},
		},
		ServerInfo: MCPServerInfo{
			Name:    "engram",
			Version: "1.0.0",
		},
	}, nil
}

// handleToolsList returns the list of all tools this server exposes.
func (s *Server) handleToolsList(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPToolsListResult{Tools: s.buildToolsList()}, nil
}

// handleToolsCall dispatches a tools/call request to the appropriate handler
// and wraps the result in the MCP content envelope.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	// Re-marshal arguments so they can be passed to the native handlers which
	// expect an interface{} produced by JSON unmarshal.
	argsJSON, err := json.Marshal(p.Arguments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}
	var rawParams interface{}
	if err := json.Unmarshal(argsJSON, &rawParams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}

	var result interface{}
	var handlerErr error

	switch p.Name {
	case "add_memory":
		result, handlerErr = s.handleAddMemory(ctx, rawParams)
	case "get_memory":
		result, handlerErr = s.handleGetMemory(ctx, rawParams)
	case "update_memory":
		result, handlerErr = s.handleUpdateMemory(ctx, rawParams)
	case "delete_memory":
		result, handlerErr = s.handleDeleteMemory(ctx, rawParams)
	case "search_memories":
		result, handlerErr = s.handleSearchMemories(ctx, rawParams)
	case "add_relationship":
		result, handlerErr = s.handleAddRelationship(ctx, rawParams)
	case "get_relationships":
		result, handlerErr = s.handleGetRelationships(ctx, rawParams)
	case "update_relationship":
		result, handlerErr = s.handleUpdateRelationship(ctx, rawParams)
	case "delete_relationship":
		result, handlerErr = s.handleDeleteRelationship(ctx, rawParams)
	case "get_connected_memories":
		result, handlerErr = s.handleGetConnectedMemories(ctx, rawParams)
	default:
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", p.Name)}},
			IsError: true,
		}, nil
	}

	if handlerErr != nil {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: handlerErr.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
	}, nil
}

// buildToolsList returns the canonical list of MCP tool definitions.
func (s *Server) buildToolsList() []MCPTool {
	return []MCPTool{
		{
			Name:        "add_memory",
			Description: "Store a new memory with semantic embedding. The content is embedded immediately; if the embedding provider is down the call fails rather than storing a memory without a vector.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"content"},
				"properties": map[string]interface{}{
					"content":  map[string]interface{}{"type": "string", "description": "The memory content to store (required)"},
					"metadata": map[string]interface{}{"type": "object", "description": "Arbitrary key-value metadata"},
				},
			},
		},
		{
			Name:        "get_memory",
			Description: "Retrieve a memory by its ID. Returns found=false rather than an error when the memory does not exist.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]interface{}{
					"id": map[string]interface{}{"type": "string", "description": "Memory ID (required)"},
				},
			},
		},
		{
			Name:        "update_memory",
			Description: "Update the content or metadata of an existing memory. Updating content regenerates the embedding; metadata is replaced wholesale, not merged.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]interface{}{
					"id":       map[string]interface{}{"type": "string", "description": "Memory ID to update (required)"},
					"content":  map[string]interface{}{"type": "string", "description": "New content to replace the existing content"},
					"metadata": map[string]interface{}{"type": "object", "description": "New metadata map (replaces existing metadata)"},
				},
			},
		},
		{
			Name:        "delete_memory",
			Description: "Delete a memory permanently. All relationships referencing it as either endpoint are removed, along with its embedding.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]interface{}{
					"id": map[string]interface{}{"type": "string", "description": "Memory ID to delete (required)"},
				},
			},
		},
		{
			Name:        "search_memories",
			Description: "Search memories by semantic similarity. Falls back to a substring scan (newest first) when the vector path is unavailable; fallback results carry no similarity score.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"query":     map[string]interface{}{"type": "string", "description": "Search query (required)"},
					"limit":     map[string]interface{}{"type": "integer", "description": "Max results (default 10)"},
					"threshold": map[string]interface{}{"type": "number", "description": "Similarity floor between 0 and 1 (default 0.5)"},
				},
			},
		},
		{
			Name:        "add_relationship",
			Description: "Create a typed, weighted, directed relationship between two memories. Endpoints are not validated; edges may reference memories that do not exist yet.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"from_memory_id", "to_memory_id", "relationship_type"},
				"properties": map[string]interface{}{
					"from_memory_id":    map[string]interface{}{"type": "string", "description": "Source memory ID (required)"},
					"to_memory_id":      map[string]interface{}{"type": "string", "description": "Target memory ID (required)"},
					"relationship_type": map[string]interface{}{"type": "string", "description": "Free-form type label, e.g. relates_to, contradicts (required)"},
					"strength":          map[string]interface{}{"type": "number", "description": "Edge weight, conventionally between 0 and 1 (default 1.0)"},
					"metadata":          map[string]interface{}{"type": "object", "description": "Arbitrary key-value metadata"},
				},
			},
		},
		{
			Name:        "get_relationships",
			Description: "List relationships, optionally filtered by memory, type, direction, and minimum strength. Ordered by strength descending, then creation time descending.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{
					"memory_id":         map[string]interface{}{"type": "string", "description": "Endpoint filter; omit to match all edges"},
					"relationship_type": map[string]interface{}{"type": "string", "description": "Exact type match"},
					"direction":         map[string]interface{}{"type": "string", "description": "from, to, or both (default both)"},
					"min_strength":      map[string]interface{}{"type": "number", "description": "Inclusive strength floor (default 0)"},
					"limit":             map[string]interface{}{"type": "integer", "description": "Max results (default 100)"},
				},
			},
		},
		{
			Name:        "update_relationship",
			Description: "Update the strength or metadata of an existing relationship.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]interface{}{
					"id":       map[string]interface{}{"type": "string", "description": "Relationship ID to update (required)"},
					"strength": map[string]interface{}{"type": "number", "description": "New edge weight, conventionally between 0 and 1"},
					"metadata": map[string]interface{}{"type": "object", "description": "New metadata map (replaces existing metadata)"},
				},
			},
		},
		{
			Name:        "delete_relationship",
			Description: "Delete a relationship by its ID.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]interface{}{
					"id": map[string]interface{}{"type": "string", "description": "Relationship ID to delete (required)"},
				},
			},
		},
		{
			Name:        "get_connected_memories",
			Description: "Find memories connected to a start memory via relationships, up to max_depth hops. Edges are treated as undirected for reachability; the start memory is excluded from the result.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"memory_id"},
				"properties": map[string]interface{}{
					"memory_id": map[string]interface{}{"type": "string", "description": "Start memory ID (required)"},
					"max_depth": map[string]interface{}{"type": "integer", "description": "Maximum hop count (default 2)"},
				},
			},
		},
	}
}

// unmarshalParams unmarshals JSON-RPC parameters into a typed struct.
func (s *Server) unmarshalParams(params interface{}, dest interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}

	return nil
}

// successResponse creates a JSON-RPC success response.
func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	return json.Marshal(resp)
}

// errorResponse creates a JSON-RPC error response.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	return json.Marshal(resp)
}
