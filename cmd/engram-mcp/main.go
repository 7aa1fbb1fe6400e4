// cmd/engram-mcp is the entry point for the Engram MCP (Model Context
// Protocol) server.  It wires a storage backend and the embedding provider
// into the memory service and serves JSON-RPC 2.0 tools.
//
// Startup sequence:
//  1. Load configuration (optional YAML file + ENGRAM_ environment variables).
//  2. Open the storage backend (SQLite or PostgreSQL) and apply the schema.
//  3. Wait for the embedding provider to become reachable and ensure the
//     embedding model is installed (polled once per second, 30 attempts).
//  4. Create the memory service and the MCP server on top of it.
//  5. Serve JSON-RPC 2.0 requests over stdio or WebSocket.
//
// CRITICAL: ALL logging MUST go to stderr.  Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames will corrupt the protocol.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/engramhq/engram/internal/api/mcp"
	"github.com/engramhq/engram/internal/config"
	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/memory"
	"github.com/engramhq/engram/internal/storage"
	"github.com/engramhq/engram/internal/storage/postgres"
	"github.com/engramhq/engram/internal/storage/sqlite"
)

func main() {
	// Redirect the default logger to stderr so that any incidental log calls
	// (e.g. from imported packages) never pollute the stdout JSON-RPC stream.
	log.SetOutput(os.Stderr)
	log.SetPrefix("engram-mcp: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	// Set up a root context that is cancelled on SIGINT / SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	// Bring up the embedding provider before serving: the write path depends
	// on it and the readiness check happens once, not per call.
	provider := embedding.NewOllamaClient(embedding.OllamaConfig{
		BaseURL:           cfg.Embedding.OllamaURL,
		Model:             cfg.Embedding.Model,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Logger:            log.Default(),
	})
	if err := provider.WaitUntilReady(ctx); err != nil {
		log.Fatalf("embedding provider unavailable: %v", err)
	}
	log.Printf("embedding provider ready (model %s, dimension %d)", provider.GetModel(), cfg.Embedding.Dimension)

	service := memory.NewService(store, provider, log.Default())
	srv := mcp.NewServer(service)

	switch cfg.Server.Transport {
	case "websocket":
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		transport := mcp.NewWebSocketTransport(srv, addr)
		log.Printf("ready — serving JSON-RPC 2.0 over websocket on %s", addr)
		if err := transport.Serve(ctx); err != nil {
			log.Printf("transport stopped: %v", err)
		}
	default:
		// Wrap the server in a StdioTransport that reads line-delimited
		// JSON-RPC from stdin and writes responses to stdout.  All logging
		// inside the transport is directed to stderr.
		transport := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout)
		log.Println("ready — serving JSON-RPC 2.0 on stdin/stdout")
		if err := transport.Serve(ctx); err != nil {
			// A non-nil error here is normal (context cancellation) or
			// indicates a fatal stdin/stdout problem.
			log.Printf("transport stopped: %v", err)
		}
	}
}

// openStore opens the configured storage backend.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN, cfg.Embedding.Dimension)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory %q: %w", cfg.Storage.DataPath, err)
		}
		dbPath := filepath.Join(cfg.Storage.DataPath, "engram.db")
		return sqlite.NewStore(dbPath)
	}
}
