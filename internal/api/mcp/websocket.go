package mcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
)

// WebSocketTransport serves JSON-RPC 2.0 over WebSocket connections as an
// alternative to stdio. Each text message is one JSON-RPC request and
// produces exactly one response message; connections are independent and
// handled concurrently.
type WebSocketTransport struct {
	server *Server
	addr   string
	logger *log.Logger

	httpServer *http.Server
}

// NewWebSocketTransport constructs a WebSocket transport listening on addr
// (host:port).
func NewWebSocketTransport(srv *Server, addr string) *WebSocketTransport {
	return &WebSocketTransport{
		server: srv,
		addr:   addr,
		logger: log.New(os.Stderr, "engram-mcp: ", log.LstdFlags),
	}
}

// Serve listens for WebSocket connections until the context is cancelled.
func (t *WebSocketTransport) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", t.handleUpgrade)

	t.httpServer = &http.Server{
		Addr:    t.addr,
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.httpServer.Shutdown(shutdownCtx)
	}()

	t.logger.Printf("websocket transport listening on %s", t.addr)
	if err := t.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket listen: %w", err)
	}
	return nil
}

// handleUpgrade accepts a WebSocket connection and serves JSON-RPC requests
// on it until the peer disconnects.
func (t *WebSocketTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	if err != nil {
		t.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck

	t.logger.Printf("websocket client connected: %s", r.RemoteAddr)

	ctx := r.Context()
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			t.logger.Printf("websocket client disconnected: %s", r.RemoteAddr)
			return
		}
		if msgType != websocket.MessageText || len(data) == 0 {
			continue
		}

		resp, err := t.server.HandleRequest(ctx, data)
		if err != nil {
			resp = internalErrorResponse(data, err)
		}

		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = conn.Write(writeCtx, websocket.MessageText, resp) //nolint:staticcheck
		cancel()
		if err != nil {
			t.logger.Printf("websocket write failed: %v", err)
			return
		}
	}
}
