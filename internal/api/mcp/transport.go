package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
)

// maxLineBytes is the stdio scanner buffer cap. Memory content rides inside
// JSON-RPC params, so a line can be far larger than bufio's 64K default.
const maxLineBytes = 4 * 1024 * 1024

// StdioTransport serves line-delimited JSON-RPC 2.0: one request per line on
// in, one response per line on out. When in/out are the process stdio
// streams, nothing but response frames may touch stdout — all diagnostics go
// through the stderr logger.
type StdioTransport struct {
	server *Server
	in     io.Reader
	out    io.Writer
	logger *log.Logger
}

// NewStdioTransport wires a Server to a reader/writer pair, typically
// os.Stdin and os.Stdout.
func NewStdioTransport(srv *Server, in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{
		server: srv,
		in:     in,
		out:    out,
		logger: log.New(os.Stderr, "engram-mcp: ", log.LstdFlags),
	}
}

// Serve handles requests one line at a time, in arrival order, until the
// input closes or ctx is cancelled. Every consumed request line produces
// exactly one response line, even when the handler fails.
func (t *StdioTransport) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, maxLineBytes), maxLineBytes)

	for {
		select {
		case <-ctx.Done():
			t.logger.Println("shutting down: context cancelled")
			return ctx.Err()
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read request line: %w", err)
			}
			t.logger.Println("shutting down: input closed")
			return nil
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp, err := t.server.HandleRequest(ctx, line)
		if err != nil {
			// HandleRequest encodes protocol-level failures itself; an error
			// here means it could not even build a response frame, so
			// synthesise one rather than leave the request unanswered.
			t.logger.Printf("request failed: %v", err)
			resp = internalErrorResponse(line, err)
		}

		if _, err := fmt.Fprintf(t.out, "%s\n", resp); err != nil {
			return fmt.Errorf("write response line: %w", err)
		}

		// A cancellation that raced the handler still stops the loop before
		// the next blocking read.
		select {
		case <-ctx.Done():
			t.logger.Println("shutting down: context cancelled")
			return ctx.Err()
		default:
		}
	}
}

// internalErrorResponse builds a fallback JSON-RPC error frame, recovering
// the request ID from the raw bytes when possible so the client can
// correlate it.
func internalErrorResponse(rawRequest []byte, handlerErr error) []byte {
	var partial struct {
		ID interface{} `json:"id"`
	}
	_ = json.Unmarshal(rawRequest, &partial)

	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      partial.ID,
		Error: &JSONRPCError{
			Code:    ErrCodeInternalError,
			Message: handlerErr.Error(),
		},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}
