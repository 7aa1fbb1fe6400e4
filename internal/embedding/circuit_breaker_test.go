package embedding_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/engramhq/engram/internal/embedding"
)

func TestCircuitBreakerClosed(t *testing.T) {
	cb := embedding.NewCircuitBreaker()

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute() failed in closed state: %v", err)
	}
	if result != "ok" {
		t.Errorf("result: got %v, want ok", result)
	}
	if state := cb.State(); state != "closed" {
		t.Errorf("state: got %s, want closed", state)
	}
}

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := embedding.NewCircuitBreaker()
	ctx := context.Background()
	boom := errors.New("downstream failure")

	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(ctx, func() (interface{}, error) { return nil, boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: got %v, want the downstream error", i+1, err)
		}
	}

	if state := cb.State(); state != "open" {
		t.Fatalf("state after failures: got %s, want open", state)
	}

	_, err := cb.Execute(ctx, func() (interface{}, error) { return "never runs", nil })
	if !errors.Is(err, embedding.ErrCircuitOpen) {
		t.Errorf("open-state call: got %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := embedding.NewCircuitBreakerWithConfig(embedding.CircuitBreakerConfig{
		MaxFailures:          2,
		Timeout:              50 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(ctx, func() (interface{}, error) { return nil, errors.New("fail") })
	}
	if state := cb.State(); state != "open" {
		t.Fatalf("state: got %s, want open", state)
	}

	// After the open timeout the breaker goes half-open and a success
	// closes it again.
	time.Sleep(80 * time.Millisecond)

	result, err := cb.Execute(ctx, func() (interface{}, error) { return "recovered", nil })
	if err != nil {
		t.Fatalf("half-open Execute() failed: %v", err)
	}
	if result != "recovered" {
		t.Errorf("result: got %v, want recovered", result)
	}
	if state := cb.State(); state != "closed" {
		t.Errorf("state after recovery: got %s, want closed", state)
	}
}
