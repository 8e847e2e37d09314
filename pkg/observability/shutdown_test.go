package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newShutdownTestLogger() *Logger {
	return NewLogger(ErrorLevel, io.Discard)
}

func TestNewShutdownManager(t *testing.T) {
	t.Run("applies default timeout", func(t *testing.T) {
		sm := NewShutdownManager(newShutdownTestLogger(), 0)

		if sm.shutdownTimeout != 30*time.Second {
			t.Errorf("Expected default timeout 30s, got %v", sm.shutdownTimeout)
		}
	})

	t.Run("uses provided timeout", func(t *testing.T) {
		sm := NewShutdownManager(newShutdownTestLogger(), 5*time.Second)

		if sm.shutdownTimeout != 5*time.Second {
			t.Errorf("Expected timeout 5s, got %v", sm.shutdownTimeout)
		}
	})
}

func TestShutdownManager_Shutdown(t *testing.T) {
	t.Run("runs registered shutdown functions", func(t *testing.T) {
		sm := NewShutdownManager(newShutdownTestLogger(), time.Second)

		var calls int32
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})

		if err := sm.Shutdown(); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if got := atomic.LoadInt32(&calls); got != 2 {
			t.Errorf("Expected 2 shutdown function calls, got %d", got)
		}
	})

	t.Run("reports shutdown function errors", func(t *testing.T) {
		sm := NewShutdownManager(newShutdownTestLogger(), time.Second)

		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return errors.New("close failed")
		})

		err := sm.Shutdown()
		if err == nil {
			t.Fatal("Expected error from failing shutdown function")
		}
	})

	t.Run("times out on slow shutdown function", func(t *testing.T) {
		sm := NewShutdownManager(newShutdownTestLogger(), 50*time.Millisecond)

		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			return nil
		})

		start := time.Now()
		err := sm.Shutdown()
		elapsed := time.Since(start)

		if err == nil {
			t.Fatal("Expected timeout error")
		}

		if elapsed > time.Second {
			t.Errorf("Shutdown took too long: %v", elapsed)
		}
	})

	t.Run("drains HTTP servers", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		ts := httptest.NewServer(handler)
		defer ts.Close()

		server := ts.Config
		sm := NewShutdownManager(newShutdownTestLogger(), time.Second, server)

		if err := sm.Shutdown(); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		// A drained server refuses new connections
		_, err := http.Get(ts.URL)
		if err == nil {
			t.Error("Expected request to fail after shutdown")
		}
	})

	t.Run("skips nil servers", func(t *testing.T) {
		sm := NewShutdownManager(newShutdownTestLogger(), time.Second, nil, nil)

		if err := sm.Shutdown(); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	})

	t.Run("no registered functions", func(t *testing.T) {
		sm := NewShutdownManager(newShutdownTestLogger(), time.Second)

		if err := sm.Shutdown(); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	})
}
