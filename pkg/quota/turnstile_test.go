package quota

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesmith/pagesmith/pkg/render"
)

func TestTurnstileVerifier(t *testing.T) {
	ctx := context.Background()

	t.Run("passes token and ip, reports success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "secret-1", r.Form.Get("secret"))
			assert.Equal(t, "token-1", r.Form.Get("response"))
			assert.Equal(t, "203.0.113.5", r.Form.Get("remoteip"))
			w.Write([]byte(`{"success": true}`))
		}))
		defer server.Close()

		v := NewTurnstileVerifier("secret-1", 0)
		v.endpoint = server.URL

		ok, err := v.Verify(ctx, "token-1", "203.0.113.5")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("reports a rejected token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success": false, "error-codes": ["invalid-input-response"]}`))
		}))
		defer server.Close()

		v := NewTurnstileVerifier("secret-1", 0)
		v.endpoint = server.URL

		ok, err := v.Verify(ctx, "bad-token", "203.0.113.5")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("server error is upstream unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		v := NewTurnstileVerifier("secret-1", 0)
		v.endpoint = server.URL

		_, err := v.Verify(ctx, "token-1", "203.0.113.5")
		require.Error(t, err)
		assert.True(t, render.IsUpstreamUnavailable(err))
	})
}
