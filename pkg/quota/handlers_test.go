package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesmith/pagesmith/pkg/httputil"
	"github.com/pagesmith/pagesmith/pkg/observability"
	"github.com/pagesmith/pagesmith/pkg/render"
)

type stubRenderer struct {
	doc []byte
	err error
}

func (s *stubRenderer) Render(ctx context.Context, req render.Request) ([]byte, error) {
	return s.doc, s.err
}

type stubVerifier struct {
	ok  bool
	err error
}

func (s *stubVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	return s.ok, s.err
}

func newTestHandlers(t *testing.T, store Store, verifier Verifier, renderer render.Client, requireVerification bool) *Handlers {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewHandlers(NewEnforcer(store, 5, DefaultWindow), verifier, renderer, requireVerification, logger, metrics)
}

func postDownload(h *Handlers, tool, ip string, body DownloadRequest) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/public/tools/%s/download", tool), bytes.NewReader(payload))
	req.RemoteAddr = ip + ":54321"

	w := httptest.NewRecorder()
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	r.ServeHTTP(w, req)
	return w
}

func TestHandleDownload(t *testing.T) {
	request := DownloadRequest{Data: json.RawMessage(`{"name": "Ada"}`)}
	doc := []byte("%PDF-1.7 fake")

	t.Run("returns the document and decrements the header count", func(t *testing.T) {
		store := &memoryStore{}
		h := newTestHandlers(t, store, nil, &stubRenderer{doc: doc}, false)

		w := postDownload(h, "certificate-generator", "203.0.113.5", request)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.Equal(t, "4", w.Header().Get(httputil.DownloadsRemainingHeader))
		assert.Len(t, store.records, 1)
	})

	t.Run("fifth download reports zero remaining, sixth is denied", func(t *testing.T) {
		store := &memoryStore{}
		h := newTestHandlers(t, store, nil, &stubRenderer{doc: doc}, false)

		var last *httptest.ResponseRecorder
		for i := 0; i < 5; i++ {
			last = postDownload(h, "certificate-generator", "203.0.113.5", request)
			require.Equal(t, http.StatusOK, last.Code)
		}
		assert.Equal(t, "0", last.Header().Get(httputil.DownloadsRemainingHeader))

		w := postDownload(h, "certificate-generator", "203.0.113.5", request)
		require.Equal(t, http.StatusTooManyRequests, w.Code)

		var resp httputil.RateLimitResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.DownloadsRemaining)
		assert.True(t, resp.RequiresEmail)
	})

	t.Run("email identity gets its own allowance", func(t *testing.T) {
		store := &memoryStore{}
		h := newTestHandlers(t, store, nil, &stubRenderer{doc: doc}, false)

		for i := 0; i < 5; i++ {
			w := postDownload(h, "certificate-generator", "203.0.113.5", request)
			require.Equal(t, http.StatusOK, w.Code)
		}

		withEmail := request
		withEmail.Email = "a@example.com"
		w := postDownload(h, "certificate-generator", "203.0.113.5", withEmail)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "4", w.Header().Get(httputil.DownloadsRemainingHeader))
	})

	t.Run("failed verification denies regardless of quota", func(t *testing.T) {
		store := &memoryStore{}
		h := newTestHandlers(t, store, &stubVerifier{ok: false}, &stubRenderer{doc: doc}, true)

		w := postDownload(h, "certificate-generator", "203.0.113.5", request)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, store.records)
	})

	t.Run("verification outage is a bad gateway", func(t *testing.T) {
		store := &memoryStore{}
		verifier := &stubVerifier{err: &render.UpstreamUnavailableError{Service: "bot verification", Err: fmt.Errorf("down")}}
		h := newTestHandlers(t, store, verifier, &stubRenderer{doc: doc}, true)

		w := postDownload(h, "certificate-generator", "203.0.113.5", request)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Empty(t, store.records)
	})

	t.Run("failed render consumes no quota", func(t *testing.T) {
		store := &memoryStore{}
		renderer := &stubRenderer{err: &render.UpstreamUnavailableError{Service: "rendering backend", Err: fmt.Errorf("down")}}
		h := newTestHandlers(t, store, nil, renderer, false)

		w := postDownload(h, "certificate-generator", "203.0.113.5", request)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Empty(t, store.records)
	})

	t.Run("missing data is a bad request", func(t *testing.T) {
		h := newTestHandlers(t, &memoryStore{}, nil, &stubRenderer{doc: doc}, false)

		w := postDownload(h, "certificate-generator", "203.0.113.5", DownloadRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
