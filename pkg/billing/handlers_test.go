package billing

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesmith/pagesmith/pkg/observability"
	"github.com/pagesmith/pagesmith/pkg/teams"
)

func newTestHandlers(t *testing.T, svc *fakeTeamService, ledger *fakeLedger) (*Handlers, *Verifier) {
	t.Helper()
	verifier := NewVerifier("whsec_test", DefaultTolerance)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	router := newTestRouter(t, svc, ledger, nil)
	return NewHandlers(verifier, router, logger, metrics), verifier
}

func postWebhook(h *Handlers, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	h.HandleWebhook(w, req)
	return w
}

func TestHandleWebhook(t *testing.T) {
	validBody := []byte(`{
		"id": "evt_1",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "customer": "cus_1"}}
	}`)

	t.Run("missing signature is rejected", func(t *testing.T) {
		h, _ := newTestHandlers(t, newFakeTeamService(), newFakeLedger())

		w := postWebhook(h, validBody, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad signature is rejected", func(t *testing.T) {
		h, _ := newTestHandlers(t, newFakeTeamService(), newFakeLedger())

		w := postWebhook(h, validBody, "t=1,v1=deadbeef")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("valid signature applies the event", func(t *testing.T) {
		svc := newFakeTeamService()
		svc.addTeam(&teams.Team{
			ID:                 "team-1",
			HasPaid:            true,
			PlanPriceRef:       strPtr("price_starter"),
			BillingCustomerRef: strPtr("cus_1"),
		})
		ledger := newFakeLedger()
		ledger.balances["team-1"] = 10000
		h, verifier := newTestHandlers(t, svc, ledger)

		w := postWebhook(h, validBody, verifier.Sign(time.Now(), validBody))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(100), ledger.balances["team-1"])
		assert.False(t, svc.byID["team-1"].HasPaid)
	})

	t.Run("unparseable payload is still acknowledged", func(t *testing.T) {
		h, verifier := newTestHandlers(t, newFakeTeamService(), newFakeLedger())
		body := []byte(`{"id": "evt_2"}`)

		w := postWebhook(h, body, verifier.Sign(time.Now(), body))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unresolved event is still acknowledged", func(t *testing.T) {
		h, verifier := newTestHandlers(t, newFakeTeamService(), newFakeLedger())

		w := postWebhook(h, validBody, verifier.Sign(time.Now(), validBody))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
