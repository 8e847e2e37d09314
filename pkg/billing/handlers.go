package billing

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pagesmith/pagesmith/pkg/httputil"
	"github.com/pagesmith/pagesmith/pkg/observability"
)

// Handlers exposes the inbound webhook endpoint.
type Handlers struct {
	verifier *Verifier
	router   *Router
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewHandlers creates webhook handlers
func NewHandlers(verifier *Verifier, router *Router, logger *observability.Logger, metrics *observability.Metrics) *Handlers {
	return &Handlers{
		verifier: verifier,
		router:   router,
		logger:   logger,
		metrics:  metrics,
	}
}

// RegisterRoutes registers the webhook endpoint
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/billing/webhook", h.HandleWebhook).Methods("POST")
}

// HandleWebhook receives a signed billing event. A bad signature is the only
// condition that returns a non-2xx status, because redelivery fixes nothing
// else: unparseable and unresolvable events are acknowledged and logged so
// the provider does not hammer the endpoint with deliveries that can never
// succeed.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)

	body, err := httputil.ReadBody(r)
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get(SignatureHeader)); err != nil {
		h.metrics.WebhookSignatureFails.Inc()
		logger.WithError(err).Warn("rejected webhook delivery with invalid signature")
		httputil.WriteBadRequest(w, "invalid signature")
		return
	}

	event, err := ParseEvent(body)
	if err != nil {
		logger.WithError(err).Error("failed to parse verified webhook payload")
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	outcome, err := h.router.Dispatch(r.Context(), event)
	if err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"event_id": event.ID,
			"kind":     string(event.Kind),
			"outcome":  string(outcome),
		}).Error("webhook handler failed mid-apply")
	} else {
		logger.WithFields(map[string]interface{}{
			"event_id": event.ID,
			"kind":     string(event.Kind),
			"outcome":  string(outcome),
		}).Info("webhook event processed")
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
