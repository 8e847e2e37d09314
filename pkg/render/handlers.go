package render

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pagesmith/pagesmith/pkg/contextkeys"
	"github.com/pagesmith/pagesmith/pkg/credits"
	"github.com/pagesmith/pagesmith/pkg/httputil"
	"github.com/pagesmith/pagesmith/pkg/observability"
)

// CreditsPerDocument is the ledger cost of one authenticated generation.
const CreditsPerDocument = 1

// ConvertRequest is the authenticated generation payload.
type ConvertRequest struct {
	Tool        string          `json:"tool"`
	TemplateRef string          `json:"template_ref,omitempty"`
	Data        json.RawMessage `json:"data"`
	Filename    string          `json:"filename,omitempty"`
}

// Handlers exposes the authenticated, credit-spending generation endpoint.
type Handlers struct {
	client  Client
	ledger  credits.Ledger
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewHandlers creates render handlers
func NewHandlers(client Client, ledger credits.Ledger, logger *observability.Logger, metrics *observability.Metrics) *Handlers {
	return &Handlers{
		client:  client,
		ledger:  ledger,
		logger:  logger,
		metrics: metrics,
	}
}

// RegisterRoutes registers the convert endpoint. The router passed in must
// already enforce API key authentication.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/convert", h.HandleConvert).Methods("POST")
}

// HandleConvert decrements the team's credit balance, generates the
// document, and refunds the credit when generation fails. The decrement
// happens first so billable work never runs against an empty balance.
func (h *Handlers) HandleConvert(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)

	teamID := contextkeys.GetTeamID(r.Context())
	if teamID == "" {
		httputil.WriteUnauthorized(w, "missing team identity")
		return
	}

	var req ConvertRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		httputil.WriteBadRequest(w, "data is required")
		return
	}

	remaining, err := h.ledger.Decrement(r.Context(), teamID, CreditsPerDocument)
	if err != nil {
		if credits.IsInsufficientCredits(err) {
			h.metrics.InsufficientCreditsTotal.Inc()
			httputil.WriteErrorMessage(w, http.StatusPaymentRequired, "insufficient credits")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	h.metrics.CreditsSpentTotal.Add(CreditsPerDocument)

	doc, err := h.client.Render(r.Context(), Request{
		Tool:        req.Tool,
		TemplateRef: req.TemplateRef,
		Data:        req.Data,
	})
	if err != nil {
		// The work never happened, give the credit back.
		if _, refundErr := h.ledger.Increment(r.Context(), teamID, CreditsPerDocument); refundErr != nil {
			logger.WithError(refundErr).WithField("team_id", teamID).
				Error("failed to refund credit after failed render")
		} else {
			h.metrics.CreditsRefundedTotal.Add(CreditsPerDocument)
		}

		h.metrics.RenderRequestsTotal.WithLabelValues(req.Tool, "error").Inc()
		if IsUpstreamUnavailable(err) {
			httputil.WriteBadGateway(w, "document generation is temporarily unavailable")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	h.metrics.RenderRequestsTotal.WithLabelValues(req.Tool, "ok").Inc()

	filename := req.Filename
	if filename == "" {
		filename = fmt.Sprintf("%s.pdf", req.Tool)
	}
	if err := httputil.WritePDF(w, doc, filename, int(remaining)); err != nil {
		logger.WithError(err).Warn("failed to write generated document")
	}
}
