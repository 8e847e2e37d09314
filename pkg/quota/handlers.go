package quota

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pagesmith/pagesmith/pkg/httputil"
	"github.com/pagesmith/pagesmith/pkg/middleware"
	"github.com/pagesmith/pagesmith/pkg/observability"
	"github.com/pagesmith/pagesmith/pkg/render"
)

// DownloadRequest is the anonymous generation payload. Email and token are
// optional depending on deployment configuration and remaining quota.
type DownloadRequest struct {
	Data           json.RawMessage `json:"data"`
	TemplateRef    string          `json:"template_ref,omitempty"`
	Email          string          `json:"email,omitempty"`
	TurnstileToken string          `json:"turnstile_token,omitempty"`
	Filename       string          `json:"filename,omitempty"`
}

// Handlers exposes the public, unauthenticated tool endpoints.
type Handlers struct {
	enforcer            *Enforcer
	verifier            Verifier
	renderer            render.Client
	requireVerification bool
	logger              *observability.Logger
	metrics             *observability.Metrics
}

// NewHandlers creates quota handlers. When requireVerification is set every
// request must carry a token that passes the challenge service.
func NewHandlers(
	enforcer *Enforcer,
	verifier Verifier,
	renderer render.Client,
	requireVerification bool,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Handlers {
	return &Handlers{
		enforcer:            enforcer,
		verifier:            verifier,
		renderer:            renderer,
		requireVerification: requireVerification,
		logger:              logger,
		metrics:             metrics,
	}
}

// RegisterRoutes registers the public tool endpoints
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/public/tools/{tool}/download", h.HandleDownload).Methods("POST")
}

// HandleDownload runs the verify, check, render, record sequence for one
// anonymous generation. Quota is only consumed after the backend returns a
// document; a failed render costs the caller nothing.
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)

	tool := mux.Vars(r)["tool"]
	if tool == "" {
		httputil.WriteBadRequest(w, "tool is required")
		return
	}

	var req DownloadRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		httputil.WriteBadRequest(w, "data is required")
		return
	}

	clientIP := middleware.ClientIP(r)
	identity := Identity{IP: clientIP, Email: req.Email}

	if h.requireVerification {
		ok, err := h.verifier.Verify(r.Context(), req.TurnstileToken, clientIP)
		if err != nil {
			logger.WithError(err).Warn("bot verification unavailable")
			h.metrics.QuotaDenialsTotal.WithLabelValues(tool, "verification_unavailable").Inc()
			httputil.WriteBadGateway(w, "verification is temporarily unavailable")
			return
		}
		if !ok {
			h.metrics.QuotaDenialsTotal.WithLabelValues(tool, "verification_failed").Inc()
			httputil.WriteForbidden(w, "bot verification failed")
			return
		}
	}

	decision, err := h.enforcer.Check(r.Context(), tool, identity)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !decision.Allowed {
		h.metrics.QuotaChecksTotal.WithLabelValues(tool, "denied").Inc()
		h.metrics.QuotaDenialsTotal.WithLabelValues(tool, "limit_reached").Inc()
		httputil.WriteRateLimited(w, "download limit reached, try again later",
			decision.Remaining, decision.RequiresEmail)
		return
	}
	h.metrics.QuotaChecksTotal.WithLabelValues(tool, "allowed").Inc()

	doc, err := h.renderer.Render(r.Context(), render.Request{
		Tool:        tool,
		TemplateRef: req.TemplateRef,
		Data:        req.Data,
	})
	if err != nil {
		h.metrics.RenderRequestsTotal.WithLabelValues(tool, "error").Inc()
		if render.IsUpstreamUnavailable(err) {
			httputil.WriteBadGateway(w, "document generation is temporarily unavailable")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	h.metrics.RenderRequestsTotal.WithLabelValues(tool, "ok").Inc()

	if err := h.enforcer.RecordUsage(r.Context(), tool, identity, req.TemplateRef); err != nil {
		// The document was generated; losing one record under-counts by
		// one, which is the cheaper failure. Log and continue.
		logger.WithError(err).WithField("tool", tool).Error("failed to record quota usage")
	}

	filename := req.Filename
	if filename == "" {
		filename = fmt.Sprintf("%s.pdf", tool)
	}
	if err := httputil.WritePDF(w, doc, filename, decision.Remaining-1); err != nil {
		logger.WithError(err).Warn("failed to write generated document")
	}
}
