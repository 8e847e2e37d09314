package apikeys

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pagesmith/pagesmith/pkg/contextkeys"
	"github.com/pagesmith/pagesmith/pkg/httputil"
	"github.com/pagesmith/pagesmith/pkg/teams"
)

// Handlers provides HTTP handlers for the key management API
type Handlers struct {
	service Service
	teams   teams.Service
}

// NewHandlers creates new key management handlers
func NewHandlers(service Service, teamService teams.Service) *Handlers {
	return &Handlers{
		service: service,
		teams:   teamService,
	}
}

// RegisterRoutes registers all key management routes
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/keys", h.ListKeys).Methods("GET")
	r.HandleFunc("/api/v1/keys", h.CreateKey).Methods("POST")
	r.HandleFunc("/api/v1/keys/{id}", h.RenameKey).Methods("PATCH")
	r.HandleFunc("/api/v1/keys/{id}", h.RevokeKey).Methods("DELETE")
}

// actingTeam resolves the caller's user and team and enforces the elevated
// role requirement for key mutations. Writes the error response itself and
// returns ok=false on failure.
func (h *Handlers) actingTeam(w http.ResponseWriter, r *http.Request, elevated bool) (teamID, userID string, ok bool) {
	userID = contextkeys.GetUserID(r.Context())
	if userID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return "", "", false
	}

	teamID = contextkeys.GetTeamID(r.Context())
	if teamID == "" {
		var err error
		teamID, err = h.teams.CurrentTeamID(r.Context(), userID)
		if err != nil {
			if teams.IsNotFound(err) {
				httputil.WriteNotFoundError(w, "no team found")
			} else {
				httputil.WriteInternalError(w, err)
			}
			return "", "", false
		}
	}

	if elevated {
		if err := h.teams.RequireElevated(r.Context(), teamID, userID); err != nil {
			if teams.IsForbidden(err) {
				httputil.WriteForbidden(w, "admin or owner access required")
			} else {
				httputil.WriteInternalError(w, err)
			}
			return "", "", false
		}
	}

	return teamID, userID, true
}

type createKeyRequest struct {
	Name string `json:"name"`
}

type keyResponse struct {
	Key *ApiKey `json:"key"`
}

// ListKeys handles GET /api/v1/keys
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	teamID, _, ok := h.actingTeam(w, r, false)
	if !ok {
		return
	}

	keys, err := h.service.List(r.Context(), teamID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"keys": keys})
}

// CreateKey handles POST /api/v1/keys
func (h *Handlers) CreateKey(w http.ResponseWriter, r *http.Request) {
	teamID, userID, ok := h.actingTeam(w, r, true)
	if !ok {
		return
	}

	var req createKeyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	key, err := h.service.Create(r.Context(), teamID, req.Name, userID)
	if err != nil {
		switch {
		case IsNameConflict(err):
			httputil.WriteConflict(w, err.Error())
		case err == ErrInvalidName:
			httputil.WriteBadRequest(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	httputil.WriteCreated(w, keyResponse{Key: key})
}

// RenameKey handles PATCH /api/v1/keys/{id}
func (h *Handlers) RenameKey(w http.ResponseWriter, r *http.Request) {
	teamID, _, ok := h.actingTeam(w, r, true)
	if !ok {
		return
	}

	keyID := mux.Vars(r)["id"]

	var req createKeyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	key, err := h.service.Rename(r.Context(), teamID, keyID, req.Name)
	if err != nil {
		switch {
		case IsNameConflict(err):
			httputil.WriteConflict(w, err.Error())
		case err == ErrInvalidName:
			httputil.WriteBadRequest(w, err.Error())
		case err == ErrKeyNotFound:
			httputil.WriteNotFoundError(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	httputil.WriteSuccess(w, keyResponse{Key: key})
}

// RevokeKey handles DELETE /api/v1/keys/{id}
func (h *Handlers) RevokeKey(w http.ResponseWriter, r *http.Request) {
	teamID, userID, ok := h.actingTeam(w, r, true)
	if !ok {
		return
	}

	keyID := mux.Vars(r)["id"]

	key, err := h.service.Revoke(r.Context(), teamID, keyID, userID)
	if err != nil {
		switch {
		case IsLastActiveKey(err):
			httputil.WriteConflict(w, err.Error())
		case err == ErrKeyNotFound:
			httputil.WriteNotFoundError(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	httputil.WriteSuccess(w, keyResponse{Key: key})
}
