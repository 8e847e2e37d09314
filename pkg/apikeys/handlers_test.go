package apikeys

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesmith/pagesmith/pkg/contextkeys"
	"github.com/pagesmith/pagesmith/pkg/teams"
)

// fakeKeyService implements Service in memory for handler tests
type fakeKeyService struct {
	keys      map[string]*ApiKey
	createErr error
	renameErr error
	revokeErr error
}

func newFakeKeyService() *fakeKeyService {
	return &fakeKeyService{keys: make(map[string]*ApiKey)}
}

func (f *fakeKeyService) Create(ctx context.Context, teamID, name, createdBy string) (*ApiKey, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	key := &ApiKey{
		ID: "key-new", TeamID: teamID, Name: name,
		Secret: "pgsk_bmV3", CreatedBy: createdBy, CreatedAt: time.Now(),
	}
	f.keys[key.ID] = key
	return key, nil
}

func (f *fakeKeyService) Rename(ctx context.Context, teamID, keyID, newName string) (*ApiKey, error) {
	if f.renameErr != nil {
		return nil, f.renameErr
	}
	key, ok := f.keys[keyID]
	if !ok || key.TeamID != teamID {
		return nil, ErrKeyNotFound
	}
	key.Name = newName
	return key, nil
}

func (f *fakeKeyService) Revoke(ctx context.Context, teamID, keyID, actor string) (*ApiKey, error) {
	if f.revokeErr != nil {
		return nil, f.revokeErr
	}
	key, ok := f.keys[keyID]
	if !ok || key.TeamID != teamID || key.RevokedAt != nil {
		return nil, ErrKeyNotFound
	}
	now := time.Now()
	key.RevokedAt = &now
	key.RevokedBy = &actor
	return key, nil
}

func (f *fakeKeyService) List(ctx context.Context, teamID string) ([]*ApiKey, error) {
	var out []*ApiKey
	for _, key := range f.keys {
		if key.TeamID == teamID {
			out = append(out, key)
		}
	}
	return out, nil
}

func (f *fakeKeyService) GetBySecret(ctx context.Context, secret string) (*ApiKey, error) {
	for _, key := range f.keys {
		if key.Secret == secret && key.RevokedAt == nil {
			return key, nil
		}
	}
	return nil, ErrKeyNotFound
}

func (f *fakeKeyService) TouchLastUsed(ctx context.Context, keyID string) error {
	return nil
}

// fakeTeams implements the subset of team operations the handlers use
type fakeTeams struct {
	currentTeam string
	roles       map[string]teams.Role
}

func (f *fakeTeams) CreateTeam(ctx context.Context, team *teams.Team) error { return nil }
func (f *fakeTeams) GetTeam(ctx context.Context, id string) (*teams.Team, error) {
	return nil, &teams.NotFoundError{Resource: "team", ID: id}
}
func (f *fakeTeams) GetTeamByCustomerRef(ctx context.Context, ref string) (*teams.Team, error) {
	return nil, &teams.NotFoundError{Resource: "team", ID: ref}
}
func (f *fakeTeams) GetTeamOwnedBy(ctx context.Context, userID string) (*teams.Team, error) {
	return nil, &teams.NotFoundError{Resource: "team", ID: userID}
}
func (f *fakeTeams) CurrentTeamID(ctx context.Context, userID string) (string, error) {
	if f.currentTeam == "" {
		return "", &teams.NotFoundError{Resource: "current team", ID: userID}
	}
	return f.currentTeam, nil
}
func (f *fakeTeams) UpdateBilling(ctx context.Context, teamID string, update teams.BillingUpdate) error {
	return nil
}
func (f *fakeTeams) GetProfile(ctx context.Context, userID string) (*teams.Profile, error) {
	return nil, &teams.NotFoundError{Resource: "profile", ID: userID}
}
func (f *fakeTeams) FindOrCreateProfileByEmail(ctx context.Context, email string) (*teams.Profile, error) {
	return &teams.Profile{ID: "user-x", Email: email}, nil
}
func (f *fakeTeams) GetMemberRole(ctx context.Context, teamID, userID string) (teams.Role, error) {
	role, ok := f.roles[userID]
	if !ok {
		return "", &teams.NotFoundError{Resource: "membership", ID: userID}
	}
	return role, nil
}
func (f *fakeTeams) RequireElevated(ctx context.Context, teamID, userID string) error {
	role, err := f.GetMemberRole(ctx, teamID, userID)
	if err != nil {
		return &teams.ForbiddenError{TeamID: teamID, UserID: userID}
	}
	if !role.Elevated() {
		return &teams.ForbiddenError{TeamID: teamID, UserID: userID, Role: role}
	}
	return nil
}

func newKeyTestServer(svc Service, ts teams.Service) *mux.Router {
	router := mux.NewRouter()
	NewHandlers(svc, ts).RegisterRoutes(router)
	return router
}

func doKeyRequest(router *mux.Router, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req = req.WithContext(contextkeys.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_CreateKey(t *testing.T) {
	t.Run("admin creates key", func(t *testing.T) {
		svc := newFakeKeyService()
		router := newKeyTestServer(svc, &fakeTeams{
			currentTeam: "team-1",
			roles:       map[string]teams.Role{"user-1": teams.RoleAdmin},
		})

		rec := doKeyRequest(router, "POST", "/api/v1/keys", "user-1", map[string]string{"name": "ci"})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp keyResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "ci", resp.Key.Name)
		assert.Equal(t, "team-1", resp.Key.TeamID)
		assert.NotEmpty(t, resp.Key.Secret)
	})

	t.Run("plain member is forbidden", func(t *testing.T) {
		svc := newFakeKeyService()
		router := newKeyTestServer(svc, &fakeTeams{
			currentTeam: "team-1",
			roles:       map[string]teams.Role{"user-1": teams.RoleMember},
		})

		rec := doKeyRequest(router, "POST", "/api/v1/keys", "user-1", map[string]string{"name": "ci"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		svc := newFakeKeyService()
		router := newKeyTestServer(svc, &fakeTeams{currentTeam: "team-1"})

		rec := doKeyRequest(router, "POST", "/api/v1/keys", "", map[string]string{"name": "ci"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("name conflict maps to 409", func(t *testing.T) {
		svc := newFakeKeyService()
		svc.createErr = &NameConflictError{TeamID: "team-1", Name: "ci"}
		router := newKeyTestServer(svc, &fakeTeams{
			currentTeam: "team-1",
			roles:       map[string]teams.Role{"user-1": teams.RoleOwner},
		})

		rec := doKeyRequest(router, "POST", "/api/v1/keys", "user-1", map[string]string{"name": "ci"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid name maps to 400", func(t *testing.T) {
		svc := newFakeKeyService()
		svc.createErr = ErrInvalidName
		router := newKeyTestServer(svc, &fakeTeams{
			currentTeam: "team-1",
			roles:       map[string]teams.Role{"user-1": teams.RoleOwner},
		})

		rec := doKeyRequest(router, "POST", "/api/v1/keys", "user-1", map[string]string{"name": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandlers_ListKeys(t *testing.T) {
	t.Run("member can list", func(t *testing.T) {
		svc := newFakeKeyService()
		svc.keys["key-1"] = &ApiKey{ID: "key-1", TeamID: "team-1", Name: "production", Secret: "pgsk_a"}
		router := newKeyTestServer(svc, &fakeTeams{
			currentTeam: "team-1",
			roles:       map[string]teams.Role{"user-1": teams.RoleMember},
		})

		rec := doKeyRequest(router, "GET", "/api/v1/keys", "user-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Keys []*ApiKey `json:"keys"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Keys, 1)
		assert.Equal(t, "key-1", resp.Keys[0].ID)
	})

	t.Run("no team resolves to 404", func(t *testing.T) {
		svc := newFakeKeyService()
		router := newKeyTestServer(svc, &fakeTeams{})

		rec := doKeyRequest(router, "GET", "/api/v1/keys", "user-1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandlers_RenameKey(t *testing.T) {
	t.Run("renames", func(t *testing.T) {
		svc := newFakeKeyService()
		svc.keys["key-1"] = &ApiKey{ID: "key-1", TeamID: "team-1", Name: "old", Secret: "pgsk_a"}
		router := newKeyTestServer(svc, &fakeTeams{
			currentTeam: "team-1",
			roles:       map[string]teams.Role{"user-1": teams.RoleAdmin},
		})

		rec := doKeyRequest(router, "PATCH", "/api/v1/keys/key-1", "user-1", map[string]string{"name": "new"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp keyResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "new", resp.Key.Name)
	})

	t.Run("unknown key maps to 404", func(t *testing.T) {
		svc := newFakeKeyService()
		router := newKeyTestServer(svc, &fakeTeams{
			currentTeam: "team-1",
			roles:       map[string]teams.Role{"user-1": teams.RoleAdmin},
		})

		rec := doKeyRequest(router, "PATCH", "/api/v1/keys/gone", "user-1", map[string]string{"name": "new"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandlers_RevokeKey(t *testing.T) {
	t.Run("revokes", func(t *testing.T) {
		svc := newFakeKeyService()
		svc.keys["key-1"] = &ApiKey{ID: "key-1", TeamID: "team-1", Name: "old", Secret: "pgsk_a"}
		router := newKeyTestServer(svc, &fakeTeams{
			currentTeam: "team-1",
			roles:       map[string]teams.Role{"user-1": teams.RoleOwner},
		})

		rec := doKeyRequest(router, "DELETE", "/api/v1/keys/key-1", "user-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp keyResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.NotNil(t, resp.Key.RevokedAt)
	})

	t.Run("last active key maps to 409", func(t *testing.T) {
		svc := newFakeKeyService()
		svc.revokeErr = &LastActiveKeyError{TeamID: "team-1", KeyID: "key-1"}
		router := newKeyTestServer(svc, &fakeTeams{
			currentTeam: "team-1",
			roles:       map[string]teams.Role{"user-1": teams.RoleOwner},
		})

		rec := doKeyRequest(router, "DELETE", "/api/v1/keys/key-1", "user-1", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
