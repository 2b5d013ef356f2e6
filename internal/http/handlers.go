package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/camguard/internal/authn"
	"github.com/dropDatabas3/camguard/internal/authz"
	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/domain/types"
	"github.com/dropDatabas3/camguard/internal/observability/logger"
	"github.com/go-chi/chi/v5"
)

// ─────────────── DTOs ───────────────

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Device   string `json:"device,omitempty"`
}

type refreshRequest struct {
	SessionID    string `json:"session_id,omitempty"`
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type patRequest struct {
	ExpiresInMinutes int `json:"expires_in_minutes"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	SessionID        string    `json:"session_id"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type patResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	ID         string     `json:"id"`
	DeviceInfo string     `json:"device_info,omitempty"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Current    bool       `json:"current"`
}

type decisionResponse struct {
	Decision string `json:"decision"`
	OwnerID  string `json:"owner_id"`
	Action   string `json:"action"`
}

func toUserResponse(u *repository.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Role: u.Role.String(), CreatedAt: u.CreatedAt}
}

// ─────────────── Handlers ───────────────

type handlers struct {
	auth   *authn.Service
	policy *authz.Policy
	health func(ctx context.Context) error
	now    func() time.Time
}

func (h *handlers) tokenResponse(p authn.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        p.TokenType,
		ExpiresIn:        p.ExpiresIn(h.now()),
		SessionID:        p.SessionID,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

// POST /v1/auth/register
func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := ReadJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		WriteError(w, ErrMissingFields.WithDetail("username and password are required"))
		return
	}
	u, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toUserResponse(u))
}

// POST /v1/auth/login
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := ReadJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		WriteError(w, ErrMissingFields.WithDetail("username and password are required"))
		return
	}
	device := req.Device
	if device == "" {
		device = r.UserAgent()
	}
	pair, err := h.auth.Login(r.Context(), req.Username, req.Password, device)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.tokenResponse(pair))
}

// POST /v1/auth/refresh
func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := ReadJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		WriteError(w, ErrMissingFields.WithDetail("refresh_token is required"))
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.SessionID, req.RefreshToken)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.tokenResponse(pair))
}

// POST /v1/auth/logout
// Con bearer de sesión revoca esa sesión; sin bearer acepta el refresh token
// en el body.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if raw := authn.ExtractBearer(r.Header.Get("Authorization")); raw != "" {
		id, err := h.auth.AuthenticateRequest(r.Context(), raw)
		if err != nil {
			WriteError(w, err)
			return
		}
		if id.SessionID == "" {
			WriteError(w, autherr.ErrInvalidRequest)
			return
		}
		if err := h.auth.Logout(r.Context(), id.SessionID); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req logoutRequest
	if err := ReadJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		WriteError(w, autherr.ErrUnauthenticated)
		return
	}
	if err := h.auth.LogoutWithToken(r.Context(), req.RefreshToken); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/auth/logout-all
func (h *handlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	n, err := h.auth.LogoutAll(r.Context(), id.SubjectID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

// POST /v1/auth/pat
func (h *handlers) personalToken(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req patRequest
	if r.ContentLength != 0 {
		if err := ReadJSON(w, r, &req); err != nil {
			WriteError(w, err)
			return
		}
	}
	pat, err := h.auth.IssuePersonalToken(r.Context(), id, req.ExpiresInMinutes)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, patResponse{Token: pat.Token, TokenType: "Bearer", ExpiresAt: pat.ExpiresAt})
}

// POST /v1/auth/password
func (h *handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req changePasswordRequest
	if err := ReadJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		WriteError(w, ErrMissingFields.WithDetail("current_password and new_password are required"))
		return
	}
	if err := h.auth.ChangePassword(r.Context(), id.SubjectID, req.CurrentPassword, req.NewPassword); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/me
func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	u, err := h.auth.User(r.Context(), id.SubjectID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toUserResponse(u))
}

// GET /v1/me/sessions
func (h *handlers) mySessions(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	list, err := h.auth.ListSessions(r.Context(), id.SubjectID)
	if err != nil {
		WriteError(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, sessionResponse{
			ID:         s.ID,
			DeviceInfo: s.DeviceInfo,
			IssuedAt:   s.IssuedAt,
			ExpiresAt:  s.ExpiresAt,
			LastUsedAt: s.LastUsedAt,
			Current:    s.ID == id.SessionID,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

// GET /v1/users/{ownerID}/resources-check?action=read
// Evalúa la política para el recurso de ownerID sin tocarlo.
func (h *handlers) accessCheck(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	ownerID := chi.URLParam(r, "ownerID")
	action := types.Action(strings.ToLower(r.URL.Query().Get("action")))
	if action == "" {
		action = types.ActionRead
	}
	switch action {
	case types.ActionRead, types.ActionCreate, types.ActionUpdate, types.ActionDelete:
	default:
		WriteError(w, autherr.ErrInvalidRequest)
		return
	}
	if err := h.policy.Require(id, ownerID, action); err != nil {
		logger.From(r.Context()).Info("access denied",
			logger.Role(id.Role.String()),
			logger.String("owner_id", ownerID),
			logger.String("action", string(action)),
		)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, decisionResponse{Decision: authz.Allow.String(), OwnerID: ownerID, Action: string(action)})
}

// GET /healthz
func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			logger.From(r.Context()).Warn("health check failed", logger.Err(err))
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
