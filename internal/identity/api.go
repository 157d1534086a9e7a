package identity

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medwatch/platform/internal/shared/auth"
	apperrors "github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the identity directory
type Handler struct {
	dir      Directory
	resolver *Resolver
}

// NewHandler creates a new identity handler
func NewHandler(dir Directory, resolver *Resolver) *Handler {
	return &Handler{dir: dir, resolver: resolver}
}

// Routes registers the identity routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListUsers)
	r.Post("/", h.CreateUser)
	r.Get("/{userID}", h.GetUser)
	r.Post("/{userID}/role", h.SetRole)

	return r
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

type SetRoleRequest struct {
	Role Role `json:"role"`
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var roleFilter *Role
	if s := r.URL.Query().Get("role"); s != "" {
		role, err := ParseRole(s)
		if err != nil {
			writeError(w, apperrors.BadRequest(err.Error()))
			return
		}
		roleFilter = &role
	}

	users, err := h.dir.List(r.Context(), roleFilter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  users,
		"total": len(users),
	})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid user ID"))
		return
	}

	u, err := h.dir.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if err := h.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if req.Username == "" {
		writeError(w, apperrors.Validation("username is required", map[string]string{"username": "required"}))
		return
	}
	if !req.Role.IsValid() {
		writeError(w, apperrors.Validation("invalid role", map[string]string{"role": "unknown"}))
		return
	}

	now := time.Now().UTC()
	u := &User{
		ID:        types.NewID(),
		Username:  req.Username,
		Role:      req.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.dir.Create(r.Context(), u); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	if err := h.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid user ID"))
		return
	}

	var req SetRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if !req.Role.IsValid() {
		writeError(w, apperrors.Validation("invalid role", map[string]string{"role": "unknown"}))
		return
	}

	if err := h.dir.SetRole(r.Context(), id, req.Role); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.dir.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// requireAdmin resolves the caller's role; directory management is
// ADMIN-only.
func (h *Handler) requireAdmin(r *http.Request) error {
	ident := auth.GetIdentity(r.Context())
	if ident == nil {
		return apperrors.Unauthorized("authentication required")
	}

	role, err := h.resolver.ResolveRole(r.Context(), ident.ID)
	if err != nil {
		return err
	}
	if role != RoleAdmin {
		return apperrors.Forbidden("directory management requires the ADMIN role")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*apperrors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
