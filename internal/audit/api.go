package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medwatch/platform/internal/identity"
	"github.com/medwatch/platform/internal/shared/auth"
	apperrors "github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// ChainVerifier verifies the integrity of the audit chain
type ChainVerifier interface {
	VerifyChain(ctx context.Context, limit int) (*VerifyResult, error)
}

// Handler provides HTTP handlers for the audit trail
type Handler struct {
	repo     Repository
	verifier ChainVerifier
	resolver *identity.Resolver
}

// NewHandler creates a new audit handler
func NewHandler(repo Repository, verifier ChainVerifier, resolver *identity.Resolver) *Handler {
	return &Handler{repo: repo, verifier: verifier, resolver: resolver}
}

// Routes registers the audit routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListEntries)
	r.Get("/verify", h.VerifyChain)

	return r
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	if err := h.requireSupervisor(r); err != nil {
		writeError(w, err)
		return
	}

	filter := ListFilter{
		Operation: r.URL.Query().Get("operation"),
	}

	if s := r.URL.Query().Get("report_id"); s != "" {
		id, err := types.ParseID(s)
		if err != nil {
			writeError(w, apperrors.BadRequest("invalid report ID"))
			return
		}
		filter.ReportID = &id
	}

	if s := r.URL.Query().Get("actor_id"); s != "" {
		id, err := types.ParseID(s)
		if err != nil {
			writeError(w, apperrors.BadRequest("invalid actor ID"))
			return
		}
		filter.ActorID = &id
	}

	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, apperrors.BadRequest("invalid from timestamp"))
			return
		}
		filter.StartTime = &t
	}

	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, apperrors.BadRequest("invalid to timestamp"))
			return
		}
		filter.EndTime = &t
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Limit = n
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Offset = n
		}
	}

	entries, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": total,
	})
}

func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	if err := h.requireSupervisor(r); err != nil {
		writeError(w, err)
		return
	}

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	result, err := h.verifier.VerifyChain(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ReportTrail serves one report's audit trail; mounted under the report
// routes.
func (h *Handler) ReportTrail(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid report ID"))
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	entries, err := h.repo.ByReport(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": len(entries),
	})
}

// requireSupervisor gates the cross-report views to supervisors and admins.
func (h *Handler) requireSupervisor(r *http.Request) error {
	caller := auth.GetIdentity(r.Context())
	if caller == nil {
		return apperrors.Unauthorized("authentication required")
	}

	role, err := h.resolver.ResolveRole(r.Context(), caller.ID)
	if err != nil {
		return err
	}
	if role != identity.RoleSupervisor && role != identity.RoleAdmin {
		return apperrors.Forbidden("audit trail access requires a supervisor role")
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
