package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medwatch/platform/internal/report/domain"
	"github.com/medwatch/platform/internal/report/workflow"
	"github.com/medwatch/platform/internal/shared/auth"
	"github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the report module
type Handler struct {
	engine *workflow.Engine
}

// NewHandler creates a new report handler
func NewHandler(engine *workflow.Engine) *Handler {
	return &Handler{engine: engine}
}

// Routes registers the report routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListReports)
	r.Post("/", h.CreateReport)

	r.Route("/{reportID}", func(r chi.Router) {
		r.Get("/", h.GetReport)

		// Review pipeline
		r.Post("/start-review", h.StartReview)
		r.Post("/request-info", h.RequestAdditionalInfo)
		r.Post("/provide-info", h.ProvideAdditionalInfo)
		r.Post("/approve", h.ApproveReport)
		r.Post("/reject", h.RejectReport)

		// Reclamation
		r.Post("/reclaim", h.StartReclamation)
		r.Post("/reclamation/approve", h.ApproveReclamation)
		r.Post("/reclamation/reject", h.RejectReclamation)

		// Supervision
		r.Post("/revert", h.RevertStatus)
		r.Post("/assign", h.AssignReviewer)

		// Messaging
		r.Post("/messages", h.SendMessage)
		r.Post("/chat/close", h.CloseChat)
	})

	return r
}

// --- Request types ---

type CreateReportRequest struct {
	MedicationName string          `json:"medication_name"`
	Description    string          `json:"description"`
	Severity       domain.Severity `json:"severity"`
}

type RequestInfoRequest struct {
	Request string `json:"request"`
}

type ProvideInfoRequest struct {
	AdditionalInfo string `json:"additional_info"`
}

type ReclaimRequest struct {
	Reason string `json:"reason"`
}

type RevertRequest struct {
	TargetStatus domain.Status `json:"target_status"`
	Reason       string        `json:"reason"`
}

type AssignReviewerRequest struct {
	ReviewerID types.ID `json:"reviewer_id"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

// --- Handlers ---

func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	filter := domain.Filter{}

	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.Status(s)
		if !status.IsValid() {
			writeError(w, errors.BadRequest("unknown status filter"))
			return
		}
		filter.Status = &status
	}

	if rep := r.URL.Query().Get("reporter_id"); rep != "" {
		id, err := types.ParseID(rep)
		if err != nil {
			writeError(w, errors.BadRequest("invalid reporter ID"))
			return
		}
		filter.ReporterID = &id
	}

	if rev := r.URL.Query().Get("reviewer_id"); rev != "" {
		id, err := types.ParseID(rev)
		if err != nil {
			writeError(w, errors.BadRequest("invalid reviewer ID"))
			return
		}
		filter.AssignedReviewerID = &id
	}

	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, errors.BadRequest("invalid from timestamp"))
			return
		}
		filter.From = &t
	}

	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, errors.BadRequest("invalid to timestamp"))
			return
		}
		filter.To = &t
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			writeError(w, errors.BadRequest("invalid limit"))
			return
		}
		filter.Limit = n
	}

	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			writeError(w, errors.BadRequest("invalid offset"))
			return
		}
		filter.Offset = n
	}

	reports, total, err := h.engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if reports == nil {
		reports = []*domain.Report{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  reports,
		"total": total,
	})
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(w, r)
	if !ok {
		return
	}

	rep, err := h.engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	var req CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	rep, err := h.engine.Create(r.Context(), actor, workflow.CreateInput{
		MedicationName: req.MedicationName,
		Description:    req.Description,
		Severity:       req.Severity,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rep)
}

func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor, id types.ID) (*domain.Report, error) {
		return h.engine.StartReview(r.Context(), actor, id)
	})
}

func (h *Handler) RequestAdditionalInfo(w http.ResponseWriter, r *http.Request) {
	var req RequestInfoRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}

	h.transition(w, r, func(actor, id types.ID) (*domain.Report, error) {
		return h.engine.RequestAdditionalInfo(r.Context(), actor, id, req.Request)
	})
}

func (h *Handler) ProvideAdditionalInfo(w http.ResponseWriter, r *http.Request) {
	var req ProvideInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	h.transition(w, r, func(actor, id types.ID) (*domain.Report, error) {
		return h.engine.ProvideAdditionalInfo(r.Context(), actor, id, req.AdditionalInfo)
	})
}

func (h *Handler) ApproveReport(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor, id types.ID) (*domain.Report, error) {
		return h.engine.ApproveReport(r.Context(), actor, id)
	})
}

func (h *Handler) RejectReport(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor, id types.ID) (*domain.Report, error) {
		return h.engine.RejectReport(r.Context(), actor, id)
	})
}

func (h *Handler) StartReclamation(w http.ResponseWriter, r *http.Request) {
	var req ReclaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	h.transition(w, r, func(actor, id types.ID) (*domain.Report, error) {
		return h.engine.StartReclamation(r.Context(), actor, id, req.Reason)
	})
}

func (h *Handler) ApproveReclamation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor, id types.ID) (*domain.Report, error) {
		return h.engine.ApproveReclamation(r.Context(), actor, id)
	})
}

func (h *Handler) RejectReclamation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor, id types.ID) (*domain.Report, error) {
		return h.engine.RejectReclamation(r.Context(), actor, id)
	})
}

func (h *Handler) RevertStatus(w http.ResponseWriter, r *http.Request) {
	var req RevertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	h.transition(w, r, func(actor, id types.ID) (*domain.Report, error) {
		return h.engine.RevertStatus(r.Context(), actor, id, req.TargetStatus, req.Reason)
	})
}

func (h *Handler) AssignReviewer(w http.ResponseWriter, r *http.Request) {
	var req AssignReviewerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	h.transition(w, r, func(actor, id types.ID) (*domain.Report, error) {
		return h.engine.AssignReviewer(r.Context(), actor, id, req.ReviewerID)
	})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	h.transition(w, r, func(actor, id types.ID) (*domain.Report, error) {
		return h.engine.SendMessage(r.Context(), actor, id, req.Text)
	})
}

func (h *Handler) CloseChat(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor, id types.ID) (*domain.Report, error) {
		return h.engine.CloseChat(r.Context(), actor, id)
	})
}

// --- Helpers ---

// transition runs one workflow operation and writes the full updated
// report back, so clients never need a follow-up GET.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, run func(actor, id types.ID) (*domain.Report, error)) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	id, ok := reportID(w, r)
	if !ok {
		return
	}

	rep, err := run(actor, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

func actorID(w http.ResponseWriter, r *http.Request) (types.ID, bool) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return types.ID(""), false
	}
	return identity.ID, true
}

func reportID(w http.ResponseWriter, r *http.Request) (types.ID, bool) {
	id, err := types.ParseID(chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid report ID"))
		return types.ID(""), false
	}
	return id, true
}

// decodeOptional tolerates an empty body for operations whose payload is
// entirely optional.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.BadRequest("invalid request body")
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

	if appErr, ok := err.(*errors.AppError); ok {
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
