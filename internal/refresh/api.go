package refresh

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/types"
)

// Handler serves the refresh signal to polling clients
type Handler struct {
	signal *Signal
}

// NewHandler creates a new refresh handler
func NewHandler(signal *Signal) *Handler {
	return &Handler{signal: signal}
}

// Routes registers the refresh routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.GetSignal)
	r.Get("/reports/{reportID}", h.GetReportVersion)

	return r
}

// GetSignal returns the global change counter. Clients compare it against
// the value they last saw and re-fetch only when it moved.
func (h *Handler) GetSignal(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"counter": h.signal.Counter(),
	})
}

// GetReportVersion returns the last seen version of one report.
func (h *Handler) GetReportVersion(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid report ID"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"report_id": id,
		"version":   h.signal.Version(id),
	})
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
			"error": appErr.Message,
			"code":  appErr.Code,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
