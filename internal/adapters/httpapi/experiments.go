package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"hadilab/internal/core"
	"hadilab/pkg/domain"

	"github.com/go-chi/chi/v5"
)

type experimentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *Handler) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req experimentRequest
	if !decode(w, r, &req) {
		return
	}
	exp, err := h.Service.CreateExperiment(r.Context(), actorFrom(r), core.Experiment{
		HypothesisID: chi.URLParam(r, "id"),
		Title:        req.Title,
		Description:  req.Description,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"experiment": exp})
}

func (h *Handler) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListExperiments(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiments": list})
}

func (h *Handler) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := h.Service.GetExperiment(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiment": exp})
}

type experimentStatusRequest struct {
	Status domain.ExperimentStatus `json:"status"`
}

func (h *Handler) handleExperimentStatus(w http.ResponseWriter, r *http.Request) {
	var req experimentStatusRequest
	if !decode(w, r, &req) {
		return
	}
	exp, err := h.Service.UpdateExperimentStatus(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiment": exp})
}

type resultRequest struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	Notes  string  `json:"notes"`
}

func (h *Handler) handleRecordExperimentResult(w http.ResponseWriter, r *http.Request) {
	var req resultRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Service.RecordExperimentResult(r.Context(), actorFrom(r), chi.URLParam(r, "id"), core.ExperimentResultInput{
		Metric: req.Metric,
		Value:  req.Value,
		Unit:   req.Unit,
		Notes:  req.Notes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"result": res})
}

func (h *Handler) handleListExperimentResults(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.ListExperimentResults(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": rows})
}

func (h *Handler) handleListActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.Service.ListActivities(r.Context(), actorFrom(r), core.ActivityFilter{
		EntityType: core.EntityType(q.Get("entity_type")),
		EntityID:   q.Get("entity_id"),
		ActorID:    q.Get("actor_id"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": rows})
}

func (h *Handler) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	info, err := h.Service.ExportHistory(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"export": info})
}

func (h *Handler) handleListHistoryExports(w http.ResponseWriter, r *http.Request) {
	infos, err := h.Service.ListHistoryExports(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": infos})
}

func (h *Handler) handleGetHistoryExport(w http.ResponseWriter, r *http.Request) {
	info, body, err := h.Service.GetHistoryExport(r.Context(), actorFrom(r), chi.URLParam(r, "*"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer func() { _ = body.Close() }()
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if info.ETag != "" {
		w.Header().Set("ETag", info.ETag)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}
