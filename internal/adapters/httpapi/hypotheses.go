package httpapi

import (
	"net/http"

	"hadilab/internal/core"
	"hadilab/pkg/domain"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.ListUsers(r.Context(), actorFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type userRequest struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Email  string            `json:"email"`
	Role   domain.Role       `json:"role"`
	Status domain.UserStatus `json:"status"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := h.Service.CreateUser(r.Context(), actorFrom(r), core.User{
		Base:   core.Base{ID: req.ID},
		Name:   req.Name,
		Email:  req.Email,
		Role:   req.Role,
		Status: req.Status,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (h *Handler) handleListIdeas(w http.ResponseWriter, r *http.Request) {
	ideas, err := h.Service.ListIdeas(r.Context(), actorFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ideas": ideas})
}

type ideaRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *Handler) handleCreateIdea(w http.ResponseWriter, r *http.Request) {
	var req ideaRequest
	if !decode(w, r, &req) {
		return
	}
	idea, err := h.Service.CreateIdea(r.Context(), actorFrom(r), core.Idea{Title: req.Title, Description: req.Description})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"idea": idea})
}

func (h *Handler) handleGetIdea(w http.ResponseWriter, r *http.Request) {
	idea, err := h.Service.GetIdea(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"idea": idea})
}

func (h *Handler) handleDeleteIdea(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteIdea(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListHypotheses(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListHypotheses(r.Context(), actorFrom(r), r.URL.Query().Get("idea_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hypotheses": list})
}

type hypothesisRequest struct {
	IdeaID    string `json:"idea_id"`
	Title     string `json:"title"`
	Statement string `json:"statement"`
}

func (h *Handler) handleCreateHypothesis(w http.ResponseWriter, r *http.Request) {
	var req hypothesisRequest
	if !decode(w, r, &req) {
		return
	}
	hyp, err := h.Service.CreateHypothesis(r.Context(), actorFrom(r), core.Hypothesis{
		IdeaID:    req.IdeaID,
		Title:     req.Title,
		Statement: req.Statement,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"hypothesis": hyp})
}

func (h *Handler) handleGetHypothesis(w http.ResponseWriter, r *http.Request) {
	hyp, err := h.Service.GetHypothesis(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hypothesis": hyp})
}

func (h *Handler) handleDeleteHypothesis(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteHypothesis(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	Level  domain.Level `json:"level"`
	Stage  domain.Stage `json:"stage"`
	Reason string       `json:"reason"`
}

func (h *Handler) handleRequestTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	hyp, err := h.Service.RequestTransition(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Level, req.Stage, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hypothesis": hyp})
}

func (h *Handler) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.ListTransitions(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": rows})
}

func (h *Handler) handleAddIceScore(w http.ResponseWriter, r *http.Request) {
	var req core.IceInputs
	if !decode(w, r, &req) {
		return
	}
	score, err := h.Service.AddIceScore(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ice_score": score})
}

func (h *Handler) handleListIceScores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.Service.ListIceScores(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ice_scores": scores})
}

func (h *Handler) handleIceSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.IceSummary(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (h *Handler) handleUpdateRice(w http.ResponseWriter, r *http.Request) {
	var req core.RiceInputs
	if !decode(w, r, &req) {
		return
	}
	hyp, err := h.Service.UpdateRiceScore(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hypothesis": hyp})
}

func (h *Handler) handleUpdateDeskResearch(w http.ResponseWriter, r *http.Request) {
	var req core.DeskResearchInput
	if !decode(w, r, &req) {
		return
	}
	hyp, err := h.Service.UpdateDeskResearch(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hypothesis": hyp})
}

type criteriaRequest struct {
	Criteria []core.SuccessCriterionInput `json:"criteria"`
}

func (h *Handler) handleReplaceCriteria(owner domain.OwnerType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req criteriaRequest
		if !decode(w, r, &req) {
			return
		}
		rows, err := h.Service.ReplaceSuccessCriteria(r.Context(), actorFrom(r),
			core.CriteriaOwner{Type: owner, ID: chi.URLParam(r, "id")}, req.Criteria)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success_criteria": rows})
	}
}

func (h *Handler) handleListCriteria(owner domain.OwnerType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := h.Service.ListSuccessCriteria(r.Context(), actorFrom(r),
			core.CriteriaOwner{Type: owner, ID: chi.URLParam(r, "id")})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success_criteria": rows})
	}
}
