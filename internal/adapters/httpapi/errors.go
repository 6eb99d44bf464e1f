package httpapi

import (
	"errors"
	"net/http"

	"hadilab/pkg/domain"
)

type errorResponse struct {
	Error     string                 `json:"error"`
	Kind      domain.Kind            `json:"kind"`
	Retryable bool                   `json:"retryable,omitempty"`
	Entity    domain.EntityType      `json:"entity,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Gate      domain.Gate            `json:"gate,omitempty"`
	Current   *domain.LifecycleState `json:"current,omitempty"`
	Attempted *domain.Position       `json:"attempted,omitempty"`
}

// statusFor maps an error kind onto its HTTP status.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindIllegalTransition:
		return http.StatusConflict
	case domain.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case domain.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders a service failure. Store failures never expose
// their cause.
func writeServiceError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	resp := errorResponse{Error: err.Error(), Kind: kind, Retryable: domain.Retryable(err)}
	status := statusFor(kind)

	var perr *domain.PermissionError
	var derr *domain.Error
	switch {
	case errors.As(err, &perr):
		if perr.Status != 0 {
			status = perr.Status
		}
		if perr.Resource != nil {
			resp.Entity = perr.Resource.Type
			resp.ID = perr.Resource.ID
		}
	case errors.As(err, &derr):
		resp.Entity = derr.Entity
		resp.ID = derr.ID
		resp.Gate = derr.Gate
		resp.Current = derr.Current
		resp.Attempted = derr.Attempted
	}
	if kind == domain.KindStoreFailure {
		resp = errorResponse{Error: "internal storage failure", Kind: kind, Retryable: resp.Retryable}
	}
	writeJSON(w, status, resp)
}
