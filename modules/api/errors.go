package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"neon-storyboard-server/modules/common/gemini"
	"neon-storyboard-server/modules/common/utils"
	"neon-storyboard-server/modules/scene"
	"neon-storyboard-server/modules/session"
	"neon-storyboard-server/modules/worker"
	"neon-storyboard-server/modules/workflow"
)

// ErrorResponse - 에러 응답 본문
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Missing int    `json:"missing,omitempty"`
}

// errorStatus maps a domain error to its HTTP status and coarse kind.
func errorStatus(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var authErr *workflow.AuthError
	var confirmErr *workflow.ConfirmationRequiredError
	switch {
	case errors.As(err, &authErr):
		resp.Kind = "auth_failed"
		return http.StatusUnauthorized, resp
	case errors.As(err, &confirmErr):
		resp.Kind = "confirmation_required"
		resp.Missing = confirmErr.Missing
		return http.StatusConflict, resp
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrTransitionPending):
		resp.Kind = "invalid_transition"
		return http.StatusConflict, resp
	case errors.Is(err, session.ErrBusy):
		resp.Kind = "busy"
		return http.StatusConflict, resp
	case errors.Is(err, session.ErrNotGenerating):
		resp.Kind = "not_generating"
		return http.StatusConflict, resp
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, scene.ErrSceneNotFound):
		resp.Kind = "not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, session.ErrNoVideo), errors.Is(err, session.ErrNoPendingRequest):
		resp.Kind = "not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, workflow.ErrEmptyScript), errors.Is(err, scene.ErrInvalidPatch),
		errors.Is(err, utils.ErrUnsupportedImage), errors.Is(err, utils.ErrInvalidDataURI),
		errors.Is(err, errBadRequest):
		resp.Kind = "invalid_request"
		return http.StatusBadRequest, resp
	case errors.Is(err, worker.ErrClosed):
		resp.Kind = "unavailable"
		return http.StatusServiceUnavailable, resp
	case isGatewayError(err):
		resp.Kind = string(gemini.Classify(err))
		return http.StatusBadGateway, resp
	}
	resp.Kind = "internal"
	return http.StatusInternalServerError, resp
}

func isGatewayError(err error) bool {
	var ge *gemini.GatewayError
	if errors.As(err, &ge) {
		return true
	}
	for _, kind := range []error{
		gemini.ErrMalformedResponse, gemini.ErrNoImageData, gemini.ErrNoVideoURI,
		gemini.ErrAuthorization, gemini.ErrTransient, gemini.ErrTimeout,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, body := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Sugar().Warnw("Request failed", "status", status, "kind", body.Kind, "error", err)
	}
	writeJSON(w, status, body)
}
