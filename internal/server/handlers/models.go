package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/coresolutiondoteu/open-webui/internal/models"
	"github.com/coresolutiondoteu/open-webui/pkg/api"
)

// LaunchError marks a switch that failed while starting the new model.
type LaunchError struct {
	Model string
	Err   error
}

func (e *LaunchError) Error() string { return "launch " + e.Model + ": " + e.Err.Error() }
func (e *LaunchError) Unwrap() error { return e.Err }

// ConfigHandler handles GET /config.json.
type ConfigHandler struct {
	LoadFunc func() (*api.ModelConfig, error)
}

func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.LoadFunc()
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("load model config")
		writeError(w, http.StatusInternalServerError, "config_error", "model config unavailable")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// SwitchHandler handles POST /api/switch_model?model=<name>.
type SwitchHandler struct {
	SwitchFunc func(ctx context.Context, model string) (string, error)
}

func (h *SwitchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	if model == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "model query parameter is required")
		return
	}

	msg, err := h.SwitchFunc(r.Context(), model)
	if err != nil {
		var launchErr *LaunchError
		switch {
		case stderrors.Is(err, models.ErrModelNotFound):
			writeError(w, http.StatusNotFound, "model_not_found", "Error: Model not found")
		case stderrors.As(err, &launchErr):
			writeError(w, http.StatusInternalServerError, "launch_error", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "switch_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, api.SwitchResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, api.ErrorResponse{
		Error: api.ErrorDetail{
			Message: message,
			Type:    errType,
		},
	})
}
