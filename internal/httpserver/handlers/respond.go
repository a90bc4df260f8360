package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrSnakeDoc/serpwatch/internal/admin"
	"github.com/MrSnakeDoc/serpwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/scheduler"
	"github.com/MrSnakeDoc/serpwatch/internal/settings"
	"github.com/MrSnakeDoc/serpwatch/internal/telegram"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, d deps.Deps, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		d.Logger.Debug("failed to write response", logger.Error(err))
	}
}

func writeMessage(w http.ResponseWriter, d deps.Deps, code int, msg string) {
	writeJSON(w, d, code, errorResponse{Message: msg})
}

// writeError maps service errors to status codes. Unknown errors are logged
// and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, d deps.Deps, err error) {
	var verr *admin.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, d, http.StatusBadRequest, errorResponse{Message: verr.Error(), Field: verr.Field})
	case errors.Is(err, errBadBody), errors.Is(err, telegram.ErrNotConfigured):
		writeMessage(w, d, http.StatusBadRequest, err.Error())
	case errors.Is(err, scheduler.ErrAlreadyRunning), errors.Is(err, admin.ErrIntervalChangeWhileEnabled):
		writeMessage(w, d, http.StatusConflict, err.Error())
	case errors.Is(err, admin.ErrKeyNotFound), errors.Is(err, settings.ErrNotFound):
		writeMessage(w, d, http.StatusNotFound, err.Error())
	default:
		d.Logger.Error("admin request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
		writeMessage(w, d, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

var errBadBody = errors.New("invalid request body")

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}
