package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
)

const readinessTimeout = 2 * time.Second

type componentStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readyzResponse struct {
	Ready      bool                       `json:"ready"`
	Components map[string]componentStatus `json:"components"`
}

// Readyz pings every backing store. Any failure answers 503.
func Readyz(d deps.Deps) http.HandlerFunc {
	names := make([]string, 0, len(d.Readiness))
	for name := range d.Readiness {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyzResponse{Ready: true, Components: make(map[string]componentStatus, len(names))}
		for _, name := range names {
			status := check(r.Context(), d.Readiness[name])
			if !status.OK {
				resp.Ready = false
				d.Logger.Warn("readiness check failed",
					logger.String("component", name),
					logger.String("error", status.Error))
			}
			resp.Components[name] = status
		}

		code := http.StatusOK
		if !resp.Ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, d, code, resp)
	}
}

func check(ctx context.Context, ping deps.Pinger) componentStatus {
	if ping == nil {
		return componentStatus{Error: "client not initialized"}
	}
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	if err := ping(ctx); err != nil {
		return componentStatus{Error: err.Error()}
	}
	return componentStatus{OK: true}
}
