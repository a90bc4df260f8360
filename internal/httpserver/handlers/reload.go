package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/serpwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/utils"
)

// Reload triggers a manual reload of the catalog file.
func Reload(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := utils.ClientIP(r, d.TrustProxy)
		if d.ReloadTrigger == nil {
			writeMessage(w, d, http.StatusNotFound, "catalog file not configured")
			return
		}

		select {
		case d.ReloadTrigger <- struct{}{}:
			d.Logger.Info("manual catalog reload triggered via endpoint",
				logger.String("remote_ip", ip))
			writeMessage(w, d, http.StatusAccepted, "reload triggered")
		default:
			d.Logger.Warn("catalog reload already in progress",
				logger.String("remote_ip", ip))
			writeMessage(w, d, http.StatusTooManyRequests, "reload already in progress, please wait")
		}
	}
}
