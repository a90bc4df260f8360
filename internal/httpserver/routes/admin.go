package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/serpwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/serpwatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/serpwatch/internal/httpserver/mw"
)

func init() { Register(registerAdmin) }

func registerAdmin(r chi.Router, d deps.Deps) {
	if d.Admin == nil {
		return
	}
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
		r.Use(mw.RateLimit(mw.RateLimitConfig{
			Burst:             d.AdminRateBurst,
			RefillPerIPPerMin: d.AdminRatePerMin,
			MaxEntries:        10000,
			TrustProxy:        d.TrustProxy,
		}))

		r.Get("/status", handlers.AdminStatus(d))

		r.Post("/auto-check/run", handlers.RunAutoCheck(d))
		r.Post("/auto-check/stop", handlers.StopAutoCheck(d))

		r.Patch("/settings/schedule", handlers.UpdateSchedule(d))
		r.Patch("/settings/backup", handlers.UpdateBackup(d))

		r.Post("/backup/run", handlers.RunBackup(d))
		r.Post("/backup/test-telegram", handlers.TestTelegram(d))

		r.Get("/keys", handlers.ListKeys(d))
		r.Post("/keys", handlers.AddKey(d))
		r.Patch("/keys/{id}", handlers.UpdateKey(d))

		r.Post("/catalog/reload", handlers.Reload(d))
	})
}
