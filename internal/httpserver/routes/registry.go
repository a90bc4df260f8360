package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/serpwatch/internal/httpserver/deps"
)

type (
	// Registrar mounts one group of endpoints (probes, metrics, admin API).
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type route struct {
	mount  Registrar
	guards []Middleware
}

// routes is filled by the init functions of this package.
var routes []route

// Register queues a group of endpoints. guards wrap that group only.
func Register(mount Registrar, guards ...Middleware) {
	routes = append(routes, route{mount: mount, guards: guards})
}

// RegisterAll mounts every queued group on r. The server calls it once.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, rt := range routes {
		if len(rt.guards) == 0 {
			rt.mount(r, d)
			continue
		}
		rt.mount(r.With(rt.guards...), d)
	}
}
