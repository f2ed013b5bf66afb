// Package api provides HTTP routing for the status server.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/syncwatch/backend/internal/api/handlers"
	"github.com/syncwatch/backend/internal/api/middleware"
	"github.com/syncwatch/backend/internal/storage"
	"github.com/syncwatch/backend/internal/websocket"
)

// StatusCacheTTL is how long a /api/status response is served from cache.
const StatusCacheTTL = 30 * time.Second

// Deps holds the components the status server reads from. Alerts and Hub may be nil.
type Deps struct {
	Store     storage.SnapshotStore
	Alerts    storage.AlertLog
	Sweeps    handlers.SweepStatus
	Hub       *websocket.Hub
	OutputDir string
	Log       logrus.FieldLogger
}

// NewRouter creates the read-only status router: health text on / and
// /health, JSON status and the event stream under /api, and the generated
// calendar files on every other path.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging(deps.Log))
	r.Use(middleware.ErrorRecovery(deps.Log))

	health := handlers.HealthCheck(deps.Sweeps)
	r.HandleFunc("/", health).Methods("GET", "HEAD")
	r.HandleFunc("/health", health).Methods("GET", "HEAD")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.RateLimit(rate.Limit(10), 20))

	statusCache := cache.New(StatusCacheTTL, 2*StatusCacheTTL)
	status := handlers.Status(deps.Store, deps.Alerts, deps.Sweeps, deps.Log)
	api.Handle("/status", middleware.Cache(statusCache, StatusCacheTTL)(status)).Methods("GET")

	if deps.Hub != nil {
		api.HandleFunc("/ws", handlers.WebSocketUpgrade(deps.Hub, deps.Log)).Methods("GET")
	}

	// Generated .ics artifacts
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(deps.OutputDir)))

	return r
}
