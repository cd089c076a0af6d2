package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/handler"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/middleware"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/response"
	logging "github.com/reaandrew/snakes-and-ladders-sub000/internal/middleware"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/game"
)

// HealthCheck reports whether a backing dependency is reachable
type HealthCheck func(ctx context.Context) error

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger         *slog.Logger
	GameController *game.Controller
	// StorageType is reported by the health check
	StorageType string
	// StorageHealth is optional
	StorageHealth HealthCheck
}

// Register mounts the REST API under /api/v1 on r
func Register(r *mux.Router, cfg RouterConfig) {
	gameHandler := handler.NewGameHandler(cfg.GameController)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(logging.Logging(cfg.Logger))

	api.HandleFunc("/games", gameHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/games/{code}", gameHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/games/{code}/moves", gameHandler.Moves).Methods(http.MethodGet)

	api.HandleFunc("/health", healthHandler(cfg)).Methods(http.MethodGet)
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	Register(r, cfg)
	return r
}

func healthHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := response.HealthResponse{Status: "ok", Storage: cfg.StorageType}
		if cfg.StorageHealth != nil {
			if err := cfg.StorageHealth(r.Context()); err != nil {
				cfg.Logger.Warn("storage health check failed", slog.String("error", err.Error()))
				resp.Status = "degraded"
				response.JSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}
		response.JSON(w, http.StatusOK, resp)
	}
}
