package web

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	apimiddleware "github.com/reaandrew/snakes-and-ladders-sub000/internal/api/middleware"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/middleware"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/web/poll"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/web/ws"
)

// RouterConfig holds configuration for the realtime router
type RouterConfig struct {
	Logger *slog.Logger
	Hub    *ws.Hub
	Poll   *poll.Server
}

// Register mounts the realtime endpoints on r:
//
//	GET  /ws               persistent socket
//	POST /poll/connect     polling handshake
//	GET  /poll/messages    long poll
//	POST /poll/send        action, reply in the body
//	POST /poll/disconnect  best-effort cleanup
func Register(r *mux.Router, cfg RouterConfig) {
	realtime := r.NewRoute().Subrouter()
	realtime.Use(apimiddleware.Recovery(cfg.Logger))
	realtime.Use(middleware.Logging(cfg.Logger))

	realtime.Handle("/ws", cfg.Hub).Methods(http.MethodGet)

	polling := realtime.PathPrefix("/poll").Subrouter()
	polling.HandleFunc("/connect", cfg.Poll.Connect).Methods(http.MethodPost)
	polling.HandleFunc("/messages", cfg.Poll.Messages).Methods(http.MethodGet)
	polling.HandleFunc("/send", cfg.Poll.SendAction).Methods(http.MethodPost)
	polling.HandleFunc("/disconnect", cfg.Poll.Disconnect).Methods(http.MethodPost)
}

// NewRouter creates a router serving only the realtime endpoints
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	Register(r, cfg)
	return r
}
