package factory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/dependencies/random"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/events"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/broadcast"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/dispatch"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/game"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/registry"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/storage"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/storage/memory"
	redisstorage "github.com/reaandrew/snakes-and-ladders-sub000/internal/storage/redis"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/web"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/web/poll"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/web/ws"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage     storage.Storage
	StorageType string

	// External dependencies
	Clock     clockwork.Clock
	Random    random.Random
	Publisher events.Publisher

	// Services
	GameController *game.Controller
	Registry       *registry.Registry
	Broadcast      *broadcast.Service
	Dispatcher     *dispatch.Dispatcher

	// Realtime transports
	Hub  *ws.Hub
	Poll *poll.Server

	cfg    Config
	logger *slog.Logger
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// EventsConfig enables the NATS event publisher when set
	EventsConfig *events.Config

	// Component settings; zero values fall back to each package's defaults
	Game      game.Config
	Registry  registry.Config
	Broadcast broadcast.Config
	Socket    ws.Config
	Polling   poll.Config

	// AllowedOrigins is the CORS allow list; empty allows any origin
	AllowedOrigins []string
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Create storage based on type
	var store storage.Storage
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.EventsConfig != nil {
		natsPublisher, err := events.NewNATSPublisher(*cfg.EventsConfig, logger)
		if err != nil {
			closeQuietly(store)
			return nil, err
		}
		publisher = natsPublisher
	}

	cfg.StorageType = storageType
	return newWithDependencies(store, clockwork.NewRealClock(), random.New(), publisher, cfg, logger), nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	clk clockwork.Clock,
	rnd random.Random,
	publisher events.Publisher,
	cfg Config,
	logger *slog.Logger,
) *App {
	cfg = withDefaults(cfg)

	gameController := game.NewController(store, clk, rnd, publisher, cfg.Game, logger)
	connRegistry := registry.New(store, clk, rnd, cfg.Registry, logger)
	broadcaster := broadcast.New(connRegistry, cfg.Broadcast, logger)
	dispatcher := dispatch.New(gameController, connRegistry, broadcaster, logger)

	hub := ws.NewHub(connRegistry, dispatcher, cfg.Socket, logger)
	pollServer := poll.NewServer(connRegistry, dispatcher, clk, cfg.Polling, logger)

	broadcaster.RegisterSender(model.TransportSocket, hub)
	broadcaster.RegisterSender(model.TransportPolling, pollServer)

	return &App{
		Storage:        store,
		StorageType:    cfg.StorageType,
		Clock:          clk,
		Random:         rnd,
		Publisher:      publisher,
		GameController: gameController,
		Registry:       connRegistry,
		Broadcast:      broadcaster,
		Dispatcher:     dispatcher,
		Hub:            hub,
		Poll:           pollServer,
		cfg:            cfg,
		logger:         logger,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.StorageType == "" {
		cfg.StorageType = StorageTypeMemory
	}
	if cfg.Game.MoveHistoryLimit == 0 {
		cfg.Game = game.DefaultConfig()
	}
	if cfg.Registry.PollingTTL == 0 {
		cfg.Registry = registry.DefaultConfig()
	}
	if cfg.Broadcast.Concurrency == 0 {
		cfg.Broadcast = broadcast.DefaultConfig()
	}
	if cfg.Socket.PongWait == 0 {
		cfg.Socket = ws.DefaultConfig()
	}
	if cfg.Polling.PollTimeout == 0 {
		cfg.Polling = poll.DefaultConfig()
	}
	return cfg
}

// Handler combines the REST API and the realtime endpoints behind CORS
func (a *App) Handler() http.Handler {
	r := mux.NewRouter()

	api.Register(r, api.RouterConfig{
		Logger:         a.logger,
		GameController: a.GameController,
		StorageType:    a.StorageType,
		StorageHealth:  a.storageHealth(),
	})
	web.Register(r, web.RouterConfig{
		Logger: a.logger,
		Hub:    a.Hub,
		Poll:   a.Poll,
	})

	origins := a.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"Content-Type", protocol.ConnectionIDHeader},
	})
	return c.Handler(r)
}

// storageHealth returns a health check when the store can be pinged
func (a *App) storageHealth() api.HealthCheck {
	pinger, ok := a.Storage.(interface{ Ping(ctx context.Context) error })
	if !ok {
		return nil
	}
	return pinger.Ping
}

// Run sweeps expired polling connections until ctx is cancelled
func (a *App) Run(ctx context.Context) {
	a.Poll.Run(ctx)
}

// Close drops every realtime client and releases external connections
func (a *App) Close() error {
	a.Hub.Close()
	a.Poll.Close()

	var errs []error
	if c, ok := a.Publisher.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := a.Storage.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func closeQuietly(store storage.Storage) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}
