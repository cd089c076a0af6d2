package factory

import (
	"log/slog"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/config"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/events"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/broadcast"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/game"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/registry"
	redisstorage "github.com/reaandrew/snakes-and-ladders-sub000/internal/storage/redis"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/web/poll"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/web/ws"
)

// ConfigFrom maps loaded server configuration onto the factory Config
func ConfigFrom(c *config.Config, logger *slog.Logger) Config {
	out := Config{
		Logger:         logger,
		StorageType:    c.Storage.Type,
		AllowedOrigins: c.CORS.AllowedOrigins,
	}

	if c.Storage.Type == config.StorageTypeRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.Storage.RedisURL
		redisCfg.PoolSize = c.Storage.PoolSize
		redisCfg.MinIdleConns = c.Storage.MinIdleConns
		redisCfg.GameTTL = c.Storage.GameTTL
		redisCfg.ConnectionTTL = c.Storage.ConnectionTTL
		redisCfg.MaxMoves = c.Storage.MaxMoves
		// Lapsed polling records must survive until the reaper's next sweeps
		if grace := 4 * c.Realtime.ReapInterval; grace > redisCfg.ExpiryGrace {
			redisCfg.ExpiryGrace = grace
		}
		out.RedisConfig = &redisCfg
	}

	if c.Events.NATSURL != "" {
		eventsCfg := events.DefaultConfig()
		eventsCfg.URL = c.Events.NATSURL
		if c.Events.SubjectPrefix != "" {
			eventsCfg.SubjectPrefix = c.Events.SubjectPrefix
		}
		out.EventsConfig = &eventsCfg
	}

	out.Game = game.DefaultConfig()
	out.Game.MoveHistoryLimit = c.Game.MoveHistoryLimit

	out.Registry = registry.Config{PollingTTL: c.Realtime.PollingConnectionTTL}
	out.Broadcast = broadcast.Config{Concurrency: c.Realtime.BroadcastConcurrency}

	out.Socket = ws.DefaultConfig()
	out.Socket.PingPeriod = c.Realtime.PingPeriod
	out.Socket.PongWait = c.Realtime.PongWait

	out.Polling = poll.DefaultConfig()
	out.Polling.PollTimeout = c.Realtime.PollTimeout
	out.Polling.ReapInterval = c.Realtime.ReapInterval
	out.Polling.MailboxSize = c.Realtime.MailboxSize

	return out
}
