package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/storage"
)

// maxTxRetries bounds optimistic transaction retries when a watched key changes
const maxTxRetries = 10

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks that Redis is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Game operations

func (s *Storage) SaveGame(ctx context.Context, game *model.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, gameKey(game.Code), data, s.cfg.GameTTL).Err()
}

func (s *Storage) GetGame(ctx context.Context, code model.GameCode) (*model.Game, error) {
	data, err := s.client.Get(ctx, gameKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrGameNotFound
		}
		return nil, err
	}

	var game model.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

// UpdateGameStatus performs a compare-and-set on the game's status using
// WATCH/MULTI, so two racing transitions can never both succeed.
func (s *Storage) UpdateGameStatus(ctx context.Context, code model.GameCode, from, to model.GameStatus, winner model.PlayerID, at time.Time) (*model.Game, error) {
	key := gameKey(code)
	var updated *model.Game

	txf := func(tx *redis.Tx) error {
		game, err := readGame(ctx, tx, key)
		if err != nil {
			return err
		}
		if game.Status != from {
			return model.ErrStatusConflict
		}

		game.Status = to
		if winner != "" {
			game.WinnerID = winner
		}
		game.UpdatedAt = at

		out, err := json.Marshal(game)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.cfg.GameTTL)
			return nil
		})
		if err == nil {
			updated = game
		}
		return err
	}

	if err := s.watch(ctx, txf, key); err != nil {
		return nil, err
	}
	return updated, nil
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, player *model.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return err
	}

	idx := playersIndexKey(player.GameCode)

	// Pipeline the record and its roster entry; ZADD NX keeps the original join order
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, playerKey(player.GameCode, player.ID), data, s.cfg.GameTTL)
	pipe.ZAddNX(ctx, idx, redis.Z{
		Score:  float64(player.JoinedAt.UnixNano()),
		Member: string(player.ID),
	})
	pipe.Expire(ctx, idx, s.cfg.GameTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetPlayer(ctx context.Context, code model.GameCode, id model.PlayerID) (*model.Player, error) {
	data, err := s.client.Get(ctx, playerKey(code, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}

	var player model.Player
	if err := json.Unmarshal(data, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

func (s *Storage) UpdatePlayerPosition(ctx context.Context, code model.GameCode, id model.PlayerID, position int) error {
	return s.updatePlayer(ctx, code, id, func(p *model.Player) {
		p.Position = position
	})
}

func (s *Storage) UpdatePlayerConnection(ctx context.Context, code model.GameCode, id model.PlayerID, connID model.ConnectionID, connected bool) error {
	return s.updatePlayer(ctx, code, id, func(p *model.Player) {
		p.ConnectionID = connID
		p.IsConnected = connected
	})
}

// updatePlayer applies mutate to a stored player inside a WATCH transaction
// so position and connectivity updates to the same player do not clobber each other
func (s *Storage) updatePlayer(ctx context.Context, code model.GameCode, id model.PlayerID, mutate func(*model.Player)) error {
	key := playerKey(code, id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.ErrPlayerNotFound
			}
			return err
		}

		var player model.Player
		if err := json.Unmarshal(data, &player); err != nil {
			return err
		}
		mutate(&player)

		out, err := json.Marshal(&player)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.cfg.GameTTL)
			return nil
		})
		return err
	}

	return s.watch(ctx, txf, key)
}

func (s *Storage) ListPlayers(ctx context.Context, code model.GameCode) ([]*model.Player, error) {
	return listPlayers(ctx, s.client, code)
}

// rosterReader is satisfied by both *redis.Client and *redis.Tx
type rosterReader interface {
	ZRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func listPlayers(ctx context.Context, r rosterReader, code model.GameCode) ([]*model.Player, error) {
	ids, err := r.ZRange(ctx, playersIndexKey(code), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Player{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = playerKey(code, model.PlayerID(id))
	}

	values, err := r.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	players := make([]*model.Player, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // Expired between ZRANGE and MGET
		}
		var player model.Player
		if err := json.Unmarshal([]byte(str), &player); err != nil {
			return nil, err
		}
		players = append(players, &player)
	}
	return players, nil
}

// AddPlayer watches the game record and the roster index, so a concurrent
// join or a start on another instance forces the check to run again
func (s *Storage) AddPlayer(ctx context.Context, player *model.Player) (*model.Player, bool, error) {
	gKey := gameKey(player.GameCode)
	idx := playersIndexKey(player.GameCode)

	var (
		stored *model.Player
		added  bool
	)
	txf := func(tx *redis.Tx) error {
		game, err := readGame(ctx, tx, gKey)
		if err != nil {
			return err
		}
		if game.Status != model.GameStatusWaiting {
			return model.ErrStatusConflict
		}

		roster, err := listPlayers(ctx, tx, player.GameCode)
		if err != nil {
			return err
		}
		for _, p := range roster {
			if strings.EqualFold(p.Name, player.Name) {
				stored, added = p, false
				return nil
			}
		}
		if len(roster) >= model.MaxPlayers() {
			return model.ErrGameFull
		}

		p := *player
		p.Color = model.Palette[len(roster)]
		data, err := json.Marshal(&p)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, playerKey(p.GameCode, p.ID), data, s.cfg.GameTTL)
			pipe.ZAddNX(ctx, idx, redis.Z{
				Score:  float64(p.JoinedAt.UnixNano()),
				Member: string(p.ID),
			})
			pipe.Expire(ctx, idx, s.cfg.GameTTL)
			return nil
		})
		if err == nil {
			stored, added = &p, true
		}
		return err
	}

	if err := s.watch(ctx, txf, gKey, idx); err != nil {
		return nil, false, err
	}
	return stored, added, nil
}

// readGame loads a game inside a transaction
func readGame(ctx context.Context, tx *redis.Tx, key string) (*model.Game, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrGameNotFound
		}
		return nil, err
	}

	var game model.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

// Connection operations

func (s *Storage) SaveConnection(ctx context.Context, conn *model.Connection) error {
	_, err := s.writeConnection(ctx, conn, false)
	return err
}

func (s *Storage) GetConnection(ctx context.Context, id model.ConnectionID) (*model.Connection, error) {
	data, err := s.client.Get(ctx, connectionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrConnectionNotFound
		}
		return nil, err
	}

	var conn model.Connection
	if err := json.Unmarshal(data, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

func (s *Storage) UpdateConnection(ctx context.Context, conn *model.Connection) error {
	written, err := s.writeConnection(ctx, conn, true)
	if err != nil {
		return err
	}
	if !written {
		return model.ErrConnectionNotFound
	}
	return nil
}

// writeConnection stores a connection record, indexes it under its game and
// applies its expiry plus the configured grace. With mustExist the write only happens if the record
// is already present (SET XX).
func (s *Storage) writeConnection(ctx context.Context, conn *model.Connection, mustExist bool) (bool, error) {
	data, err := json.Marshal(conn)
	if err != nil {
		return false, err
	}

	key := connectionKey(conn.ID)

	pipe := s.client.TxPipeline()
	var setCmd *redis.BoolCmd
	if mustExist {
		setCmd = pipe.SetXX(ctx, key, data, s.cfg.ConnectionTTL)
	} else {
		pipe.Set(ctx, key, data, s.cfg.ConnectionTTL)
	}
	if !conn.ExpiresAt.IsZero() {
		// The record outlives its deadline so the reaper can still see who
		// it was linked to and release that player
		pipe.PExpireAt(ctx, key, conn.ExpiresAt.Add(s.cfg.ExpiryGrace))
	}
	if conn.GameCode != "" {
		idx := connectionsIndexKey(conn.GameCode)
		pipe.SAdd(ctx, idx, string(conn.ID))
		pipe.Expire(ctx, idx, s.cfg.GameTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if setCmd != nil {
		return setCmd.Val(), nil
	}
	return true, nil
}

func (s *Storage) DeleteConnection(ctx context.Context, id model.ConnectionID) error {
	conn, err := s.GetConnection(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrConnectionNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, connectionKey(id))
	if conn.GameCode != "" {
		pipe.SRem(ctx, connectionsIndexKey(conn.GameCode), string(id))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// ListConnections returns the live connections linked to a game. Index
// entries whose record has expired, or which were relinked elsewhere, are
// removed from the index as they are found.
func (s *Storage) ListConnections(ctx context.Context, code model.GameCode) ([]*model.Connection, error) {
	idx := connectionsIndexKey(code)

	ids, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Connection{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = connectionKey(model.ConnectionID(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	conns := make([]*model.Connection, 0, len(values))
	var stale []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var conn model.Connection
		if err := json.Unmarshal([]byte(str), &conn); err != nil {
			return nil, err
		}
		if conn.GameCode != code {
			stale = append(stale, ids[i])
			continue
		}
		conns = append(conns, &conn)
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, idx, stale...).Err(); err != nil {
			return nil, err
		}
	}

	sort.Slice(conns, func(i, j int) bool {
		return conns[i].ConnectedAt.Before(conns[j].ConnectedAt)
	})
	return conns, nil
}

// Move operations

func (s *Storage) AppendMove(ctx context.Context, move *model.Move) error {
	data, err := json.Marshal(move)
	if err != nil {
		return err
	}

	key := movesKey(move.GameCode)

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.cfg.MaxMoves > 0 {
		pipe.LTrim(ctx, key, -s.cfg.MaxMoves, -1)
	}
	pipe.Expire(ctx, key, s.cfg.GameTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RecordMove watches the game and the mover, so a move racing a finish is
// rejected rather than written to a finished game
func (s *Storage) RecordMove(ctx context.Context, move *model.Move) error {
	gKey := gameKey(move.GameCode)
	pKey := playerKey(move.GameCode, move.PlayerID)

	data, err := json.Marshal(move)
	if err != nil {
		return err
	}

	txf := func(tx *redis.Tx) error {
		game, err := readGame(ctx, tx, gKey)
		if err != nil {
			return err
		}
		if game.Status != model.GameStatusPlaying {
			return model.ErrStatusConflict
		}

		raw, err := tx.Get(ctx, pKey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.ErrPlayerNotFound
			}
			return err
		}
		var player model.Player
		if err := json.Unmarshal(raw, &player); err != nil {
			return err
		}
		player.Position = move.NewPosition
		out, err := json.Marshal(&player)
		if err != nil {
			return err
		}

		key := movesKey(move.GameCode)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, pKey, out, s.cfg.GameTTL)
			pipe.RPush(ctx, key, data)
			if s.cfg.MaxMoves > 0 {
				pipe.LTrim(ctx, key, -s.cfg.MaxMoves, -1)
			}
			pipe.Expire(ctx, key, s.cfg.GameTTL)
			return nil
		})
		return err
	}

	return s.watch(ctx, txf, gKey, pKey)
}

func (s *Storage) ListMoves(ctx context.Context, code model.GameCode, limit int) ([]*model.Move, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	values, err := s.client.LRange(ctx, movesKey(code), start, -1).Result()
	if err != nil {
		return nil, err
	}

	moves := make([]*model.Move, 0, len(values))
	for _, v := range values {
		var move model.Move
		if err := json.Unmarshal([]byte(v), &move); err != nil {
			return nil, err
		}
		moves = append(moves, &move)
	}
	return moves, nil
}

// watch runs txf under WATCH on keys, retrying when another client
// modified a watched key before EXEC.
func (s *Storage) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}
