package client

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// ErrNoSession is returned by actions that need a joined game
var ErrNoSession = errors.New("not in a game")

// Listener observes state changes. msg is the server message that caused
// the change, or nil for connection changes.
type Listener func(state GameState, msg protocol.Message)

// GameClient drives one player's view of a game over a Transport. It owns
// the reducer state and the persisted session, and rejoins automatically
// whenever the transport (re)connects while a session is known.
type GameClient struct {
	transport Transport
	api       *APIClient
	sessions  SessionStore
	logger    *slog.Logger

	mu        sync.Mutex
	state     GameState
	rejoining bool
	listeners map[int]Listener
	nextID    int
}

// NewGameClient wires a client to its transport. api may be nil when game
// creation is not needed.
func NewGameClient(transport Transport, api *APIClient, sessions SessionStore, logger *slog.Logger) *GameClient {
	c := &GameClient{
		transport: transport,
		api:       api,
		sessions:  sessions,
		logger:    logger.With(slog.String("component", "game-client")),
		state:     GameState{Connection: transport.State()},
		listeners: make(map[int]Listener),
	}
	transport.OnMessage(c.handleMessage)
	transport.OnStateChange(c.handleState)
	transport.OnError(c.handleError)
	return c
}

// Connect opens the transport
func (c *GameClient) Connect(ctx context.Context, url string) error {
	return c.transport.Connect(ctx, url)
}

// Close disconnects without touching the saved session
func (c *GameClient) Close() {
	c.transport.Disconnect()
}

// State returns a snapshot of the local game state
func (c *GameClient) State() GameState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Session returns the persisted session, if any
func (c *GameClient) Session() (*Session, error) {
	return c.sessions.Load()
}

// Subscribe registers l and returns a function that removes it
func (c *GameClient) Subscribe(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// CreateAndJoin creates a game through the REST API, saves the creator's
// session and links the realtime connection to the new player
func (c *GameClient) CreateAndJoin(ctx context.Context, playerName string) (*Session, error) {
	if c.api == nil {
		return nil, errors.New("no api client configured")
	}
	created, err := c.api.CreateGame(ctx, playerName)
	if err != nil {
		return nil, err
	}

	session := Session{
		GameCode:   created.Game.Code,
		PlayerID:   created.Player.ID,
		IsCreator:  true,
		PlayerName: created.Player.Name,
	}
	if err := c.sessions.Save(session); err != nil {
		return nil, err
	}
	// a transport that connects later rejoins on its own
	if c.transport.State() == StateConnected {
		if err := c.sendRejoin(ctx, session); err != nil {
			return nil, err
		}
	}
	return &session, nil
}

// JoinGame joins code under name. The session is saved when the server
// confirms with joinedGame.
func (c *GameClient) JoinGame(ctx context.Context, code, name string) error {
	c.setLoading()
	return c.transport.Send(ctx, protocol.JoinGame(model.GameCode(strings.ToUpper(code)), name))
}

// StartGame starts the current game; only the creator may do so
func (c *GameClient) StartGame(ctx context.Context) error {
	s, err := c.requireSession()
	if err != nil {
		return err
	}
	c.setLoading()
	return c.transport.Send(ctx, protocol.StartGame(model.GameCode(s.GameCode), model.PlayerID(s.PlayerID)))
}

// RollDice rolls for the local player
func (c *GameClient) RollDice(ctx context.Context) error {
	s, err := c.requireSession()
	if err != nil {
		return err
	}
	c.setLoading()
	return c.transport.Send(ctx, protocol.RollDice(model.GameCode(s.GameCode), model.PlayerID(s.PlayerID)))
}

// Rejoin re-links the current connection to the saved player
func (c *GameClient) Rejoin(ctx context.Context) error {
	s, err := c.requireSession()
	if err != nil {
		return err
	}
	return c.sendRejoin(ctx, *s)
}

// OnVisible is called when the player comes back to the game after it was
// hidden; a connected client rejoins to resync its state
func (c *GameClient) OnVisible(ctx context.Context) error {
	if c.transport.State() != StateConnected {
		return nil
	}
	s, err := c.sessions.Load()
	if err != nil || s == nil {
		return err
	}
	return c.sendRejoin(ctx, *s)
}

// Leave forgets the game and disconnects
func (c *GameClient) Leave() error {
	c.transport.Disconnect()

	c.mu.Lock()
	c.state = GameState{Connection: StateDisconnected}
	c.rejoining = false
	c.mu.Unlock()

	return c.sessions.Clear()
}

func (c *GameClient) requireSession() (*Session, error) {
	s, err := c.sessions.Load()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}

func (c *GameClient) sendRejoin(ctx context.Context, s Session) error {
	c.mu.Lock()
	c.rejoining = true
	c.state.IsLoading = true
	c.mu.Unlock()

	err := c.transport.Send(ctx, protocol.RejoinGame(model.GameCode(s.GameCode), model.PlayerID(s.PlayerID)))
	if err != nil {
		c.mu.Lock()
		c.rejoining = false
		c.state.IsLoading = false
		c.mu.Unlock()
	}
	return err
}

func (c *GameClient) setLoading() {
	c.mu.Lock()
	c.state.IsLoading = true
	c.mu.Unlock()
}

func (c *GameClient) handleMessage(msg protocol.Message) {
	c.mu.Lock()
	c.state = Reduce(c.state, msg)
	wasRejoining := c.rejoining

	switch m := msg.(type) {
	case protocol.JoinedGame:
		c.rejoining = false
		c.saveSession(m)
	case protocol.Error:
		c.rejoining = false
		if wasRejoining && isGone(m.Code) {
			c.logger.Info("saved game is gone, clearing session", slog.String("code", m.Code))
			if err := c.sessions.Clear(); err != nil {
				c.logger.Error("failed to clear session", slog.String("error", err.Error()))
			}
			// Drop the game we were showing; only the error and the
			// connection survive
			c.state = GameState{
				Error:          c.state.Error,
				Connection:     c.state.Connection,
				TransportError: c.state.TransportError,
			}
		}
	}
	c.mu.Unlock()

	c.notify(msg)
}

// saveSession must be called with mu held
func (c *GameClient) saveSession(m protocol.JoinedGame) {
	s := Session{
		GameCode:  m.Game.Code,
		PlayerID:  m.PlayerID,
		IsCreator: m.Game.CreatorID == m.PlayerID,
	}
	if p, ok := c.state.Player(m.PlayerID); ok {
		s.PlayerName = p.Name
	}
	if err := c.sessions.Save(s); err != nil {
		c.logger.Error("failed to save session", slog.String("error", err.Error()))
	}
}

func (c *GameClient) handleState(s State) {
	c.mu.Lock()
	prev := c.state.Connection
	c.state.Connection = s
	if s == StateConnected {
		c.state.TransportError = nil
	}
	c.mu.Unlock()

	c.notify(nil)

	if s == StateConnected && prev != StateConnected {
		saved, err := c.sessions.Load()
		if err != nil || saved == nil {
			return
		}
		// callbacks must not block the transport; the reply comes back
		// through handleMessage
		go func() {
			if err := c.sendRejoin(context.Background(), *saved); err != nil {
				c.logger.Warn("rejoin failed", slog.String("error", err.Error()))
			}
		}()
	}
}

func (c *GameClient) handleError(err error) {
	c.mu.Lock()
	c.state.TransportError = err
	c.mu.Unlock()

	if IsTerminal(err) {
		c.logger.Error("unable to reconnect", slog.String("error", err.Error()))
	}
	c.notify(nil)
}

func (c *GameClient) notify(msg protocol.Message) {
	c.mu.Lock()
	state := c.state.clone()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(state, msg)
	}
}

func isGone(code string) bool {
	return code == string(model.CodeGameNotFound) || code == string(model.CodePlayerNotFound)
}
