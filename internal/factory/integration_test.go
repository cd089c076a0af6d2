package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/apierr"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/request"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/response"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
	redisstorage "github.com/reaandrew/snakes-and-ladders-sub000/internal/storage/redis"
)

// IntegrationSuite drives the full HTTP surface of a TestApp. Realtime
// traffic goes over the polling endpoints so every exchange is a plain
// request/response the test can sequence. It runs once over memory storage
// and once over redis.
type IntegrationSuite struct {
	suite.Suite
	redis  bool
	mini   *miniredis.Miniredis
	app    *TestApp
	server *httptest.Server
	ctx    context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func TestIntegrationSuiteRedis(t *testing.T) {
	suite.Run(t, &IntegrationSuite{redis: true})
}

func (s *IntegrationSuite) SetupTest() {
	s.ctx = context.Background()
	s.setupApp(Config{})
}

// setupApp builds the app under test and serves it
func (s *IntegrationSuite) setupApp(cfg Config) {
	if s.redis {
		s.mini = miniredis.RunT(s.T())
		client := goredis.NewClient(&goredis.Options{Addr: s.mini.Addr()})
		cfg.StorageType = StorageTypeRedis
		s.app = NewTestAppWithStorage(redisstorage.NewWithClient(client, redisstorage.DefaultConfig()), cfg)
		s.mini.SetTime(s.app.FakeClock.Now())
	} else {
		s.app = NewTestAppWithConfig(cfg)
	}
	s.server = httptest.NewServer(s.app.Handler())
}

// advance moves the app clock, and the redis server's clock with it
func (s *IntegrationSuite) advance(d time.Duration) {
	s.app.FakeClock.Advance(d)
	if s.mini != nil {
		s.mini.FastForward(d)
		s.mini.SetTime(s.app.FakeClock.Now())
	}
}

func (s *IntegrationSuite) TearDownTest() {
	// Closing the app first wakes any poll still waiting
	s.Require().NoError(s.app.Close())
	s.server.Close()
}

func (s *IntegrationSuite) do(method, path, connID string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(s.ctx, method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if connID != "" {
		req.Header.Set(protocol.ConnectionIDHeader, connID)
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *IntegrationSuite) decode(resp *http.Response, into any) {
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(into))
}

func (s *IntegrationSuite) createGame(name string) response.CreateGameResponse {
	resp := s.do(http.MethodPost, "/api/v1/games", "", request.CreateGameRequest{PlayerName: name})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var created response.CreateGameResponse
	s.decode(resp, &created)
	return created
}

func (s *IntegrationSuite) connect() string {
	resp := s.do(http.MethodPost, "/poll/connect", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var cr protocol.ConnectResponse
	s.decode(resp, &cr)
	s.Require().NotEmpty(cr.ConnectionID)
	return cr.ConnectionID
}

func (s *IntegrationSuite) send(connID string, action protocol.Action) protocol.Message {
	resp := s.do(http.MethodPost, "/poll/send", connID, action)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var raw json.RawMessage
	s.decode(resp, &raw)
	msg, err := protocol.Decode(raw)
	s.Require().NoError(err)
	return msg
}

// poll must only be called when messages are already queued; with the fake
// clock an empty poll would wait forever
func (s *IntegrationSuite) poll(connID string) []protocol.Message {
	resp := s.do(http.MethodGet, "/poll/messages", connID, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var mr protocol.MessagesResponse
	s.decode(resp, &mr)
	out := make([]protocol.Message, 0, len(mr.Messages))
	for _, raw := range mr.Messages {
		msg, err := protocol.Decode(raw)
		s.Require().NoError(err)
		out = append(out, msg)
	}
	return out
}

func types(msgs []protocol.Message) []protocol.MessageType {
	out := make([]protocol.MessageType, len(msgs))
	for i, m := range msgs {
		out[i] = m.MessageType()
	}
	return out
}

// Test: a complete race from REST creation to a winner, observed by both players
func (s *IntegrationSuite) TestCompleteRace() {
	s.app.MockRandom.QueueString("ABC123")
	s.app.MockRandom.QueueID("alice", "c-alice", "c-bob", "bob")

	// Step 1: Alice creates the game over REST
	created := s.createGame("Alice")
	s.Equal("ABC123", created.Game.Code)
	s.Equal(string(model.GameStatusWaiting), created.Game.Status)
	s.Equal("alice", created.Player.ID)
	s.Equal("alice", created.Game.CreatorID)

	// Step 2: Alice attaches a realtime connection to her player
	alice := s.connect()
	s.Equal("c-alice", alice)
	joined, ok := s.send(alice, protocol.RejoinGame("ABC123", "alice")).(protocol.JoinedGame)
	s.Require().True(ok)
	s.Equal("alice", joined.PlayerID)
	s.Require().Len(joined.Players, 1)
	s.True(joined.Players[0].IsConnected)

	// Step 3: Bob joins with a lower-case code; Alice is told
	bob := s.connect()
	bobJoined, ok := s.send(bob, protocol.JoinGame("abc123", "Bob")).(protocol.JoinedGame)
	s.Require().True(ok)
	s.Equal("bob", bobJoined.PlayerID)
	s.Len(bobJoined.Players, 2)

	msgs := s.poll(alice)
	s.Require().Len(msgs, 1)
	pj, ok := msgs[0].(protocol.PlayerJoined)
	s.Require().True(ok)
	s.Equal("Bob", pj.Player.Name)

	// Step 4: Bob may not start, Alice may
	notCreator, ok := s.send(bob, protocol.StartGame("ABC123", "bob")).(protocol.Error)
	s.Require().True(ok)
	s.Equal(string(model.CodeNotGameCreator), notCreator.Code)

	started, ok := s.send(alice, protocol.StartGame("ABC123", "alice")).(protocol.GameStarted)
	s.Require().True(ok)
	s.Equal(string(model.GameStatusPlaying), started.Game.Status)
	s.Equal([]protocol.MessageType{protocol.TypeGameStarted}, types(s.poll(bob)))

	// Step 5: Bob climbs the ladder at 2
	s.app.MockRandom.QueueRoll(1)
	moved, ok := s.send(bob, protocol.RollDice("ABC123", "bob")).(protocol.PlayerMoved)
	s.Require().True(ok)
	s.Equal(1, moved.PreviousPosition)
	s.Equal(38, moved.NewPosition)
	s.Require().NotNil(moved.Effect)
	s.Equal("ladder", moved.Effect.Kind)
	s.Equal([]protocol.MessageType{protocol.TypePlayerMoved}, types(s.poll(alice)))

	// Step 6: Alice races to 100: 1 -6-> 7=>14 -1-> 15=>26 -2-> 28=>84 -3-> 87=>94 -6-> 100
	s.app.MockRandom.QueueRoll(6, 1, 2, 3, 6)
	want := []int{14, 26, 84, 94, 100}
	for _, pos := range want {
		m, ok := s.send(alice, protocol.RollDice("ABC123", "alice")).(protocol.PlayerMoved)
		s.Require().True(ok)
		s.Equal(pos, m.NewPosition)
	}

	// The winner gets gameEnded too; Bob sees every move then the result
	s.Equal([]protocol.MessageType{protocol.TypeGameEnded}, types(s.poll(alice)))
	bobMsgs := s.poll(bob)
	s.Require().Len(bobMsgs, 6)
	ended, ok := bobMsgs[5].(protocol.GameEnded)
	s.Require().True(ok)
	s.Equal("alice", ended.WinnerID)
	s.Equal("Alice", ended.WinnerName)

	// Step 7: the game is over for everyone
	late, ok := s.send(bob, protocol.RollDice("ABC123", "bob")).(protocol.Error)
	s.Require().True(ok)
	s.Equal(string(model.CodeGameNotStarted), late.Code)

	// Step 8: REST reflects the final state and history
	resp := s.do(http.MethodGet, "/api/v1/games/abc123", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var state response.GameStateResponse
	s.decode(resp, &state)
	s.Equal(string(model.GameStatusFinished), state.Game.Status)
	s.Equal("alice", state.Game.WinnerID)
	s.Require().Len(state.Players, 2)
	s.Equal(100, state.Players[0].Position)
	s.Equal(38, state.Players[1].Position)

	resp = s.do(http.MethodGet, "/api/v1/games/ABC123/moves?limit=2", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var moves response.MovesResponse
	s.decode(resp, &moves)
	s.Require().Len(moves.Moves, 2)
	s.Equal(94, moves.Moves[0].NewPosition)
	s.Equal(100, moves.Moves[1].NewPosition)

	s.Equal([]model.EventType{
		model.EventGameCreated,
		model.EventPlayerJoined,
		model.EventGameStarted,
		model.EventPlayerMoved,
		model.EventPlayerMoved,
		model.EventPlayerMoved,
		model.EventPlayerMoved,
		model.EventPlayerMoved,
		model.EventPlayerMoved,
		model.EventGameFinished,
	}, s.app.MockPublisher.Types())
}

// Test: a polling client that disconnects is announced as having left
func (s *IntegrationSuite) TestPollingDisconnectAnnouncesLeave() {
	s.app.MockRandom.QueueString("ABC123")
	s.app.MockRandom.QueueID("alice", "c-alice", "c-bob", "bob")

	s.createGame("Alice")
	alice := s.connect()
	s.send(alice, protocol.RejoinGame("ABC123", "alice"))
	bob := s.connect()
	s.send(bob, protocol.JoinGame("ABC123", "Bob"))
	s.poll(alice)

	resp := s.do(http.MethodPost, "/poll/disconnect", bob, nil)
	s.Equal(http.StatusNoContent, resp.StatusCode)

	msgs := s.poll(alice)
	s.Require().Len(msgs, 1)
	left, ok := msgs[0].(protocol.PlayerLeft)
	s.Require().True(ok)
	s.Equal("bob", left.PlayerID)
	s.Equal("Bob", left.PlayerName)

	state, err := s.app.GameController.State(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.False(state.Players[1].IsConnected)
	s.Equal(1, s.app.Poll.Count())
}

// Test: the reaper releases a player whose polling connection lapsed and
// tells the others
func (s *IntegrationSuite) TestReapedPlayerIsAnnouncedAsLeft() {
	s.app.MockRandom.QueueString("ABC123")
	s.app.MockRandom.QueueID("alice", "c-alice", "c-bob", "bob")

	s.createGame("Alice")
	alice := s.connect()
	s.send(alice, protocol.RejoinGame("ABC123", "alice"))
	bob := s.connect()
	s.send(bob, protocol.JoinGame("ABC123", "Bob"))
	s.poll(alice)

	// Alice keeps her connection alive; Bob goes quiet
	ttl := s.app.cfg.Registry.PollingTTL
	s.advance(ttl / 2)
	s.send(alice, protocol.Ping())
	s.advance(ttl/2 + 1)
	s.Equal(1, s.app.Poll.Reap(s.ctx))
	s.Equal(1, s.app.Poll.Count())

	msgs := s.poll(alice)
	s.Require().Len(msgs, 1)
	left, ok := msgs[0].(protocol.PlayerLeft)
	s.Require().True(ok)
	s.Equal("bob", left.PlayerID)

	state, err := s.app.GameController.State(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Require().Len(state.Players, 2)
	s.False(state.Players[1].IsConnected)
	s.Empty(state.Players[1].ConnectionID)
	s.True(state.Players[0].IsConnected)
}

// Test: an expired polling connection gets a 404 so the client re-handshakes
func (s *IntegrationSuite) TestExpiredPollingConnection() {
	conn := s.connect()

	s.advance(s.app.cfg.Registry.PollingTTL + 1)

	resp := s.do(http.MethodGet, "/poll/messages", conn, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	var body apierr.ErrorResponse
	s.decode(resp, &body)
	s.Equal(string(model.CodeConnectionNotFound), body.Error.Code)
	s.Equal(0, s.app.Poll.Count())
}

// Test: the reaper drops connections nobody polls
func (s *IntegrationSuite) TestReapExpiredConnections() {
	s.connect()
	s.connect()
	s.Equal(2, s.app.Poll.Count())

	s.advance(s.app.cfg.Registry.PollingTTL + 1)

	s.Equal(2, s.app.Poll.Reap(s.ctx))
	s.Equal(0, s.app.Poll.Count())
}

func (s *IntegrationSuite) TestUnknownGame() {
	resp := s.do(http.MethodGet, "/api/v1/games/NOPE99", "", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)

	conn := s.connect()
	msg, ok := s.send(conn, protocol.JoinGame("NOPE99", "Alice")).(protocol.Error)
	s.Require().True(ok)
	s.Equal(string(model.CodeGameNotFound), msg.Code)
}

func (s *IntegrationSuite) TestHealth() {
	resp := s.do(http.MethodGet, "/api/v1/health", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var health response.HealthResponse
	s.decode(resp, &health)
	s.Equal("ok", health.Status)
	s.Equal(s.app.StorageType, health.Storage)
}

func (s *IntegrationSuite) TestCORSPreflight() {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodOptions, s.server.URL+"/poll/send", nil)
	s.Require().NoError(err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", protocol.ConnectionIDHeader)

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusNoContent, resp.StatusCode)
	s.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))
	s.Contains(strings.ToLower(resp.Header.Get("Access-Control-Allow-Headers")), strings.ToLower(protocol.ConnectionIDHeader))
}

func (s *IntegrationSuite) TestCORSRestrictedOrigins() {
	s.server.Close()
	s.Require().NoError(s.app.Close())

	s.setupApp(Config{AllowedOrigins: []string{"http://game.example"}})

	for origin, want := range map[string]string{
		"http://game.example": "http://game.example",
		"http://evil.example": "",
	} {
		req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.server.URL+"/api/v1/health", nil)
		s.Require().NoError(err)
		req.Header.Set("Origin", origin)
		resp, err := s.server.Client().Do(req)
		s.Require().NoError(err)
		_ = resp.Body.Close()
		s.Equal(want, resp.Header.Get("Access-Control-Allow-Origin"), origin)
	}
}
