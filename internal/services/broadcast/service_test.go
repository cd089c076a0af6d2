package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/dependencies/mocks"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/registry"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/storage/memory"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/testutil"
)

type BroadcastSuite struct {
	suite.Suite
	storage  *memory.Storage
	clock    *mocks.MockClock
	registry *registry.Registry
	sockets  *mocks.MockSender
	polls    *mocks.MockSender
	service  *Service
	ctx      context.Context
}

func TestBroadcastSuite(t *testing.T) {
	suite.Run(t, new(BroadcastSuite))
}

func (s *BroadcastSuite) SetupTest() {
	s.ctx = context.Background()
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.registry = registry.New(s.storage, s.clock, mocks.NewMockRandom(), registry.DefaultConfig(), testutil.NopLogger())

	s.sockets = mocks.NewMockSender()
	s.polls = mocks.NewMockSender()
	s.service = New(s.registry, Config{Concurrency: 2}, testutil.NopLogger())
	s.service.RegisterSender(model.TransportSocket, s.sockets)
	s.service.RegisterSender(model.TransportPolling, s.polls)

	s.Require().NoError(s.storage.SaveGame(s.ctx, &model.Game{Code: "ABC123", Status: model.GameStatusWaiting}))
}

// connect opens a connection and links it to a fresh player in ABC123
func (s *BroadcastSuite) connect(player model.PlayerID, transport model.TransportKind) model.ConnectionID {
	s.Require().NoError(s.storage.SavePlayer(s.ctx, &model.Player{
		ID:       player,
		GameCode: "ABC123",
		Name:     string(player),
		JoinedAt: s.clock.Now(),
	}))
	conn, err := s.registry.Open(s.ctx, transport)
	s.Require().NoError(err)
	s.Require().NoError(s.registry.Link(s.ctx, conn.ID, "ABC123", player))
	return conn.ID
}

func (s *BroadcastSuite) TestSendToOneDelivers() {
	id := s.connect("alice", model.TransportSocket)

	s.True(s.service.SendToOne(s.ctx, id, []byte(`{"type":"pong"}`)))
	s.Equal([][]byte{[]byte(`{"type":"pong"}`)}, s.sockets.Received(id))
}

func (s *BroadcastSuite) TestSendToOneRoutesByTransport() {
	id := s.connect("alice", model.TransportPolling)

	s.True(s.service.SendToOne(s.ctx, id, []byte("x")))
	s.Equal(1, s.polls.Count(id))
	s.Equal(0, s.sockets.Count(id))
}

func (s *BroadcastSuite) TestSendToOnePrunesGoneConnection() {
	id := s.connect("alice", model.TransportSocket)
	s.sockets.MarkGone(id)

	s.False(s.service.SendToOne(s.ctx, id, []byte("x")))

	_, err := s.registry.Lookup(s.ctx, id)
	s.ErrorIs(err, model.ErrConnectionNotFound)

	alice, err := s.storage.GetPlayer(s.ctx, "ABC123", "alice")
	s.Require().NoError(err)
	s.False(alice.IsConnected)
}

func (s *BroadcastSuite) TestSendToOneKeepsConnectionOnTransientFailure() {
	id := s.connect("alice", model.TransportSocket)
	s.sockets.Failing[id] = true
	s.sockets.FailErr = errors.New("buffer full")

	s.False(s.service.SendToOne(s.ctx, id, []byte("x")))

	_, err := s.registry.Lookup(s.ctx, id)
	s.NoError(err)
}

func (s *BroadcastSuite) TestSendToOneUnknownConnection() {
	s.False(s.service.SendToOne(s.ctx, "missing", []byte("x")))
}

func (s *BroadcastSuite) TestSendToOneWithoutSender() {
	s.service = New(s.registry, DefaultConfig(), testutil.NopLogger())
	id := s.connect("alice", model.TransportSocket)

	s.False(s.service.SendToOne(s.ctx, id, []byte("x")))
}

func (s *BroadcastSuite) TestBroadcastToGameReachesEveryConnection() {
	a := s.connect("alice", model.TransportSocket)
	b := s.connect("bob", model.TransportPolling)
	c := s.connect("carol", model.TransportSocket)

	s.service.BroadcastToGame(s.ctx, "ABC123", []byte("hello"))

	s.Equal(1, s.sockets.Count(a))
	s.Equal(1, s.polls.Count(b))
	s.Equal(1, s.sockets.Count(c))
}

func (s *BroadcastSuite) TestBroadcastToGameExcludes() {
	a := s.connect("alice", model.TransportSocket)
	b := s.connect("bob", model.TransportSocket)

	s.service.BroadcastToGame(s.ctx, "ABC123", []byte("hello"), a)

	s.Equal(0, s.sockets.Count(a))
	s.Equal(1, s.sockets.Count(b))
}

func (s *BroadcastSuite) TestBroadcastToGameSurvivesOneFailure() {
	ids := []model.ConnectionID{
		s.connect("alice", model.TransportSocket),
		s.connect("bob", model.TransportSocket),
		s.connect("carol", model.TransportSocket),
		s.connect("dave", model.TransportSocket),
	}
	s.sockets.MarkGone(ids[1])

	s.service.BroadcastToGame(s.ctx, "ABC123", []byte("hello"))

	s.Equal(1, s.sockets.Count(ids[0]))
	s.Equal(0, s.sockets.Count(ids[1]))
	s.Equal(1, s.sockets.Count(ids[2]))
	s.Equal(1, s.sockets.Count(ids[3]))

	remaining, err := s.registry.ListForGame(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.ElementsMatch([]model.ConnectionID{ids[0], ids[2], ids[3]}, remaining)
}

func (s *BroadcastSuite) TestBroadcastToGameSkipsExpiredPolling() {
	a := s.connect("alice", model.TransportPolling)
	s.clock.Advance(2 * time.Minute)
	b := s.connect("bob", model.TransportPolling)

	s.service.BroadcastToGame(s.ctx, "ABC123", []byte("hello"))

	s.Equal(0, s.polls.Count(a))
	s.Equal(1, s.polls.Count(b))
}

func (s *BroadcastSuite) TestBroadcastToMany() {
	a := s.connect("alice", model.TransportSocket)
	b := s.connect("bob", model.TransportSocket)
	s.sockets.MarkGone(b)

	result := s.service.BroadcastToMany(s.ctx, []model.ConnectionID{a, b, "missing"}, []byte("hello"))

	s.Equal([]model.ConnectionID{a}, result.Successful)
	s.ElementsMatch([]model.ConnectionID{b, "missing"}, result.Failed)
}
