package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/testutil"
)

// wsServer accepts sockets and records the actions it reads
type wsServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	accepted chan *websocket.Conn
	received chan protocol.Action
}

func newWSServer() *wsServer {
	s := &wsServer{
		accepted: make(chan *websocket.Conn, 8),
		received: make(chan protocol.Action, 64),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *wsServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.accepted <- conn
	for {
		var action protocol.Action
		if err := conn.ReadJSON(&action); err != nil {
			return
		}
		s.received <- action
	}
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

type SocketSuite struct {
	suite.Suite
	server    *wsServer
	clock     *clockwork.FakeClock
	transport *SocketTransport
	rec       *recorder
}

func TestSocketSuite(t *testing.T) {
	suite.Run(t, new(SocketSuite))
}

func (s *SocketSuite) SetupTest() {
	s.server = newWSServer()
	s.clock = clockwork.NewFakeClock()
	s.transport = NewSocketTransport(Options{
		InitialDelay: time.Second,
		MaxDelay:     4 * time.Second,
		MaxRetries:   3,
		PingInterval: 25 * time.Second,
		Clock:        s.clock,
		Logger:       testutil.NopLogger(),
	})
	s.rec = &recorder{}
	s.rec.attach(s.transport)
}

func (s *SocketSuite) TearDownTest() {
	s.transport.Disconnect()
	s.server.srv.Close()
}

func (s *SocketSuite) accept() *websocket.Conn {
	select {
	case conn := <-s.server.accepted:
		return conn
	case <-time.After(2 * time.Second):
		s.FailNow("server never accepted a connection")
		return nil
	}
}

func (s *SocketSuite) receive() protocol.Action {
	select {
	case a := <-s.server.received:
		return a
	case <-time.After(2 * time.Second):
		s.FailNow("server never received an action")
		return protocol.Action{}
	}
}

func (s *SocketSuite) TestConnectAndExchange() {
	s.Require().NoError(s.transport.Connect(context.Background(), s.server.url()))
	conn := s.accept()

	s.Equal(StateConnected, s.transport.State())
	s.Equal([]State{StateConnecting, StateConnected}, s.rec.States())

	s.Require().NoError(s.transport.Send(context.Background(), protocol.RollDice("ABC123", "p1")))
	got := s.receive()
	s.Equal(protocol.ActionRollDice, got.Action)
	s.Equal("ABC123", got.GameCode)

	s.Require().NoError(conn.WriteJSON(protocol.NewGameEnded("p1", "Alice")))
	s.Eventually(func() bool { return len(s.rec.Messages()) == 1 }, time.Second, 10*time.Millisecond)
	s.Equal(protocol.NewGameEnded("p1", "Alice"), s.rec.Messages()[0])
}

func (s *SocketSuite) TestConnectIsIdempotent() {
	s.Require().NoError(s.transport.Connect(context.Background(), s.server.url()))
	s.accept()
	s.Require().NoError(s.transport.Connect(context.Background(), s.server.url()))

	s.Equal(1, s.rec.count(StateConnected))
	s.Never(func() bool { return len(s.server.accepted) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func (s *SocketSuite) TestSendWhileDisconnected() {
	err := s.transport.Send(context.Background(), protocol.Ping())
	s.True(errors.Is(err, ErrNotConnected))
}

func (s *SocketSuite) TestPingsWhileConnected() {
	s.Require().NoError(s.transport.Connect(context.Background(), s.server.url()))
	s.accept()

	s.Eventually(func() bool {
		s.clock.Advance(25 * time.Second)
		select {
		case a := <-s.server.received:
			return a.Action == protocol.ActionPing
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func (s *SocketSuite) TestReconnectsAfterDrop() {
	s.Require().NoError(s.transport.Connect(context.Background(), s.server.url()))
	first := s.accept()

	_ = first.Close()
	s.Eventually(func() bool { return s.transport.State() == StateReconnecting }, 2*time.Second, 10*time.Millisecond)

	s.Eventually(func() bool {
		s.clock.Advance(2 * time.Second)
		return s.transport.State() == StateConnected
	}, 2*time.Second, 20*time.Millisecond)
	s.accept()

	s.Equal([]State{StateConnecting, StateConnected, StateReconnecting, StateConnected}, s.rec.States())
	s.Require().NotEmpty(s.rec.Errors())
	s.False(s.rec.terminal())
}

func (s *SocketSuite) TestGivesUpAfterMaxRetries() {
	s.Require().NoError(s.transport.Connect(context.Background(), s.server.url()))
	conn := s.accept()

	s.server.srv.Close()
	_ = conn.Close()

	s.Eventually(func() bool {
		s.clock.Advance(5 * time.Second)
		return s.rec.terminal()
	}, 5*time.Second, 20*time.Millisecond)

	s.Equal(StateDisconnected, s.transport.State())
	states := s.rec.States()
	s.Equal(StateDisconnected, states[len(states)-1])
}

func (s *SocketSuite) TestNoDeliveryAfterDisconnect() {
	s.Require().NoError(s.transport.Connect(context.Background(), s.server.url()))
	conn := s.accept()

	s.transport.Disconnect()
	s.Equal(StateDisconnected, s.transport.State())
	before := len(s.rec.States())

	_ = conn.WriteJSON(protocol.NewPong())
	s.clock.Advance(time.Minute)

	s.Never(func() bool {
		return len(s.rec.Messages()) > 0 || len(s.rec.States()) != before
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func (s *SocketSuite) TestDisconnectCancelsPendingReconnect() {
	s.Require().NoError(s.transport.Connect(context.Background(), s.server.url()))
	conn := s.accept()

	_ = conn.Close()
	s.Eventually(func() bool { return s.transport.State() == StateReconnecting }, 2*time.Second, 10*time.Millisecond)

	s.transport.Disconnect()
	s.clock.Advance(time.Minute)

	s.Never(func() bool { return len(s.server.accepted) > 0 }, 200*time.Millisecond, 20*time.Millisecond)
	s.Equal(StateDisconnected, s.transport.State())
}
