package poll

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/apierr"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/dependencies/mocks"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/registry"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/storage/memory"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/testutil"
)

type recordingHandler struct {
	mu           sync.Mutex
	actions      []string
	disconnected []model.ConnectionID
}

func (h *recordingHandler) HandleRaw(_ context.Context, _ model.ConnectionID, data []byte) protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, string(data))
	return protocol.NewPong()
}

func (h *recordingHandler) Disconnect(_ context.Context, id model.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, id)
}

func (h *recordingHandler) Disconnected() []model.ConnectionID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.ConnectionID(nil), h.disconnected...)
}

type PollSuite struct {
	suite.Suite
	clock   *clockwork.FakeClock
	handler *recordingHandler
	server  *Server
	ctx     context.Context
}

func TestPollSuite(t *testing.T) {
	suite.Run(t, new(PollSuite))
}

func (s *PollSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.handler = &recordingHandler{}
	reg := registry.New(memory.New(), s.clock, mocks.NewMockRandom(), registry.DefaultConfig(), testutil.NopLogger())
	s.server = NewServer(reg, s.handler, s.clock, DefaultConfig(), testutil.NopLogger())
}

func (s *PollSuite) connect() model.ConnectionID {
	rr := httptest.NewRecorder()
	s.server.Connect(rr, httptest.NewRequest(http.MethodPost, "/poll/connect", nil))
	s.Require().Equal(http.StatusOK, rr.Code)

	var resp protocol.ConnectResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
	s.Require().NotEmpty(resp.ConnectionID)
	return model.ConnectionID(resp.ConnectionID)
}

func (s *PollSuite) request(method, path string, id model.ConnectionID, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if id != "" {
		req.Header.Set(protocol.ConnectionIDHeader, string(id))
	}
	return req
}

func (s *PollSuite) poll(id model.ConnectionID) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.server.Messages(rr, s.request(http.MethodGet, "/poll/messages", id, ""))
	return rr
}

func (s *PollSuite) messages(rr *httptest.ResponseRecorder) []string {
	s.Require().Equal(http.StatusOK, rr.Code)
	var resp protocol.MessagesResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
	out := make([]string, len(resp.Messages))
	for i, m := range resp.Messages {
		out[i] = string(m)
	}
	return out
}

func (s *PollSuite) errorCode(rr *httptest.ResponseRecorder) string {
	var resp apierr.ErrorResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error.Code
}

func (s *PollSuite) TestConnectAllocatesMailbox() {
	s.connect()
	s.connect()

	s.Equal(2, s.server.Count())
}

func (s *PollSuite) TestPollReturnsQueuedMessages() {
	id := s.connect()
	s.Require().NoError(s.server.Send(s.ctx, id, []byte(`{"type":"pong"}`)))
	s.Require().NoError(s.server.Send(s.ctx, id, []byte(`{"type":"gameEnded","winnerId":"p1","winnerName":"Bob"}`)))

	got := s.messages(s.poll(id))

	s.Equal([]string{`{"type":"pong"}`, `{"type":"gameEnded","winnerId":"p1","winnerName":"Bob"}`}, got)
}

func (s *PollSuite) TestPollWaitsForNextMessage() {
	id := s.connect()

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- s.poll(id) }()

	s.Require().NoError(s.clock.BlockUntilContext(s.ctx, 1))
	s.Require().NoError(s.server.Send(s.ctx, id, []byte(`{"type":"pong"}`)))

	select {
	case rr := <-done:
		s.Equal([]string{`{"type":"pong"}`}, s.messages(rr))
	case <-time.After(2 * time.Second):
		s.Fail("poll did not return")
	}
}

func (s *PollSuite) TestPollTimesOutEmpty() {
	id := s.connect()

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- s.poll(id) }()

	s.Require().NoError(s.clock.BlockUntilContext(s.ctx, 1))
	s.clock.Advance(25 * time.Second)

	select {
	case rr := <-done:
		s.JSONEq(`{"messages":[]}`, rr.Body.String())
	case <-time.After(2 * time.Second):
		s.Fail("poll did not time out")
	}
}

func (s *PollSuite) TestUnknownConnectionIs404() {
	rr := s.poll("nope")

	s.Equal(http.StatusNotFound, rr.Code)
	s.Equal(string(model.CodeConnectionNotFound), s.errorCode(rr))
}

func (s *PollSuite) TestMissingHeaderIs400() {
	rr := s.poll("")

	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *PollSuite) TestExpiredConnectionIs404AndDropped() {
	id := s.connect()
	s.clock.Advance(61 * time.Second)

	rr := s.poll(id)

	s.Equal(http.StatusNotFound, rr.Code)
	s.Equal(string(model.CodeConnectionNotFound), s.errorCode(rr))
	s.Equal([]model.ConnectionID{id}, s.handler.Disconnected())
	s.ErrorIs(s.server.Send(s.ctx, id, []byte("x")), model.ErrConnectionGone)
}

func (s *PollSuite) TestPollingRenewsExpiry() {
	id := s.connect()

	for range 3 {
		s.clock.Advance(50 * time.Second)
		s.Require().NoError(s.server.Send(s.ctx, id, []byte(`{"type":"pong"}`)))
		s.Len(s.messages(s.poll(id)), 1)
	}
}

func (s *PollSuite) TestSendActionReturnsReply() {
	id := s.connect()

	rr := httptest.NewRecorder()
	s.server.SendAction(rr, s.request(http.MethodPost, "/poll/send", id, `{"action":"ping"}`))

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"type":"pong"}`, rr.Body.String())
	s.Equal([]string{`{"action":"ping"}`}, s.handler.actions)
}

func (s *PollSuite) TestSendActionUnknownConnection() {
	rr := httptest.NewRecorder()
	s.server.SendAction(rr, s.request(http.MethodPost, "/poll/send", "nope", `{"action":"ping"}`))

	s.Equal(http.StatusNotFound, rr.Code)
	s.Empty(s.handler.actions)
}

func (s *PollSuite) TestDisconnect() {
	id := s.connect()

	rr := httptest.NewRecorder()
	s.server.Disconnect(rr, s.request(http.MethodPost, "/poll/disconnect", id, ""))

	s.Equal(http.StatusNoContent, rr.Code)
	s.Equal(0, s.server.Count())
	s.Equal([]model.ConnectionID{id}, s.handler.Disconnected())
	s.Equal(http.StatusNotFound, s.poll(id).Code)
}

func (s *PollSuite) TestDisconnectWakesWaitingPoll() {
	id := s.connect()
	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- s.poll(id) }()
	s.Require().NoError(s.clock.BlockUntilContext(s.ctx, 1))

	s.server.Close()

	select {
	case rr := <-done:
		s.JSONEq(`{"messages":[]}`, rr.Body.String())
	case <-time.After(2 * time.Second):
		s.Fail("poll not woken")
	}
}

func (s *PollSuite) TestReapDropsOnlyExpired() {
	stale := s.connect()
	s.clock.Advance(40 * time.Second)
	fresh := s.connect()
	s.clock.Advance(30 * time.Second)

	s.Equal(1, s.server.Reap(s.ctx))

	s.Equal([]model.ConnectionID{stale}, s.handler.Disconnected())
	s.NoError(s.server.Send(s.ctx, fresh, []byte("x")))
	s.ErrorIs(s.server.Send(s.ctx, stale, []byte("x")), model.ErrConnectionGone)
}

func (s *PollSuite) TestRunReapsOnTicker() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	id := s.connect()
	go s.server.Run(ctx)
	s.Require().NoError(s.clock.BlockUntilContext(s.ctx, 1))

	s.Eventually(func() bool {
		s.clock.Advance(15 * time.Second)
		return len(s.handler.Disconnected()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	s.Equal([]model.ConnectionID{id}, s.handler.Disconnected())
}

func (s *PollSuite) TestMailboxDropsOldestWhenFull() {
	s.server.cfg.MailboxSize = 2
	id := s.connect()

	for _, m := range []string{`1`, `2`, `3`} {
		s.Require().NoError(s.server.Send(s.ctx, id, []byte(m)))
	}

	s.Equal([]string{`2`, `3`}, s.messages(s.poll(id)))
}
