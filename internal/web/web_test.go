package web_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/factory"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/web"
)

// webTestServer serves only the realtime routes of a real app
type webTestServer struct {
	t      *testing.T
	app    *factory.App
	server *httptest.Server
}

func newWebTestServer(t *testing.T) *webTestServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := factory.New(factory.Config{Logger: logger})
	require.NoError(t, err)

	router := web.NewRouter(web.RouterConfig{
		Logger: logger,
		Hub:    app.Hub,
		Poll:   app.Poll,
	})
	ts := &webTestServer{t: t, app: app, server: httptest.NewServer(router)}
	t.Cleanup(func() {
		_ = app.Close()
		ts.server.Close()
	})
	return ts
}

func (ts *webTestServer) do(method, path, connID string, body io.Reader) *http.Response {
	ts.t.Helper()
	req, err := http.NewRequest(method, ts.server.URL+path, body)
	require.NoError(ts.t, err)
	if connID != "" {
		req.Header.Set(protocol.ConnectionIDHeader, connID)
	}
	resp, err := ts.server.Client().Do(req)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestPollingRoutes(t *testing.T) {
	ts := newWebTestServer(t)

	resp := ts.do(http.MethodPost, "/poll/connect", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cr protocol.ConnectResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cr))
	require.NotEmpty(t, cr.ConnectionID)

	resp = ts.do(http.MethodPost, "/poll/send", cr.ConnectionID, strings.NewReader(`{"action":"ping"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pong protocol.Pong
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pong))
	assert.Equal(t, protocol.TypePong, pong.Type)

	resp = ts.do(http.MethodPost, "/poll/disconnect", cr.ConnectionID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The connection is gone; the client must handshake again
	resp = ts.do(http.MethodGet, "/poll/messages", cr.ConnectionID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPollingRequiresConnectionHeader(t *testing.T) {
	ts := newWebTestServer(t)

	resp := ts.do(http.MethodGet, "/poll/messages", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouteMethods(t *testing.T) {
	ts := newWebTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/poll/connect"},
		{http.MethodPost, "/poll/messages"},
		{http.MethodGet, "/poll/send"},
		{http.MethodPost, "/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := ts.do(tt.method, tt.path, "", nil)
			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		})
	}
}

func TestSocketRoute(t *testing.T) {
	ts := newWebTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(protocol.Ping()))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypePong, msg.MessageType())
}
