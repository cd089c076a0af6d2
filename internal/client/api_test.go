package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/request"
)

func TestAPIClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/games", func(w http.ResponseWriter, r *http.Request) {
		var req request.CreateGameRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.PlayerName == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"INVALID_PLAYER_NAME","message":"player name must be 1 to 20 characters"}}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"game":{"code":"ABC123","status":"waiting","creatorId":"p1"},"player":{"id":"p1","name":"` + req.PlayerName + `"}}`))
	})
	mux.HandleFunc("GET /api/v1/games/{code}/moves", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"moves":[{"id":"m1","playerId":"p1","diceRoll":1,"previousPosition":1,"newPosition":38}]}`))
	})
	mux.HandleFunc("GET /api/v1/games/{code}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("code") != "ABC123" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"GAME_NOT_FOUND","message":"game not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"game":{"code":"ABC123","status":"playing"},"players":[{"id":"p1","name":"Alice"}]}`))
	})
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"degraded","storage":"redis"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	api := NewAPIClient(srv.URL+"/", srv.Client())
	ctx := context.Background()

	t.Run("create game", func(t *testing.T) {
		created, err := api.CreateGame(ctx, "Alice")
		require.NoError(t, err)
		assert.Equal(t, "ABC123", created.Game.Code)
		assert.Equal(t, "p1", created.Player.ID)
	})

	t.Run("create game error", func(t *testing.T) {
		_, err := api.CreateGame(ctx, "")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, "INVALID_PLAYER_NAME", apiErr.Code)
	})

	t.Run("get game", func(t *testing.T) {
		state, err := api.GetGame(ctx, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, "playing", state.Game.Status)
		assert.Len(t, state.Players, 1)

		_, err = api.GetGame(ctx, "NOPE")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "GAME_NOT_FOUND", apiErr.Code)
	})

	t.Run("moves", func(t *testing.T) {
		moves, err := api.Moves(ctx, "ABC123", 5)
		require.NoError(t, err)
		require.Len(t, moves, 1)
		assert.Equal(t, 38, moves[0].NewPosition)
	})

	t.Run("degraded health still returns a body", func(t *testing.T) {
		health, err := api.Health(ctx)
		require.NoError(t, err)
		assert.Equal(t, "degraded", health.Status)
	})
}

func TestEndpointURLs(t *testing.T) {
	tests := []struct {
		server  string
		socket  string
		polling string
		wantErr bool
	}{
		{server: "http://localhost:8080", socket: "ws://localhost:8080/ws", polling: "http://localhost:8080/poll"},
		{server: "https://snl.example.com/", socket: "wss://snl.example.com/ws", polling: "https://snl.example.com/poll"},
		{server: "http://host/game", socket: "ws://host/game/ws", polling: "http://host/game/poll"},
		{server: "ftp://host", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			socket, err := SocketURL(tt.server)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.socket, socket)
			assert.Equal(t, tt.polling, PollingURL(tt.server))
		})
	}
}
