package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/apierr"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/request"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/response"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/game"
)

// GameHandler handles game-related endpoints. Joining, starting and
// rolling happen over the realtime transports.
type GameHandler struct {
	gameController *game.Controller
}

// NewGameHandler creates a new game handler
func NewGameHandler(gameController *game.Controller) *GameHandler {
	return &GameHandler{gameController: gameController}
}

// Create handles POST /api/v1/games
func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteError(w, apierr.NewInvalidRequestError("Invalid request body"))
		return
	}

	res, err := h.gameController.Create(r.Context(), req.PlayerName)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.CreateGameResponseFromModel(res.Game, res.Player))
}

// Get handles GET /api/v1/games/{code}
func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	state, err := h.gameController.State(r.Context(), gameCode(r))
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.GameStateResponseFromModel(state.Game, state.Players))
}

// Moves handles GET /api/v1/games/{code}/moves?limit=N
func (h *GameHandler) Moves(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apierr.WriteError(w, apierr.NewInvalidRequestError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	moves, err := h.gameController.Moves(r.Context(), gameCode(r), limit)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MovesResponseFromModel(moves))
}

// gameCode reads the code path variable. Codes are case-insensitive for
// people typing them in.
func gameCode(r *http.Request) model.GameCode {
	return model.GameCode(strings.ToUpper(mux.Vars(r)["code"]))
}
