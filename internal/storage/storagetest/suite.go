// Package storagetest holds the behavioural test suite every storage
// backend must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/storage"
)

// ContractSuite exercises the storage.Storage contract. Backends embed it
// and set NewStorage in their own SetupTest before calling Init.
type ContractSuite struct {
	suite.Suite
	Storage storage.Storage
	Ctx     context.Context
	Now     time.Time
}

// Init prepares the suite for a test using the given storage
func (s *ContractSuite) Init(store storage.Storage) {
	s.Storage = store
	s.Ctx = context.Background()
	s.Now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// NewGame returns a waiting game fixture
func (s *ContractSuite) NewGame(code model.GameCode) *model.Game {
	return &model.Game{
		Code:      code,
		Status:    model.GameStatusWaiting,
		CreatorID: "p1",
		Board: model.Board{
			Size:    100,
			Entries: []model.BoardEntry{{Start: 2, End: 38, Kind: model.EffectLadder}},
		},
		CreatedAt: s.Now,
		UpdatedAt: s.Now,
	}
}

// NewPlayer returns a player fixture who joined joinedOffset after Now
func (s *ContractSuite) NewPlayer(code model.GameCode, id model.PlayerID, name string, joinedOffset time.Duration) *model.Player {
	return &model.Player{
		ID:       id,
		GameCode: code,
		Name:     name,
		Color:    model.Palette[0],
		JoinedAt: s.Now.Add(joinedOffset),
	}
}

// Game tests

func (s *ContractSuite) TestSaveAndGetGame() {
	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("ABCDEF")))

	got, err := s.Storage.GetGame(s.Ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Equal(model.GameStatusWaiting, got.Status)
	s.Equal(model.PlayerID("p1"), got.CreatorID)
	s.Equal(100, got.Board.Size)
	s.Len(got.Board.Entries, 1)
}

func (s *ContractSuite) TestGetGameNotFound() {
	_, err := s.Storage.GetGame(s.Ctx, "NOPE00")
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *ContractSuite) TestUpdateGameStatus() {
	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("ABCDEF")))

	later := s.Now.Add(time.Minute)
	updated, err := s.Storage.UpdateGameStatus(s.Ctx, "ABCDEF", model.GameStatusWaiting, model.GameStatusPlaying, "", later)
	s.Require().NoError(err)
	s.Equal(model.GameStatusPlaying, updated.Status)
	s.True(later.Equal(updated.UpdatedAt))

	finished, err := s.Storage.UpdateGameStatus(s.Ctx, "ABCDEF", model.GameStatusPlaying, model.GameStatusFinished, "p1", later)
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), finished.WinnerID)

	stored, err := s.Storage.GetGame(s.Ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Equal(model.GameStatusFinished, stored.Status)
	s.Equal(model.PlayerID("p1"), stored.WinnerID)
}

func (s *ContractSuite) TestUpdateGameStatusConflict() {
	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("ABCDEF")))

	_, err := s.Storage.UpdateGameStatus(s.Ctx, "ABCDEF", model.GameStatusPlaying, model.GameStatusFinished, "p1", s.Now)
	s.ErrorIs(err, model.ErrStatusConflict)

	stored, _ := s.Storage.GetGame(s.Ctx, "ABCDEF")
	s.Equal(model.GameStatusWaiting, stored.Status)
	s.Empty(stored.WinnerID)
}

func (s *ContractSuite) TestUpdateGameStatusNotFound() {
	_, err := s.Storage.UpdateGameStatus(s.Ctx, "NOPE00", model.GameStatusWaiting, model.GameStatusPlaying, "", s.Now)
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *ContractSuite) TestConcurrentStatusTransitionHasOneWinner() {
	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("ABCDEF")))

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Storage.UpdateGameStatus(s.Ctx, "ABCDEF", model.GameStatusWaiting, model.GameStatusPlaying, "", s.Now)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	s.Equal(1, succeeded)
}

// Player tests

func (s *ContractSuite) TestSaveAndGetPlayer() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, s.NewPlayer("ABCDEF", "p1", "Alice", 0)))

	got, err := s.Storage.GetPlayer(s.Ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.Equal("Alice", got.Name)
	s.Equal(0, got.Position)
	s.False(got.IsConnected)
}

func (s *ContractSuite) TestGetPlayerScopedToGame() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, s.NewPlayer("ABCDEF", "p1", "Alice", 0)))

	_, err := s.Storage.GetPlayer(s.Ctx, "OTHER0", "p1")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *ContractSuite) TestListPlayersInJoinOrder() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, s.NewPlayer("ABCDEF", "p2", "Bob", time.Second)))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, s.NewPlayer("ABCDEF", "p1", "Alice", 0)))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, s.NewPlayer("OTHER0", "p9", "Zed", 0)))

	players, err := s.Storage.ListPlayers(s.Ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Require().Len(players, 2)
	s.Equal("Alice", players[0].Name)
	s.Equal("Bob", players[1].Name)
}

func (s *ContractSuite) TestListPlayersEmpty() {
	players, err := s.Storage.ListPlayers(s.Ctx, "EMPTY0")
	s.Require().NoError(err)
	s.Empty(players)
}

func (s *ContractSuite) TestResavingPlayerKeepsRosterEntry() {
	p := s.NewPlayer("ABCDEF", "p1", "Alice", 0)
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, p))
	p.Position = 5
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, p))

	players, err := s.Storage.ListPlayers(s.Ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Require().Len(players, 1)
	s.Equal(5, players[0].Position)
}

func (s *ContractSuite) TestUpdatePlayerPosition() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, s.NewPlayer("ABCDEF", "p1", "Alice", 0)))

	s.Require().NoError(s.Storage.UpdatePlayerPosition(s.Ctx, "ABCDEF", "p1", 38))

	got, _ := s.Storage.GetPlayer(s.Ctx, "ABCDEF", "p1")
	s.Equal(38, got.Position)
}

func (s *ContractSuite) TestUpdatePlayerPositionNotFound() {
	err := s.Storage.UpdatePlayerPosition(s.Ctx, "ABCDEF", "ghost", 3)
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *ContractSuite) TestUpdatePlayerConnection() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, s.NewPlayer("ABCDEF", "p1", "Alice", 0)))

	s.Require().NoError(s.Storage.UpdatePlayerConnection(s.Ctx, "ABCDEF", "p1", "c1", true))
	got, _ := s.Storage.GetPlayer(s.Ctx, "ABCDEF", "p1")
	s.True(got.IsConnected)
	s.Equal(model.ConnectionID("c1"), got.ConnectionID)

	s.Require().NoError(s.Storage.UpdatePlayerConnection(s.Ctx, "ABCDEF", "p1", "", false))
	got, _ = s.Storage.GetPlayer(s.Ctx, "ABCDEF", "p1")
	s.False(got.IsConnected)
	s.Empty(got.ConnectionID)
}

func (s *ContractSuite) TestReturnedPlayerIsACopy() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, s.NewPlayer("ABCDEF", "p1", "Alice", 0)))

	got, _ := s.Storage.GetPlayer(s.Ctx, "ABCDEF", "p1")
	got.Position = 99

	again, _ := s.Storage.GetPlayer(s.Ctx, "ABCDEF", "p1")
	s.Equal(0, again.Position)
}

// Connection tests

func (s *ContractSuite) TestSaveAndGetConnection() {
	conn := &model.Connection{ID: "c1", Transport: model.TransportSocket, ConnectedAt: s.Now}
	s.Require().NoError(s.Storage.SaveConnection(s.Ctx, conn))

	got, err := s.Storage.GetConnection(s.Ctx, "c1")
	s.Require().NoError(err)
	s.Equal(model.TransportSocket, got.Transport)
	s.False(got.IsLinked())
	s.True(got.ExpiresAt.IsZero())
}

func (s *ContractSuite) TestGetConnectionNotFound() {
	_, err := s.Storage.GetConnection(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrConnectionNotFound)
}

func (s *ContractSuite) TestUpdateConnectionLinksToGame() {
	conn := &model.Connection{ID: "c1", Transport: model.TransportSocket, ConnectedAt: s.Now}
	s.Require().NoError(s.Storage.SaveConnection(s.Ctx, conn))

	conn.GameCode = "ABCDEF"
	conn.PlayerID = "p1"
	s.Require().NoError(s.Storage.UpdateConnection(s.Ctx, conn))

	conns, err := s.Storage.ListConnections(s.Ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Require().Len(conns, 1)
	s.Equal(model.PlayerID("p1"), conns[0].PlayerID)
}

func (s *ContractSuite) TestUpdateConnectionNotFound() {
	err := s.Storage.UpdateConnection(s.Ctx, &model.Connection{ID: "missing"})
	s.ErrorIs(err, model.ErrConnectionNotFound)
}

func (s *ContractSuite) TestDeleteConnection() {
	conn := &model.Connection{ID: "c1", GameCode: "ABCDEF", PlayerID: "p1", ConnectedAt: s.Now}
	s.Require().NoError(s.Storage.SaveConnection(s.Ctx, conn))

	s.Require().NoError(s.Storage.DeleteConnection(s.Ctx, "c1"))

	_, err := s.Storage.GetConnection(s.Ctx, "c1")
	s.ErrorIs(err, model.ErrConnectionNotFound)

	conns, err := s.Storage.ListConnections(s.Ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Empty(conns)

	// Deleting twice is not an error
	s.NoError(s.Storage.DeleteConnection(s.Ctx, "c1"))
}

func (s *ContractSuite) TestListConnectionsOnlyForGame() {
	s.Require().NoError(s.Storage.SaveConnection(s.Ctx, &model.Connection{ID: "c1", GameCode: "ABCDEF", PlayerID: "p1", ConnectedAt: s.Now}))
	s.Require().NoError(s.Storage.SaveConnection(s.Ctx, &model.Connection{ID: "c2", GameCode: "ABCDEF", PlayerID: "p2", ConnectedAt: s.Now.Add(time.Second)}))
	s.Require().NoError(s.Storage.SaveConnection(s.Ctx, &model.Connection{ID: "c3", GameCode: "OTHER0", PlayerID: "p3", ConnectedAt: s.Now}))
	s.Require().NoError(s.Storage.SaveConnection(s.Ctx, &model.Connection{ID: "c4", ConnectedAt: s.Now}))

	conns, err := s.Storage.ListConnections(s.Ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Require().Len(conns, 2)
	s.Equal(model.ConnectionID("c1"), conns[0].ID)
	s.Equal(model.ConnectionID("c2"), conns[1].ID)
}

func (s *ContractSuite) TestRelinkedConnectionLeavesOldGame() {
	conn := &model.Connection{ID: "c1", GameCode: "ABCDEF", PlayerID: "p1", ConnectedAt: s.Now}
	s.Require().NoError(s.Storage.SaveConnection(s.Ctx, conn))

	conn.GameCode = "OTHER0"
	s.Require().NoError(s.Storage.UpdateConnection(s.Ctx, conn))

	old, err := s.Storage.ListConnections(s.Ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Empty(old)

	current, err := s.Storage.ListConnections(s.Ctx, "OTHER0")
	s.Require().NoError(err)
	s.Len(current, 1)
}

// AddPlayer tests

func (s *ContractSuite) TestAddPlayerAssignsNextColour() {
	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("ABCDEF")))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, s.NewPlayer("ABCDEF", "p1", "Alice", 0)))

	stored, added, err := s.Storage.AddPlayer(s.Ctx, s.NewPlayer("ABCDEF", "p2", "Bob", time.Second))
	s.Require().NoError(err)
	s.True(added)
	s.Equal(model.PlayerID("p2"), stored.ID)
	s.Equal(model.Palette[1], stored.Color)

	players, err := s.Storage.ListPlayers(s.Ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Require().Len(players, 2)
	s.Equal(model.Palette[1], players[1].Color)
}

func (s *ContractSuite) TestAddPlayerReturnsNameMatch() {
	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("ABCDEF")))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, s.NewPlayer("ABCDEF", "p1", "Alice", 0)))

	stored, added, err := s.Storage.AddPlayer(s.Ctx, s.NewPlayer("ABCDEF", "p2", "aLICE", time.Second))
	s.Require().NoError(err)
	s.False(added)
	s.Equal(model.PlayerID("p1"), stored.ID)

	_, err = s.Storage.GetPlayer(s.Ctx, "ABCDEF", "p2")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *ContractSuite) TestAddPlayerGuards() {
	_, _, err := s.Storage.AddPlayer(s.Ctx, s.NewPlayer("NOPE00", "p1", "Alice", 0))
	s.ErrorIs(err, model.ErrGameNotFound)

	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("ABCDEF")))
	for i := range model.MaxPlayers() {
		_, added, err := s.Storage.AddPlayer(s.Ctx, s.NewPlayer("ABCDEF", model.PlayerID(fmt.Sprintf("p%d", i)), fmt.Sprintf("Player%d", i), time.Duration(i)*time.Second))
		s.Require().NoError(err)
		s.Require().True(added)
	}
	_, _, err = s.Storage.AddPlayer(s.Ctx, s.NewPlayer("ABCDEF", "extra", "Extra", time.Minute))
	s.ErrorIs(err, model.ErrGameFull)

	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("PLAYIN")))
	_, err = s.Storage.UpdateGameStatus(s.Ctx, "PLAYIN", model.GameStatusWaiting, model.GameStatusPlaying, "", s.Now)
	s.Require().NoError(err)
	_, _, err = s.Storage.AddPlayer(s.Ctx, s.NewPlayer("PLAYIN", "late", "Late", 0))
	s.ErrorIs(err, model.ErrStatusConflict)
}

func (s *ContractSuite) TestConcurrentAddPlayerRespectsCapacity() {
	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("ABCDEF")))

	racers := model.MaxPlayers() + 4
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := s.NewPlayer("ABCDEF", model.PlayerID(fmt.Sprintf("r%d", i)), fmt.Sprintf("Racer%d", i), time.Duration(i)*time.Millisecond)
			_, _, err := s.Storage.AddPlayer(s.Ctx, p)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	added, full := 0, 0
	for err := range results {
		switch {
		case err == nil:
			added++
		case errors.Is(err, model.ErrGameFull):
			full++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(model.MaxPlayers(), added)
	s.Equal(4, full)

	players, err := s.Storage.ListPlayers(s.Ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Require().Len(players, model.MaxPlayers())
	colours := make([]string, len(players))
	for i, p := range players {
		colours[i] = p.Color
	}
	s.ElementsMatch(model.Palette, colours)
}

func (s *ContractSuite) TestConcurrentAddPlayerSameName() {
	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("ABCDEF")))

	const racers = 6
	var wg sync.WaitGroup
	ids := make(chan model.PlayerID, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := "Same"
			if i%2 == 1 {
				name = "sAME"
			}
			stored, _, err := s.Storage.AddPlayer(s.Ctx, s.NewPlayer("ABCDEF", model.PlayerID(fmt.Sprintf("s%d", i)), name, 0))
			s.NoError(err)
			if err == nil {
				ids <- stored.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[model.PlayerID]bool{}
	for id := range ids {
		seen[id] = true
	}
	s.Len(seen, 1)

	players, err := s.Storage.ListPlayers(s.Ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Len(players, 1)
}

// Move tests

func (s *ContractSuite) TestAppendAndListMoves() {
	for i := 1; i <= 5; i++ {
		move := &model.Move{
			ID:          fmt.Sprintf("m%d", i),
			GameCode:    "ABCDEF",
			PlayerID:    "p1",
			DiceRoll:    i,
			NewPosition: i,
			Timestamp:   s.Now.Add(time.Duration(i) * time.Second),
		}
		if i == 1 {
			move.Effect = &model.Effect{Kind: model.EffectLadder, From: 2, To: 38}
		}
		s.Require().NoError(s.Storage.AppendMove(s.Ctx, move))
	}

	all, err := s.Storage.ListMoves(s.Ctx, "ABCDEF", 0)
	s.Require().NoError(err)
	s.Require().Len(all, 5)
	s.Require().NotNil(all[0].Effect)
	s.Equal(38, all[0].Effect.To)

	recent, err := s.Storage.ListMoves(s.Ctx, "ABCDEF", 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal(4, recent[0].DiceRoll)
	s.Equal(5, recent[1].DiceRoll)
}

func (s *ContractSuite) TestListMovesEmpty() {
	moves, err := s.Storage.ListMoves(s.Ctx, "ABCDEF", 10)
	s.Require().NoError(err)
	s.Empty(moves)
}

func (s *ContractSuite) TestRecordMoveUpdatesPositionAndLog() {
	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("ABCDEF")))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, s.NewPlayer("ABCDEF", "p1", "Alice", 0)))
	_, err := s.Storage.UpdateGameStatus(s.Ctx, "ABCDEF", model.GameStatusWaiting, model.GameStatusPlaying, "", s.Now)
	s.Require().NoError(err)

	move := &model.Move{ID: "m1", GameCode: "ABCDEF", PlayerID: "p1", DiceRoll: 1, PreviousPosition: 1, NewPosition: 38, Timestamp: s.Now}
	s.Require().NoError(s.Storage.RecordMove(s.Ctx, move))

	p, err := s.Storage.GetPlayer(s.Ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.Equal(38, p.Position)

	moves, err := s.Storage.ListMoves(s.Ctx, "ABCDEF", 0)
	s.Require().NoError(err)
	s.Require().Len(moves, 1)
	s.Equal("m1", moves[0].ID)
}

func (s *ContractSuite) TestRecordMoveOnlyWhilePlaying() {
	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("ABCDEF")))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, s.NewPlayer("ABCDEF", "p1", "Alice", 0)))
	move := &model.Move{ID: "m1", GameCode: "ABCDEF", PlayerID: "p1", DiceRoll: 3, PreviousPosition: 0, NewPosition: 3, Timestamp: s.Now}

	// Waiting
	s.ErrorIs(s.Storage.RecordMove(s.Ctx, move), model.ErrStatusConflict)

	// Finished
	_, err := s.Storage.UpdateGameStatus(s.Ctx, "ABCDEF", model.GameStatusWaiting, model.GameStatusPlaying, "", s.Now)
	s.Require().NoError(err)
	_, err = s.Storage.UpdateGameStatus(s.Ctx, "ABCDEF", model.GameStatusPlaying, model.GameStatusFinished, "p1", s.Now)
	s.Require().NoError(err)
	s.ErrorIs(s.Storage.RecordMove(s.Ctx, move), model.ErrStatusConflict)

	p, err := s.Storage.GetPlayer(s.Ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.Equal(0, p.Position)
	moves, err := s.Storage.ListMoves(s.Ctx, "ABCDEF", 0)
	s.Require().NoError(err)
	s.Empty(moves)

	s.ErrorIs(s.Storage.RecordMove(s.Ctx, &model.Move{GameCode: "NOPE00", PlayerID: "p1"}), model.ErrGameNotFound)
}

func (s *ContractSuite) TestRecordMoveUnknownPlayer() {
	s.Require().NoError(s.Storage.SaveGame(s.Ctx, s.NewGame("ABCDEF")))
	_, err := s.Storage.UpdateGameStatus(s.Ctx, "ABCDEF", model.GameStatusWaiting, model.GameStatusPlaying, "", s.Now)
	s.Require().NoError(err)

	err = s.Storage.RecordMove(s.Ctx, &model.Move{GameCode: "ABCDEF", PlayerID: "ghost", NewPosition: 4})
	s.ErrorIs(err, model.ErrPlayerNotFound)
}
