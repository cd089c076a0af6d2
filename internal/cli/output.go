package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/response"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/client"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// MoveList is printed as a move history table
type MoveList []protocol.Move

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

// PrintEvent outputs one server message as it arrives
func (o *Output) PrintEvent(msg protocol.Message) {
	now := time.Now()

	if o.format == "json" {
		data, _ := json.Marshal(map[string]any{"time": now, "event": msg})
		fmt.Fprintln(o.w, string(data))
		return
	}
	fmt.Fprintf(o.w, "[%s] %s\n", now.Format("15:04:05"), describe(msg))
}

// PrintConnection outputs a connection state change
func (o *Output) PrintConnection(state client.GameState) {
	if o.format == "json" {
		out := map[string]any{"connection": state.Connection}
		if state.TransportError != nil {
			out["error"] = state.TransportError.Error()
		}
		data, _ := json.Marshal(out)
		fmt.Fprintln(o.w, string(data))
		return
	}
	if client.IsTerminal(state.TransportError) {
		fmt.Fprintln(o.w, "Unable to reconnect, giving up")
		return
	}
	fmt.Fprintf(o.w, "(%s)\n", state.Connection)
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case client.Session:
		o.printSession(v)
	case GameView:
		o.printGame(v)
	case Roll:
		o.printRoll(v)
	case MoveList:
		o.printMoves(v)
	case response.HealthResponse:
		fmt.Fprintf(o.w, "Status: %s\n", v.Status)
		fmt.Fprintf(o.w, "Storage: %s\n", v.Storage)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printSession(s client.Session) {
	fmt.Fprintf(o.w, "Game: %s\n", s.GameCode)
	fmt.Fprintf(o.w, "Player: %s (%s)\n", s.PlayerName, s.PlayerID)
	if s.IsCreator {
		fmt.Fprintln(o.w, "You created this game. Share the code, then run `snl start`.")
	}
}

func (o *Output) printGame(v GameView) {
	if v.Game == nil {
		fmt.Fprintln(o.w, "No game")
		return
	}
	fmt.Fprintf(o.w, "Game: %s\n", v.Game.Code)
	fmt.Fprintf(o.w, "Status: %s\n", v.Game.Status)

	winner := ""
	fmt.Fprintf(o.w, "Players (%d):\n", len(v.Players))
	for _, p := range v.Players {
		var tags string
		if p.ID == v.Game.CreatorID {
			tags += " [creator]"
		}
		if p.ID == v.PlayerID {
			tags += " [you]"
		}
		if !p.IsConnected {
			tags += " [away]"
		}
		fmt.Fprintf(o.w, "  - %-20s %-7s cell %3d%s\n", p.Name, p.Color, p.Position, tags)
		if p.ID == v.Game.WinnerID {
			winner = p.Name
		}
	}

	if winner != "" {
		fmt.Fprintf(o.w, "\nWinner: %s\n", winner)
	}
}

func (o *Output) printRoll(r Roll) {
	fmt.Fprintln(o.w, describe(r.Move))
	if r.Won {
		fmt.Fprintln(o.w, "You won!")
	}
}

func (o *Output) printMoves(moves MoveList) {
	if len(moves) == 0 {
		fmt.Fprintln(o.w, "No moves yet")
		return
	}
	for _, m := range moves {
		line := fmt.Sprintf("%s  %-20s rolled %d: %d -> %d", m.Timestamp.Format("15:04:05"), m.PlayerName, m.DiceRoll, m.PreviousPosition, m.NewPosition)
		if m.Effect != nil {
			line += fmt.Sprintf(" (%s %d -> %d)", m.Effect.Kind, m.Effect.From, m.Effect.To)
		}
		fmt.Fprintln(o.w, line)
	}
}

// describe renders a server message as one line of text
func describe(msg protocol.Message) string {
	switch m := msg.(type) {
	case protocol.JoinedGame:
		return fmt.Sprintf("joined game %s with %d players", m.Game.Code, len(m.Players))
	case protocol.PlayerJoined:
		return fmt.Sprintf("%s joined (%s)", m.Player.Name, m.Player.Color)
	case protocol.PlayerLeft:
		return fmt.Sprintf("%s left", m.PlayerName)
	case protocol.PlayerMoved:
		line := fmt.Sprintf("%s rolled %d: %d -> %d", m.PlayerName, m.DiceRoll, m.PreviousPosition, m.NewPosition)
		if m.Effect != nil {
			if m.Effect.Kind == "ladder" {
				line += fmt.Sprintf(", climbed a ladder from %d", m.Effect.From)
			} else {
				line += fmt.Sprintf(", bitten by a snake at %d", m.Effect.From)
			}
		}
		return line
	case protocol.GameStarted:
		return fmt.Sprintf("game %s started", m.Game.Code)
	case protocol.GameEnded:
		return fmt.Sprintf("%s wins!", m.WinnerName)
	case protocol.Error:
		return fmt.Sprintf("error: %s (%s)", m.Message, m.Code)
	case protocol.Pong:
		return "pong"
	default:
		return string(msg.MessageType())
	}
}
