package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/client"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// event is one change observed on a live game client
type event struct {
	state client.GameState
	msg   protocol.Message
}

// liveGame is a connected game client plus a feed of its changes
type liveGame struct {
	gc          *client.GameClient
	events      chan event
	unsubscribe func()
}

func newGameClient() (*client.GameClient, string, error) {
	opts := client.DefaultOptions()
	opts.Logger = logger

	switch cfg.Transport {
	case TransportPolling:
		return client.NewGameClient(client.NewPollingTransport(opts), api, sessions, logger), client.PollingURL(cfg.ServerURL), nil
	default:
		url, err := client.SocketURL(cfg.ServerURL)
		if err != nil {
			return nil, "", err
		}
		return client.NewGameClient(client.NewSocketTransport(opts), api, sessions, logger), url, nil
	}
}

// connect opens the realtime connection. When a session is saved the
// client rejoins on its own; connect waits for that to finish.
func connect(ctx context.Context) (*liveGame, error) {
	gc, url, err := newGameClient()
	if err != nil {
		return nil, err
	}

	lg := &liveGame{gc: gc, events: make(chan event, 256)}
	lg.unsubscribe = gc.Subscribe(func(state client.GameState, msg protocol.Message) {
		select {
		case lg.events <- event{state: state, msg: msg}:
		default:
		}
	})

	session, err := sessions.Load()
	if err != nil {
		lg.close()
		return nil, err
	}

	if err := gc.Connect(ctx, url); err != nil {
		lg.close()
		return nil, fmt.Errorf("unable to connect to %s: %w", cfg.ServerURL, err)
	}

	if session != nil {
		if _, err := lg.await(ctx, isType[protocol.JoinedGame]); err != nil {
			lg.close()
			return nil, fmt.Errorf("unable to rejoin game %s: %w", session.GameCode, err)
		}
	}
	return lg, nil
}

func (lg *liveGame) close() {
	lg.unsubscribe()
	lg.gc.Close()
}

// await returns the first message accepted by match. A server error
// message or a transport that gave up ends the wait.
func (lg *liveGame) await(ctx context.Context, match func(protocol.Message) bool) (protocol.Message, error) {
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, errors.New("timed out waiting for the server")
			}
			return nil, ctx.Err()
		case ev := <-lg.events:
			if ev.msg == nil {
				if client.IsTerminal(ev.state.TransportError) {
					return nil, ev.state.TransportError
				}
				continue
			}
			if e, ok := ev.msg.(protocol.Error); ok {
				return nil, fmt.Errorf("%s (%s)", e.Message, e.Code)
			}
			if match(ev.msg) {
				return ev.msg, nil
			}
		}
	}
}

func isType[T protocol.Message](msg protocol.Message) bool {
	_, ok := msg.(T)
	return ok
}
