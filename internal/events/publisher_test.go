package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/testutil"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestNATSPublisherPublishesOnGameSubject(t *testing.T) {
	fc := &fakeConn{}
	p := newWithConn(fc, "snl.events", testutil.NopLogger())

	event := model.Event{
		Type:      model.EventGameFinished,
		Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		GameCode:  "ABCDEF",
		PlayerID:  "p1",
		Payload:   model.GameFinishedPayload{WinnerID: "p1", WinnerName: "Alice"},
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, fc.subjects, 1)
	assert.Equal(t, "snl.events.ABCDEF.game.finished", fc.subjects[0])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(fc.payloads[0], &decoded))
	assert.Equal(t, "game.finished", decoded["type"])
	assert.Equal(t, "ABCDEF", decoded["gameCode"])
	assert.Equal(t, "p1", decoded["playerId"])
}

func TestNATSPublisherReturnsConnErrors(t *testing.T) {
	fc := &fakeConn{err: errors.New("no servers")}
	p := newWithConn(fc, "snl.events", testutil.NopLogger())

	err := p.Publish(context.Background(), model.Event{Type: model.EventGameCreated, GameCode: "ABCDEF"})
	assert.Error(t, err)
}

func TestNATSPublisherCloseDrains(t *testing.T) {
	fc := &fakeConn{}
	p := newWithConn(fc, "snl.events", testutil.NopLogger())

	require.NoError(t, p.Close())
	assert.True(t, fc.drained)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), model.Event{}))
}
