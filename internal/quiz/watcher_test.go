package quiz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/eventbus"
	logx "herald/pkg/logx"
)

func nextEvent(t *testing.T, ch <-chan eventbus.Event) eventbus.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event")
		return eventbus.Event{}
	}
}

func TestWatcherPublishesOutcome(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := NewSlot(PolicyReplace)
	r := &countingReplier{}
	w := NewWatcher(s, r, bus, logx.Nop())

	_, err := s.TryInstall(Active{QuizID: 5, ItemID: 50, Answer: "blue whale", ChannelID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, NoMatch, w.Handle(context.Background(), msg("c1", "a whale")))
	assert.Equal(t, Won, w.Handle(context.Background(), msg("c1", "The blue whale!")))

	e := nextEvent(t, events)
	assert.Equal(t, eventbus.QuizWon, e.Type)
	assert.Equal(t, uint32(5), e.Data)

	end := time.Now().Add(-time.Minute)
	_, err = s.TryInstall(Active{QuizID: 6, Answer: "x", ChannelID: "c1", EndAt: &end})
	require.NoError(t, err)
	assert.Equal(t, Expired, w.Handle(context.Background(), msg("c1", "x")))
	assert.Equal(t, eventbus.QuizExpired, nextEvent(t, events).Type)

	assert.Equal(t, int32(1), r.n.Load())
}
