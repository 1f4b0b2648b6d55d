package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishFanout(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: QuizWon, Data: uint32(7)})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		assert.Equal(t, QuizWon, e.Type)
		assert.Equal(t, uint32(7), e.Data)
		assert.False(t, e.Time.IsZero(), "time not stamped")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: ItemDispatched})
	b.Publish(Event{Type: ItemFailed}) // dropped

	assert.Equal(t, ItemDispatched, (<-ch).Type)
	select {
	case e := <-ch:
		assert.Failf(t, "unexpected event", "%q", e.Type)
	default:
	}
}

func TestUnsubscribeCloses(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok, "channel still open")
	b.Publish(Event{Type: LedgerPersisted})
}
