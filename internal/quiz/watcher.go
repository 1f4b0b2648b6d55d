package quiz

import (
	"context"

	"herald/internal/eventbus"
	kit "herald/internal/transport"
	logx "herald/pkg/logx"
)

// Watcher feeds inbound messages to a Slot and reports the outcome.
type Watcher struct {
	slot    *Slot
	replier Replier
	bus     eventbus.Bus
	log     logx.Logger
}

func NewWatcher(slot *Slot, r Replier, bus eventbus.Bus, log logx.Logger) *Watcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Watcher{slot: slot, replier: r, bus: bus, log: log.With(logx.String("comp", "quiz"))}
}

// Handle evaluates one message. Reply failures are logged; the quiz is
// already cleared at that point.
func (w *Watcher) Handle(ctx context.Context, msg *kit.Message) Outcome {
	out, q, err := w.slot.Evaluate(ctx, msg, w.replier)
	switch out {
	case Expired:
		w.log.Info("quiz expired", logx.Quiz(q.QuizID), logx.Item(q.ItemID))
		w.bus.Publish(eventbus.Event{Type: eventbus.QuizExpired, Data: q.QuizID})
	case Won:
		fields := []logx.Field{
			logx.Quiz(q.QuizID),
			logx.Item(q.ItemID),
			logx.String("winner", msg.AuthorID),
			logx.String("channel", msg.ChannelID),
		}
		if err != nil {
			w.log.Warn("quiz won but reply failed", append(fields, logx.Err(err))...)
		} else {
			w.log.Info("quiz won", fields...)
		}
		w.bus.Publish(eventbus.Event{Type: eventbus.QuizWon, Data: q.QuizID})
	}
	return out
}
