// Package scheduler runs the minute-aligned dispatch loop: every tick it
// sends the due items that are not yet in the completion ledger, installs
// quizzes and records each success durably before moving on.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"herald/internal/catalog"
	"herald/internal/dispatch"
	"herald/internal/eventbus"
	"herald/internal/ledger"
	"herald/internal/quiz"
	"herald/internal/storage"
	"herald/internal/target"
	kit "herald/internal/transport"
	logx "herald/pkg/logx"
)

// ErrLedgerPersist is returned by Tick and Run when a dispatched item could
// not be recorded and the failure policy is FailExit.
var ErrLedgerPersist = ledger.ErrPersist

// FailurePolicy decides what happens after ledger persistence is exhausted.
type FailurePolicy int

const (
	// FailExit stops the loop with ErrLedgerPersist.
	FailExit FailurePolicy = iota
	// FailContinue keeps the id in memory and re-persists it on later ticks.
	FailContinue
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exit":
		return FailExit, nil
	case "continue":
		return FailContinue, nil
	default:
		return FailExit, fmt.Errorf("unknown ledger failure policy %q", s)
	}
}

const (
	DefaultTick         = "* * * * *"
	DefaultWarmup       = 5 * time.Second
	DefaultResolveRetry = 60 * time.Second
	DefaultSendBackoff  = 2 * time.Second
	DefaultRetryMax     = 3
	DefaultRetryBackoff = 2 * time.Second

	sendTimeout = 60 * time.Second
)

type Config struct {
	Guild   string
	Channel string
	PinAll  bool

	Tick         string
	Warmup       time.Duration
	ResolveRetry time.Duration
	SendBackoff  time.Duration

	RetryMax         int
	RetryBackoff     time.Duration
	OnPersistFailure FailurePolicy
}

func (c *Config) defaults() {
	if strings.TrimSpace(c.Tick) == "" {
		c.Tick = DefaultTick
	}
	if c.Warmup < 0 {
		c.Warmup = 0
	}
	if c.ResolveRetry <= 0 {
		c.ResolveRetry = DefaultResolveRetry
	}
	if c.SendBackoff < 0 {
		c.SendBackoff = 0
	}
	if c.RetryMax <= 0 {
		c.RetryMax = DefaultRetryMax
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
}

// Auditor records successful dispatches. Failures are logged only.
type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// Deps are the collaborators of a Loop. Auditor and Bus may be nil.
type Deps struct {
	Source    catalog.Source
	Ledger    ledger.Backend
	Auditor   Auditor
	Sender    kit.Sender
	Ready     <-chan struct{}
	Resolver  *target.Resolver
	Decorator *dispatch.Decorator
	Slot      *quiz.Slot
	Bus       eventbus.Bus
	Log       logx.Logger
}

// Result summarizes one tick.
type Result struct {
	Due    int
	Sent   int
	Failed int
}

type Loop struct {
	cfg   Config
	deps  Deps
	sched cron.Schedule
	log   logx.Logger

	pinAll atomic.Bool

	mu   sync.Mutex
	dest *target.Destination
	// pending holds ids that were sent but could not be persisted (FailContinue).
	pending map[uint32]struct{}

	now func() time.Time
}

func New(cfg Config, deps Deps) (*Loop, error) {
	cfg.defaults()
	sched, err := cron.ParseStandard(cfg.Tick)
	if err != nil {
		return nil, fmt.Errorf("scheduler.tick %q: %w", cfg.Tick, err)
	}
	if deps.Source == nil || deps.Ledger == nil || deps.Sender == nil || deps.Resolver == nil || deps.Decorator == nil || deps.Slot == nil {
		return nil, errors.New("scheduler: missing dependency")
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop()
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	l := &Loop{
		cfg:     cfg,
		deps:    deps,
		sched:   sched,
		log:     log.With(logx.String("comp", "scheduler")),
		pending: map[uint32]struct{}{},
		now:     time.Now,
	}
	l.pinAll.Store(cfg.PinAll)
	return l, nil
}

// SetPinAll changes the global pin default; applies from the next item.
func (l *Loop) SetPinAll(v bool) { l.pinAll.Store(v) }

// SetDestination installs the default destination without the startup
// preamble.
func (l *Loop) SetDestination(d target.Destination) {
	l.mu.Lock()
	l.dest = &d
	l.mu.Unlock()
}

// Destination returns the resolved default destination.
func (l *Loop) Destination() (target.Destination, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dest == nil {
		return target.Destination{}, false
	}
	return *l.dest, true
}

// Pending returns how many dispatched ids still await persistence.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Run waits for the client, resolves the default destination and then ticks
// until ctx is cancelled or a fatal error occurs.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.preamble(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for {
		if _, err := l.Tick(ctx, l.now()); err != nil {
			return err
		}
		next := l.sched.Next(time.Now())
		l.log.Debug("sleeping until next tick", logx.Time("next", next))
		if !sleep(ctx, time.Until(next)) {
			return nil
		}
	}
}

func (l *Loop) preamble(ctx context.Context) error {
	if _, ok := l.Destination(); ok {
		return nil
	}
	if l.deps.Ready != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.deps.Ready:
		}
	}
	if l.cfg.Warmup > 0 {
		l.log.Debug("warming up", logx.Duration("warmup", l.cfg.Warmup))
		if !sleep(ctx, l.cfg.Warmup) {
			return ctx.Err()
		}
	}
	d, err := l.deps.Resolver.Wait(ctx, l.cfg.Guild, l.cfg.Channel, l.cfg.ResolveRetry)
	if err != nil {
		return err
	}
	l.SetDestination(d)
	l.log.Info("destination resolved",
		logx.String("guild", d.GuildName),
		logx.String("channel", d.ChannelName),
		logx.String("channel_id", d.ChannelID),
	)
	return nil
}

// Tick dispatches every due item once. Source and ledger read errors abort
// the tick and are only logged; the returned error is always fatal.
func (l *Loop) Tick(ctx context.Context, now time.Time) (Result, error) {
	log := l.log.With(logx.String("tick", uuid.NewString()))
	var res Result

	led, err := ledger.Load(ctx, l.deps.Ledger)
	if err != nil {
		log.Error("tick aborted: ledger unreadable", logx.Err(err))
		return res, nil
	}
	items, err := l.deps.Source.Items(ctx)
	if err != nil {
		log.Error("tick aborted: schedule unreadable", logx.Err(err))
		return res, nil
	}

	if err := l.flushPending(ctx, led, log); err != nil {
		return res, err
	}

	for _, it := range items {
		if led.Has(it.ID) || !it.Due(now) {
			continue
		}
		if ctx.Err() != nil {
			return res, nil
		}
		res.Due++

		ilog := log.With(logx.Item(it.ID))
		sent, err := l.dispatchOne(ctx, it, led, ilog)
		if sent {
			res.Sent++
		}
		if err != nil {
			if errors.Is(err, ErrLedgerPersist) {
				return res, err
			}
			res.Failed++
			ilog.Error("item not dispatched", logx.Err(err))
			l.deps.Bus.Publish(eventbus.Event{Type: eventbus.ItemFailed, Data: it.ID})
			if !sent && l.cfg.SendBackoff > 0 && errors.Is(err, errSend) {
				sleep(ctx, l.cfg.SendBackoff)
			}
		}
	}

	if res.Due > 0 {
		log.Info("tick done", logx.Int("due", res.Due), logx.Int("sent", res.Sent), logx.Int("failed", res.Failed))
	}
	return res, nil
}

var errSend = errors.New("send failed")

// dispatchOne runs one item through decorate, resolve, send, pin, quiz and
// ledger. sent reports whether the message reached the platform.
func (l *Loop) dispatchOne(ctx context.Context, it catalog.Item, led *ledger.Ledger, log logx.Logger) (sent bool, err error) {
	payload, err := l.deps.Decorator.Decorate(ctx, it)
	if err != nil {
		return false, err
	}

	def, ok := l.Destination()
	if !ok && it.Target == nil {
		return false, errors.New("default destination not resolved")
	}

	var monitor *target.Destination
	if payload.Quiz != nil && payload.Quiz.HasMonitorOverride() {
		m, err := l.deps.Resolver.Override(def, payload.Quiz.MonitorGuild, payload.Quiz.MonitorChannel)
		if err != nil {
			return false, fmt.Errorf("quiz %d monitor: %w", payload.Quiz.ID, err)
		}
		monitor = &m
	}

	dest := def
	if it.Target != nil {
		dest, err = l.deps.Resolver.Override(def, it.Target.Guild, it.Target.Channel)
		if err != nil {
			return false, fmt.Errorf("item target: %w", err)
		}
	}

	// Once the send starts the item must be finished, so shutdown does not
	// interrupt it between send and ledger.
	wctx := context.WithoutCancel(ctx)
	sctx, cancel := context.WithTimeout(wctx, sendTimeout)
	ref, err := l.deps.Sender.Send(sctx, dest.ChannelID, payload.Message)
	cancel()
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", errSend, dest, err)
	}
	log.Info("item sent", logx.Channel(dest.String()), logx.String("message_id", ref.MessageID))

	pinned := false
	if it.Pin(l.pinAll.Load()) {
		if err := l.deps.Sender.Pin(wctx, ref); err != nil {
			log.Warn("pin failed", logx.String("message_id", ref.MessageID), logx.Err(err))
		} else {
			pinned = true
		}
	}

	var quizID uint32
	if payload.Quiz != nil {
		quizID = payload.Quiz.ID
		watch := dest
		if monitor != nil {
			watch = *monitor
		}
		l.installQuiz(it.ID, *payload.Quiz, watch, log)
	}

	if l.deps.Auditor != nil {
		entry := storage.AuditEntry{
			At:        l.now(),
			ItemID:    it.ID,
			ChannelID: ref.ChannelID,
			MessageID: ref.MessageID,
			Pinned:    pinned,
			QuizID:    quizID,
		}
		if err := l.deps.Auditor.AppendAudit(wctx, entry); err != nil {
			log.Warn("audit append failed", logx.Err(err))
		}
	}

	led.Add(it.ID)
	if err := l.persist(wctx, led, log); err != nil {
		if l.cfg.OnPersistFailure == FailExit {
			return true, err
		}
		l.mu.Lock()
		l.pending[it.ID] = struct{}{}
		l.mu.Unlock()
		log.Error("ledger not persisted; keeping id in memory", logx.Err(err))
	}
	l.deps.Bus.Publish(eventbus.Event{Type: eventbus.ItemDispatched, Data: it.ID})
	return true, nil
}

func (l *Loop) installQuiz(itemID uint32, q catalog.Quiz, watch target.Destination, log logx.Logger) {
	a := quiz.Active{
		QuizID:    q.ID,
		ItemID:    itemID,
		Answer:    q.Answer,
		ReplyWith: q.ReplyWith,
		EndAt:     q.EndAt,
		ChannelID: watch.ChannelID,
	}
	prev, err := l.deps.Slot.TryInstall(a)
	if err != nil {
		log.Warn("quiz not installed", logx.Quiz(q.ID), logx.Err(err))
		l.deps.Bus.Publish(eventbus.Event{Type: eventbus.QuizRejected, Data: q.ID})
		return
	}
	fields := []logx.Field{logx.Quiz(q.ID), logx.Channel(watch.String())}
	if prev != nil {
		fields = append(fields, logx.Uint64("replaced_quiz", uint64(prev.QuizID)))
	}
	log.Info("quiz installed", fields...)
	l.deps.Bus.Publish(eventbus.Event{Type: eventbus.QuizInstalled, Data: q.ID})
}

func (l *Loop) persist(ctx context.Context, led *ledger.Ledger, log logx.Logger) error {
	err := led.PersistWithRetry(ctx, ledger.RetryPolicy{
		Attempts: l.cfg.RetryMax,
		Backoff:  l.cfg.RetryBackoff,
		OnFailure: func(attempt int, err error) {
			log.Warn("ledger persist attempt failed", logx.Int("attempt", attempt), logx.Int("max", l.cfg.RetryMax), logx.Err(err))
		},
	})
	if err != nil {
		l.deps.Bus.Publish(eventbus.Event{Type: eventbus.LedgerPersistFailed, Data: led.Len()})
		return err
	}
	l.mu.Lock()
	clear(l.pending)
	l.mu.Unlock()
	l.deps.Bus.Publish(eventbus.Event{Type: eventbus.LedgerPersisted, Data: led.Len()})
	return nil
}

// flushPending merges ids that were sent but never persisted and tries to
// persist them again.
func (l *Loop) flushPending(ctx context.Context, led *ledger.Ledger, log logx.Logger) error {
	l.mu.Lock()
	n := len(l.pending)
	for id := range l.pending {
		led.Add(id)
	}
	l.mu.Unlock()
	if n == 0 {
		return nil
	}
	log.Info("re-persisting ledger entries", logx.Int("pending", n))
	if err := l.persist(context.WithoutCancel(ctx), led, log); err != nil {
		if l.cfg.OnPersistFailure == FailExit {
			return err
		}
		log.Error("ledger still not persisted", logx.Err(err))
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
