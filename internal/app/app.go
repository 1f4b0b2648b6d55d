package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"herald/internal/config"
	"herald/internal/dispatch"
	"herald/internal/eventbus"
	"herald/internal/observability/debugsrv"
	"herald/internal/quiz"
	rtsup "herald/internal/runtime/supervisor"
	"herald/internal/scheduler"
	"herald/internal/storage"
	"herald/internal/target"
	kit "herald/internal/transport"
	"herald/internal/transport/discord"
	logx "herald/pkg/logx"
	"herald/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter  kit.Adapter
	resolver *target.Resolver
	slot     *quiz.Slot
	watcher  *quiz.Watcher
	loop     *scheduler.Loop
	debug    *debugsrv.Server

	workers int
	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)
	ad, err := discord.New(discord.Config{Token: cfg.Discord.Token}, bootLog)
	if err != nil {
		return nil, err
	}

	// The chat sink starts disabled; it is enabled once its channel resolves.
	logCfg := mapLogConfig(cfg)
	logCfg.Chat.Enabled = false
	logSvc, root := logx.New(logCfg, ad)
	log := root.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("ledger storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	files, err := mapCatalog(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	policy, _ := quiz.ParsePolicy(cfg.Quiz.Policy)
	schedCfg, _ := mapSchedulerConfig(cfg)

	bus := eventbus.New()
	slot := quiz.NewSlot(policy)
	resolver := target.NewResolver(ad, root)
	loop, err := scheduler.New(schedCfg, scheduler.Deps{
		Source:    files,
		Ledger:    store,
		Auditor:   store,
		Sender:    ad,
		Ready:     ad.Ready(),
		Resolver:  resolver,
		Decorator: dispatch.NewDecorator(files, attachmentRoot(cfg), root),
		Slot:      slot,
		Bus:       bus,
		Log:       root,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		resolver: resolver,
		slot:     slot,
		watcher:  quiz.NewWatcher(slot, ad, bus, root),
		loop:     loop,
		workers:  mapWorkers(cfg),
		updates:  make(chan kit.Update, 256),
	}
	if cfg.Debug.Enabled {
		a.debug = debugsrv.New(debugsrv.Config{Addr: cfg.Debug.Addr, Token: cfg.Debug.Token}, a.status, root)
	}
	return a, nil
}

func (a *App) status() debugsrv.Status {
	var st debugsrv.Status
	if d, ok := a.loop.Destination(); ok {
		st.Ready = true
		st.Destination = d.String()
	}
	st.Pending = a.loop.Pending()
	if q, ok := a.slot.Current(); ok {
		st.QuizActive = true
		st.QuizID = q.QuizID
	}
	return st
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Done()
}

// Err returns the first fatal error, such as ErrLedgerPersist from the scheduler.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validate)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("scheduler", a.loop.Run)
	a.sup.Go("quiz.inbound", a.inbound)
	a.sup.Go0("logging.chat_target", func(c context.Context) {
		select {
		case <-c.Done():
			return
		case <-a.adapter.Ready():
		}
		a.applyChatTarget(c, a.cfgm.Get(), true)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, rtsup.WithRestartBackoff(250*time.Millisecond, 5*time.Second))
	if a.debug != nil {
		a.sup.Go0("debug.http", func(c context.Context) {
			if err := a.debug.Run(c); err != nil {
				a.log.Warn("debug server stopped", logx.Err(err))
			}
		})
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := systemd.Watchdog(c); err != nil {
			a.log.Warn("systemd watchdog stopped", logx.Err(err))
		}
	})

	if _, err := systemd.Ready(); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	}
	a.log.Info("app started", logx.Int("workers", a.workers))
	return nil
}

// inbound evaluates messages against the quiz slot with at most a.workers
// evaluations in flight.
func (a *App) inbound(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(a.workers)
	defer func() { _ = g.Wait() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case up := <-a.updates:
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				continue
			}
			msg := up.Message
			g.Go(func() error {
				a.watcher.Handle(ctx, msg)
				return nil
			})
		}
	}
}

func (a *App) applyChatTarget(ctx context.Context, cfg *config.Config, wait bool) {
	lc := cfg.Logging.Chat
	if !lc.Enabled {
		a.logs.SetChatTarget("")
		a.logs.Apply(mapLogConfig(cfg))
		return
	}
	guild := strings.TrimSpace(cfg.Discord.TargetGuild)
	var (
		d   target.Destination
		err error
	)
	if wait {
		retry, _ := config.ParseDurationOrDefault("scheduler.resolve_retry", cfg.Scheduler.ResolveRetry, scheduler.DefaultResolveRetry)
		d, err = a.resolver.Wait(ctx, guild, lc.Channel, retry)
	} else {
		d, err = a.resolver.Resolve(guild, lc.Channel)
	}
	if err != nil {
		if ctx.Err() == nil {
			a.log.Warn("log channel not resolved; chat logging stays off", logx.String("channel", lc.Channel), logx.Err(err))
		}
		return
	}
	a.logs.SetChatTarget(d.ChannelID)
	a.logs.Apply(mapLogConfig(cfg))
	a.log.Info("chat logging enabled", logx.Channel(d.String()))
}

func (a *App) applyReload(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart {
		a.log.Warn("some config changes need a restart to take effect", logx.String("changed", strings.Join(sections, ",")))
	}

	if oldCfg.Logging != newCfg.Logging {
		a.applyChatTarget(ctx, newCfg, false)
	}
	a.loop.SetPinAll(newCfg.Discord.PinAll)
	if p, err := quiz.ParsePolicy(newCfg.Quiz.Policy); err == nil {
		a.slot.SetPolicy(p)
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	a.sup.Cancel()

	// step runs fn with an upper bound so one component cannot stall the stop.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, time.Until(dl))
		}
		if limit <= 0 {
			a.log.Warn("stop step skipped (no time left)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// The scheduler finishes an in-flight item before the gateway closes.
	step("supervisor", 10*time.Second, func(c context.Context) error {
		// The first fatal error was already reported through Err.
		if err := a.sup.Wait(c); c.Err() != nil {
			return err
		}
		return nil
	})
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
