// Package app wires the relay daemon: config, logging, storage, the
// simulated native module, the push client and the supervised goroutines
// that keep them running.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pushrelay/internal/config"
	"pushrelay/internal/platform"
	"pushrelay/internal/push"
	"pushrelay/internal/relay"
	"pushrelay/internal/runtime/supervisor"
	"pushrelay/internal/sdk"
	"pushrelay/internal/sdk/sim"
	"pushrelay/internal/storage"
	logx "pushrelay/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	// mod is nil when the native module is configured absent.
	mod    *sim.Module
	gate   *platform.Gate
	client *push.Client

	mu         sync.Mutex
	deliveries map[relay.EventType]uint64
	last       map[relay.EventType]any

	// notify is daemon.SdNotify outside tests.
	notify func(state string) (bool, error)
}

// Option adjusts an App before it is built.
type Option func(*options)

type options struct {
	environ map[string]string
	notify  func(state string) (bool, error)
}

// WithEnviron replaces the process environment used for PUSHRELAY_*
// overrides.
func WithEnviron(environ map[string]string) Option {
	return func(o *options) { o.environ = environ }
}

// WithNotify replaces the systemd notifier.
func WithNotify(fn func(state string) (bool, error)) Option {
	return func(o *options) { o.notify = fn }
}

func New(cfgPath string, opts ...Option) (*App, error) {
	o := options{notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) }}
	for _, opt := range opts {
		opt(&o)
	}

	cfgm := config.NewManager(cfgPath)
	if o.environ != nil {
		cfgm.SetEnviron(o.environ)
	}
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateConfig(cfg) })
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(config.LoggingOf(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	osName, _ := platform.ParseOS(cfg.Platform)

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	a := &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		store:      store,
		deliveries: map[relay.EventType]uint64{},
		last:       map[relay.EventType]any{},
		notify:     o.notify,
	}

	// A nil *sim.Module must not reach push.New as a typed interface value.
	var native sdk.Module
	if cfg.SDK.IsAvailable() {
		scfg, err := mapSimConfig(cfg)
		if err != nil {
			a.closeStorage()
			_ = logSvc.Close()
			return nil, err
		}
		mod, err := sim.New(scfg, store, log.With(logx.String("comp", "sdk")))
		if err != nil {
			a.closeStorage()
			_ = logSvc.Close()
			return nil, err
		}
		a.mod = mod
		native = mod
	} else {
		log.Warn("native sdk disabled via config; relay runs inert")
	}

	a.gate = platform.NewGate(osName, platform.Config{
		NoticesPerSec: cfg.Diagnostics.NoticesPerSec,
	}, log.With(logx.String("comp", "platform")))
	a.client = push.New(native, push.Options{
		Gate: a.gate,
		Log:  log.With(logx.String("comp", "push")),
	})
	return a, nil
}

// Client exposes the push client.
func (a *App) Client() *push.Client { return a.client }

// Config returns the last committed config.
func (a *App) Config() *config.Config { return a.cfgm.Get() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Deliveries returns how many payloads each handler has received.
func (a *App) Deliveries() map[string]uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]uint64, len(a.deliveries))
	for t, n := range a.deliveries {
		out[t.String()] = n
	}
	return out
}

// LastPayload returns the most recent payload handled for the event name.
func (a *App) LastPayload(event string) (any, bool) {
	t, err := relay.ParseEventType(event)
	if err != nil {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.last[t]
	return p, ok
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if a.mod != nil {
		a.sup.Go("sdk.run", a.mod.Run)
	}

	// Handlers go in before Init so the ids broadcast triggered by
	// registration is observed.
	for _, t := range relay.EventTypes() {
		if err := a.client.AddEventListener(t, a.handler(t)); err != nil {
			return err
		}
	}
	cfg := a.cfgm.Get()
	a.client.Init(strings.TrimSpace(cfg.SDK.AppID), nil)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	if sent, err := a.notify(daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}

	a.log.Info("app started",
		logx.String("platform", string(a.client.Platform())),
		logx.Bool("sdk_available", a.client.Available()))
	return nil
}

func (a *App) handler(t relay.EventType) relay.Handler {
	log := a.log.With(logx.String("event", t.String()))
	return func(payload any) {
		a.mu.Lock()
		a.deliveries[t]++
		a.last[t] = payload
		n := a.deliveries[t]
		a.mu.Unlock()
		log.Info("event delivered", logx.Int64("count", int64(n)), logx.Any("payload", payload))
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(config.LoggingOf(next))
	a.gate.SetRate(next.Diagnostics.NoticesPerSec)

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStorage()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := a.notify(daemon.SdNotifyStopping); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}

	// Listeners go first so nothing reaches a handler during teardown.
	a.client.ClearListeners()
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
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
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.log.Debug("goroutine stats", logx.Any("goroutines", a.sup.Snapshot()))
	step("storage", time.Second, func(context.Context) error { return a.closeStorageErr() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeStorage() {
	if err := a.closeStorageErr(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
}

func (a *App) closeStorageErr() error {
	if a.store == nil {
		return nil
	}
	st := a.store
	a.store = nil
	return st.Close()
}
