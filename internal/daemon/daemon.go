// Package daemon runs relay passes on a schedule until the process is stopped.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"statusrelay/internal/app"
	"statusrelay/internal/config"
	"statusrelay/internal/eventbus"
	"statusrelay/internal/metrics"
	"statusrelay/internal/observability/ops"
	"statusrelay/internal/relay"
	rtsup "statusrelay/internal/runtime/supervisor"
	logx "statusrelay/pkg/logx"
)

// BuildFunc constructs the relay runtime for a config; app.Build in production.
type BuildFunc func(cfg *config.Config, log logx.Logger, bus eventbus.Bus) (*app.Runtime, error)

type Options struct {
	Manager *config.Manager
	// Logs, when set, is re-applied on config reload.
	Logs     *logx.Service
	Debug    bool
	Log      logx.Logger
	Notifier Notifier
	Build    BuildFunc
}

type Daemon struct {
	mgr      *config.Manager
	logs     *logx.Service
	debug    bool
	log      logx.Logger
	notifier Notifier
	build    BuildFunc
	bus      *eventbus.Memory

	kick chan struct{}

	// owned by the runner goroutine after start
	rt   *app.Runtime
	cron *cron.Cron
	ops  *ops.Service

	mu     sync.Mutex
	cfg    *config.Config
	spec   ParsedSpec
	status runStatus
}

type runStatus struct {
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	Skipped   int       `json:"skipped"`
	LastRunID string    `json:"last_run_id,omitempty"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastTook  string    `json:"last_took,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Schedule  string    `json:"schedule"`
	NextRun   time.Time `json:"next_run,omitempty"`
	// EventsDropped counts lifecycle events a full subscriber missed.
	EventsDropped uint64 `json:"events_dropped"`
}

func New(opts Options) (*Daemon, error) {
	if opts.Manager == nil || opts.Manager.Get() == nil {
		return nil, errors.New("daemon: loaded config manager required")
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Notifier == nil {
		opts.Notifier = systemdNotifier{}
	}
	if opts.Build == nil {
		opts.Build = app.Build
	}
	return &Daemon{
		mgr:      opts.Manager,
		logs:     opts.Logs,
		debug:    opts.Debug,
		log:      opts.Log.With(logx.String("comp", "daemon")),
		notifier: opts.Notifier,
		build:    opts.Build,
		bus:      eventbus.New(),
		kick:     make(chan struct{}, 1),
	}, nil
}

// ValidateSchedule is installed as the config manager's reload validator.
func ValidateSchedule(_ context.Context, cfg *config.Config) error {
	if _, err := ParseSchedule(cfg.Daemon.Schedule); err != nil {
		return fmt.Errorf("%w: daemon.schedule: %v", config.ErrInvalid, err)
	}
	return nil
}

// Run blocks until ctx is canceled. The first relay pass starts immediately.
// Failed passes are logged and counted; they never stop the daemon.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.mgr.Get()
	if err := ValidateSchedule(ctx, cfg); err != nil {
		return err
	}
	d.mgr.SetValidator(ValidateSchedule)

	rt, err := d.build(cfg, d.log, d.bus)
	if err != nil {
		return err
	}
	d.rt = rt
	d.cfg = cfg

	sup := rtsup.New(ctx, rtsup.WithLogger(d.log))
	events, unsub := d.bus.Subscribe(64)
	sup.Go("metrics", func(ctx context.Context) error {
		defer unsub()
		metrics.Consume(ctx, events)
		return nil
	})

	var updates chan *config.Config
	if cfg.Daemon.WatchConfig {
		updates = d.mgr.Subscribe(1)
		defer d.mgr.Unsubscribe(updates)
		sup.GoRestart("config.watch", d.mgr.Watch,
			rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		)
	}

	d.ops = ops.New(app.MapOpsConfig(cfg), d.Health, d.log)
	d.ops.Reconfigure(ctx, app.MapOpsConfig(cfg))

	if err := d.reschedule(cfg); err != nil {
		sup.Cancel()
		_ = sup.Wait(context.Background())
		_ = rt.Close()
		return err
	}

	sup.Go("runner", func(ctx context.Context) error {
		d.loop(ctx, updates)
		return nil
	})
	d.trigger()

	if err := d.notifier.Notify(notifyReady); err != nil {
		d.log.Debug("sd_notify failed", logx.Err(err))
	}
	d.log.Info("daemon started", logx.String("schedule", d.scheduleString()))

	<-sup.Context().Done()
	return d.shutdown(sup)
}

func (d *Daemon) shutdown(sup *rtsup.Supervisor) error {
	start := time.Now()
	d.log.Info("stop requested")
	_ = d.notifier.Notify(notifyStopping)

	d.mu.Lock()
	c := d.cron
	d.cron = nil
	d.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	d.ops.Stop(stopCtx)
	err := sup.Stop(stopCtx)

	// The runner has returned; the runtime is no longer in use.
	if cerr := d.rt.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	d.log.Info("daemon stopped", logx.Duration("took", time.Since(start)))
	return err
}

// trigger requests a run; it coalesces with one already pending.
func (d *Daemon) trigger() {
	select {
	case d.kick <- struct{}{}:
	default:
		d.mu.Lock()
		d.status.Skipped++
		d.mu.Unlock()
		d.log.Debug("run already pending, tick skipped")
	}
}

// loop owns d.rt: runs and reloads never overlap.
func (d *Daemon) loop(ctx context.Context, updates <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.kick:
			d.runOnce(ctx)
		case cfg, ok := <-updates:
			if ok && cfg != nil {
				d.apply(ctx, cfg)
			}
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context) {
	d.mu.Lock()
	timeout := d.cfg.RunTimeout()
	d.mu.Unlock()

	rctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res, err := d.rt.Relay.RunOnce(rctx)
	d.record(res, err)

	if nerr := d.notifier.Notify(notifyWatchdog); nerr != nil {
		d.log.Debug("sd_notify failed", logx.Err(nerr))
	}
}

func (d *Daemon) record(res relay.Result, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Runs++
	d.status.LastRunID = res.RunID
	d.status.LastRunAt = res.Started
	d.status.LastTook = res.Took.String()
	d.status.LastError = ""
	if err != nil {
		d.status.Failures++
		d.status.LastError = err.Error()
	}
}

// apply switches to a newly published config. Only the parts that changed are rebuilt.
func (d *Daemon) apply(ctx context.Context, cfg *config.Config) {
	d.mu.Lock()
	old := d.cfg
	d.mu.Unlock()

	if d.logs != nil {
		d.logs.Apply(app.MapLogConfig(cfg, d.debug))
	}

	if relayChanged(old, cfg) {
		rt, err := d.build(cfg, d.log, d.bus)
		if err != nil {
			d.log.Error("config reload: relay rebuild failed, keeping previous", logx.Err(err))
			return
		}
		prev := d.rt
		d.rt = rt
		if err := prev.Close(); err != nil {
			d.log.Warn("closing previous runtime failed", logx.Err(err))
		}
		d.log.Info("relay rebuilt from new config")
	}

	if old.Daemon.Schedule != cfg.Daemon.Schedule || old.Daemon.Timezone != cfg.Daemon.Timezone {
		if err := d.reschedule(cfg); err != nil {
			d.log.Error("config reload: schedule rejected, keeping previous", logx.Err(err))
			cfg.Daemon.Schedule, cfg.Daemon.Timezone = old.Daemon.Schedule, old.Daemon.Timezone
		}
	}
	if d.ops != nil {
		d.ops.Reconfigure(ctx, app.MapOpsConfig(cfg))
	}

	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

func relayChanged(a, b *config.Config) bool {
	return !reflect.DeepEqual(a.Cachet, b.Cachet) ||
		!reflect.DeepEqual(a.Discord, b.Discord) ||
		!reflect.DeepEqual(a.Telegram, b.Telegram) ||
		!reflect.DeepEqual(a.Storage, b.Storage)
}

func (d *Daemon) reschedule(cfg *config.Config) error {
	spec, err := ParseSchedule(cfg.Daemon.Schedule)
	if err != nil {
		return err
	}
	sched, err := spec.CronSchedule()
	if err != nil {
		return err
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Daemon.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return err
		}
	}

	c := cron.New(cron.WithLocation(loc))
	c.Schedule(sched, cron.FuncJob(d.trigger))

	d.mu.Lock()
	prev := d.cron
	d.cron = c
	d.spec = spec
	d.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	c.Start()
	d.log.Info("schedule applied", logx.String("schedule", spec.String()), logx.String("tz", loc.String()))
	return nil
}

func (d *Daemon) scheduleString() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.spec.String()
}

// Health reports run counters for the ops server. It returns an error when
// the most recent run failed.
func (d *Daemon) Health() (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.status
	st.Schedule = d.spec.String()
	st.EventsDropped = d.bus.Dropped()
	if d.cron != nil {
		if entries := d.cron.Entries(); len(entries) > 0 {
			st.NextRun = entries[0].Next
		}
	}
	if st.LastError != "" {
		return st, errors.New(st.LastError)
	}
	return st, nil
}
