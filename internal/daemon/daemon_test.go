package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"statusrelay/internal/app"
	"statusrelay/internal/cachet"
	"statusrelay/internal/config"
	"statusrelay/internal/discord"
	"statusrelay/internal/eventbus"
	"statusrelay/internal/relay"
	"statusrelay/internal/storage"
	logx "statusrelay/pkg/logx"
)

type recordingNotifier struct {
	mu     sync.Mutex
	states []string
}

func (n *recordingNotifier) Notify(state string) error {
	n.mu.Lock()
	n.states = append(n.states, state)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) has(state string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.states {
		if s == state {
			return true
		}
	}
	return false
}

type emptyLister struct{ calls atomic.Int32 }

func (l *emptyLister) Components(context.Context, int) (*cachet.ComponentPage, error) {
	l.calls.Add(1)
	return &cachet.ComponentPage{}, nil
}

type nopSender struct{}

func (nopSender) Send(context.Context, string) (discord.Message, error) {
	return discord.Message{}, nil
}

func loadManager(t *testing.T, schedule string) *config.Manager {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "cachet:\n  api_url: https://status.example.com/api/v1\n  api_token: t\n" +
		"discord:\n  webhook_url: https://discord.example.com/api/webhooks/1/x\n" +
		"storage:\n  driver: file\n  path: " + filepath.Join(dir, "state.json") + "\n" +
		"daemon:\n  schedule: \"" + schedule + "\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	m := config.NewManager(path)
	m.SetEnv(func(string) (string, bool) { return "", false })
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	return m
}

func fakeBuild(lister *emptyLister, builds *atomic.Int32) BuildFunc {
	return func(cfg *config.Config, log logx.Logger, bus eventbus.Bus) (*app.Runtime, error) {
		builds.Add(1)
		st, err := storage.Open(storage.Config{Driver: "file", Path: cfg.Storage.Path}, log)
		if err != nil {
			return nil, err
		}
		format, err := relay.NewFormatter(cfg.Discord.MessageTemplate)
		if err != nil {
			return nil, err
		}
		r, err := relay.New(relay.Deps{Lister: lister, Store: st, Webhook: nopSender{}, Formatter: format, Bus: bus})
		if err != nil {
			return nil, err
		}
		return &app.Runtime{Relay: r, Store: st}, nil
	}
}

func TestRunFirstPassImmediatelyAndNotifies(t *testing.T) {
	mgr := loadManager(t, "1h")
	lister := &emptyLister{}
	var builds atomic.Int32
	notifier := &recordingNotifier{}
	d, err := New(Options{Manager: mgr, Notifier: notifier, Build: fakeBuild(lister, &builds)})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for !notifier.has(notifyWatchdog) {
		if time.Now().After(deadline) {
			t.Fatal("first run never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if lister.calls.Load() != 1 {
		t.Fatalf("lister calls = %d, want 1", lister.calls.Load())
	}

	st, herr := d.Health()
	if herr != nil {
		t.Fatalf("health error: %v", herr)
	}
	if rs := st.(runStatus); rs.Runs != 1 || rs.Schedule != "every 1h0m0s" || rs.NextRun.IsZero() {
		t.Fatalf("health = %+v", rs)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !notifier.has(notifyReady) || !notifier.has(notifyStopping) {
		t.Fatalf("states = %v", notifier.states)
	}
}

func TestApplyRebuildsOnlyWhenNeeded(t *testing.T) {
	mgr := loadManager(t, "5m")
	lister := &emptyLister{}
	var builds atomic.Int32
	d, err := New(Options{Manager: mgr, Notifier: &recordingNotifier{}, Build: fakeBuild(lister, &builds)})
	if err != nil {
		t.Fatal(err)
	}
	cfg := mgr.Get()
	rt, err := d.build(cfg, d.log, d.bus)
	if err != nil {
		t.Fatal(err)
	}
	d.rt, d.cfg = rt, cfg
	if err := d.reschedule(cfg); err != nil {
		t.Fatal(err)
	}
	defer func() { d.cron.Stop(); _ = d.rt.Close() }()

	ctx := context.Background()

	next := *cfg
	next.Daemon.Schedule = "*/10 * * * *"
	d.apply(ctx, &next)
	if d.spec.Kind != SpecCron || builds.Load() != 1 {
		t.Fatalf("spec = %+v builds = %d", d.spec, builds.Load())
	}

	third := next
	third.Discord.Username = "status-bot"
	d.apply(ctx, &third)
	if builds.Load() != 2 {
		t.Fatalf("builds = %d, want 2 after discord change", builds.Load())
	}
	if d.cfg.Discord.Username != "status-bot" {
		t.Fatal("config not switched")
	}
}

func TestValidateSchedule(t *testing.T) {
	cfg := &config.Config{}
	cfg.Daemon.Schedule = "whenever"
	if err := ValidateSchedule(context.Background(), cfg); err == nil {
		t.Fatal("expected error")
	}
	cfg.Daemon.Schedule = "@hourly"
	if err := ValidateSchedule(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
}
