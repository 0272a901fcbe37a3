package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "statusrelay/pkg/logx"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFirstErrorCancelsGroup(t *testing.T) {
	s := New(context.Background(), WithLogger(logx.Nop()))
	boom := errors.New("boom")
	var sawCancel atomic.Bool
	s.Go("waiting", func(ctx context.Context) error {
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	})
	s.Go("failing", func(context.Context) error { return boom })

	err := s.Wait(waitCtx(t))
	if !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), "failing:") {
		t.Fatalf("Wait err = %v, want failing: boom", err)
	}
	if !sawCancel.Load() {
		t.Fatal("sibling was not canceled")
	}
}

func TestPanicBecomesError(t *testing.T) {
	s := New(context.Background())
	s.Go("panicky", func(context.Context) error { panic("oops") })
	err := s.Wait(waitCtx(t))
	if err == nil || !strings.Contains(err.Error(), "oops") {
		t.Fatalf("err = %v", err)
	}
}

func TestGoRestartRetriesWithoutFailingGroup(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("restarted loop failed the group: %v", err)
	}
	if runs.Load() != 3 {
		t.Fatalf("runs = %d, want 3", runs.Load())
	}
	if s.Context().Err() != nil {
		t.Fatal("group canceled by a self-healing loop")
	}
}

func TestStopCancelsLoops(t *testing.T) {
	s := New(context.Background())
	s.GoRestart("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop = %v", err)
	}
}

func TestJitterBounds(t *testing.T) {
	t.Parallel()
	for range 100 {
		if got := jitter(time.Second); got < time.Second || got > 1200*time.Millisecond {
			t.Fatalf("jitter = %v", got)
		}
	}
	if jitter(0) != 0 {
		t.Fatal("zero delay should stay zero")
	}
}
