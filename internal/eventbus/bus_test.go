package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutAndStamps(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeRunStarted})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeRunStarted || e.Time.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestFullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TypeRunStarted})
	b.Publish(Event{Type: TypeRunFinished})
	b.Publish(Event{Type: TypeRunFinished})
	if got := b.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed")
	}
	b.Publish(Event{Type: TypeRunStarted})
	if b.Dropped() != 0 {
		t.Fatal("publish after unsubscribe counted a drop")
	}
}

func TestNopSubscribeIsClosed(t *testing.T) {
	t.Parallel()
	ch, unsub := Nop{}.Subscribe(4)
	defer unsub()
	if _, ok := <-ch; ok {
		t.Fatal("Nop channel should be closed")
	}
}
