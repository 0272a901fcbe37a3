package eventbus

import "time"

const (
	TypeRunStarted       = "run.started"
	TypeComponentChanged = "component.changed"
	TypeMessageSent      = "message.sent"
	TypeMirrorFailed     = "mirror.failed"
	TypeRunFinished      = "run.finished"
)

type RunStarted struct {
	RunID     string
	Watermark time.Time
}

type ComponentChanged struct {
	RunID       string
	ComponentID string
	Name        string
	Status      int
	StatusName  string
}

type MessageSent struct {
	RunID       string
	ComponentID string
	MessageID   string
	Took        time.Duration
}

type MirrorFailed struct {
	RunID string
	Sink  string
	Err   string
}

type RunFinished struct {
	RunID     string
	Took      time.Duration
	Pages     int
	Visited   int
	Added     int
	Changed   int
	Sent      int
	Watermark time.Time
	Err       string
}

// Nop is a Bus that drops everything.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
