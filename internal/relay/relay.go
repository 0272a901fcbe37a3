// Package relay runs one detection-and-delivery pass: it walks the Cachet
// feed, formats every status change and posts it to the webhook, then stores
// the watermark.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"statusrelay/internal/cachet"
	"statusrelay/internal/discord"
	"statusrelay/internal/eventbus"
	"statusrelay/internal/storage"
	logx "statusrelay/pkg/logx"
)

const flushTimeout = 10 * time.Second

// Sender delivers one message; *discord.Webhook implements it.
type Sender interface {
	Send(ctx context.Context, content string) (discord.Message, error)
}

// Mirror receives a copy of every delivered message. Mirror failures are
// logged and do not abort the run.
type Mirror interface {
	Name() string
	Deliver(ctx context.Context, text string) error
}

type Deps struct {
	Lister    cachet.Lister
	Store     storage.Store
	Webhook   Sender
	Formatter *Formatter
	Mirrors   []Mirror
	Bus       eventbus.Bus
	Log       logx.Logger
	// Now defaults to time.Now; used for the first-run watermark.
	Now func() time.Time
}

type Relay struct {
	d  Deps
	mu sync.Mutex
}

// Result summarizes one RunOnce call.
type Result struct {
	RunID     string
	Started   time.Time
	Took      time.Duration
	Pages     int
	Visited   int
	Added     int
	Changed   int
	Sent      int
	Watermark time.Time
}

func New(d Deps) (*Relay, error) {
	switch {
	case d.Lister == nil:
		return nil, errors.New("relay: lister is required")
	case d.Store == nil:
		return nil, errors.New("relay: store is required")
	case d.Webhook == nil:
		return nil, errors.New("relay: webhook is required")
	case d.Formatter == nil:
		return nil, errors.New("relay: formatter is required")
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop{}
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Relay{d: d}, nil
}

// RunOnce performs a full pass. Runs never overlap.
//
// The watermark reached by the feed is stored and flushed on every return
// path, including delivery failures and cancellation. Components already
// updated in the snapshot stay updated.
func (r *Relay) RunOnce(ctx context.Context) (res Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	began := time.Now()
	res.RunID = uuid.NewString()
	res.Started = r.d.Now()
	log := r.d.Log.With(logx.String("run_id", res.RunID))

	wm, ok, err := r.d.Store.Watermark(ctx)
	if err != nil {
		return res, fmt.Errorf("load watermark: %w", err)
	}
	if ok {
		log.Info("last run detected", logx.Time("watermark", wm))
	} else {
		wm = res.Started
		log.Info("no previous run recorded")
	}
	res.Watermark = wm
	r.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeRunStarted, Data: eventbus.RunStarted{RunID: res.RunID, Watermark: wm}})

	feed := cachet.NewFeed(r.d.Lister, r.d.Store, wm, log)
	defer func() {
		st := feed.Stats()
		res.Pages, res.Visited, res.Added, res.Changed = st.Pages, st.Visited, st.Added, st.Emitted
		res.Watermark = feed.Watermark()
		res.Took = time.Since(began)
		if ferr := r.persist(ctx, res.Watermark); ferr != nil {
			err = errors.Join(err, ferr)
		}
		r.finish(log, res, err)
	}()

	for {
		c, ok, ferr := feed.Next(ctx)
		if ferr != nil {
			return res, fmt.Errorf("list components: %w", ferr)
		}
		if !ok {
			return res, nil
		}
		if err := r.deliver(ctx, log, res.RunID, c); err != nil {
			return res, err
		}
		res.Sent++
	}
}

func (r *Relay) deliver(ctx context.Context, log logx.Logger, runID string, c cachet.Component) error {
	r.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeComponentChanged, Data: eventbus.ComponentChanged{
		RunID:       runID,
		ComponentID: string(c.ID),
		Name:        c.Name,
		Status:      int(c.Status),
		StatusName:  c.StatusName,
	}})

	text, err := r.d.Formatter.Format(c)
	if err != nil {
		return err
	}

	start := time.Now()
	msg, err := r.d.Webhook.Send(ctx, text)
	if err != nil {
		return fmt.Errorf("deliver component %s: %w", c.ID, err)
	}
	took := time.Since(start)
	log.Info("status change delivered",
		logx.String("component", c.Name),
		logx.String("id", string(c.ID)),
		logx.String("status", c.StatusName),
		logx.String("message_id", msg.ID),
		logx.Duration("took", took),
	)
	r.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeMessageSent, Data: eventbus.MessageSent{
		RunID:       runID,
		ComponentID: string(c.ID),
		MessageID:   msg.ID,
		Took:        took,
	}})

	for _, m := range r.d.Mirrors {
		if err := m.Deliver(ctx, text); err != nil {
			log.Warn("mirror delivery failed", logx.String("sink", m.Name()), logx.Err(err))
			r.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeMirrorFailed, Data: eventbus.MirrorFailed{
				RunID: runID, Sink: m.Name(), Err: err.Error(),
			}})
		}
	}
	return nil
}

// persist stores the watermark even when ctx is already canceled.
func (r *Relay) persist(ctx context.Context, wm time.Time) error {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := r.d.Store.SetWatermark(fctx, wm); err != nil {
		return fmt.Errorf("store watermark: %w", err)
	}
	if err := r.d.Store.Flush(fctx); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

func (r *Relay) finish(log logx.Logger, res Result, err error) {
	ev := eventbus.RunFinished{
		RunID:     res.RunID,
		Took:      res.Took,
		Pages:     res.Pages,
		Visited:   res.Visited,
		Added:     res.Added,
		Changed:   res.Changed,
		Sent:      res.Sent,
		Watermark: res.Watermark,
	}
	fields := []logx.Field{
		logx.Int("pages", res.Pages),
		logx.Int("visited", res.Visited),
		logx.Int("changed", res.Changed),
		logx.Int("sent", res.Sent),
		logx.Time("watermark", res.Watermark),
		logx.Duration("took", res.Took),
	}
	if err != nil {
		ev.Err = err.Error()
		log.Error("relay run failed", append(fields, logx.Err(err))...)
	} else {
		log.Info("relay run finished", fields...)
	}
	r.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeRunFinished, Data: ev})
}
