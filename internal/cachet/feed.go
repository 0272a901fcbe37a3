package cachet

import (
	"context"
	"fmt"
	"iter"
	"time"

	logx "statusrelay/pkg/logx"
)

// Lister returns one page of the component listing.
type Lister interface {
	Components(ctx context.Context, page int) (*ComponentPage, error)
}

// Snapshot is the last observed record per component.
type Snapshot interface {
	Get(ctx context.Context, id string) (Component, bool, error)
	Set(ctx context.Context, id string, c Component) error
}

// FeedStats counts what one traversal did.
type FeedStats struct {
	Pages   int
	Visited int
	Emitted int
	Added   int
}

// Feed walks the full listing once and yields components whose status
// differs from the snapshot. It is not safe for concurrent use.
type Feed struct {
	lister Lister
	snap   Snapshot
	log    logx.Logger

	watermark time.Time

	page int
	buf  []Component
	pos  int
	last bool // current page is the last one
	err  error

	stats FeedStats
}

// NewFeed starts a traversal at page 1. watermark is reported until the first
// component is visited.
func NewFeed(lister Lister, snap Snapshot, watermark time.Time, log logx.Logger) *Feed {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Feed{lister: lister, snap: snap, watermark: watermark, log: log}
}

// Watermark is the created_at of the last component visited, emitted or not.
//
// It follows listing order: if the listing is not sorted by creation time this
// is not the newest timestamp seen.
func (f *Feed) Watermark() time.Time { return f.watermark }

func (f *Feed) Stats() FeedStats { return f.stats }

// Next returns the next changed component. ok is false once the listing is
// exhausted. After an error the feed is terminated and keeps returning it.
func (f *Feed) Next(ctx context.Context) (c Component, ok bool, err error) {
	if f.err != nil {
		return Component{}, false, f.err
	}
	for {
		for f.pos < len(f.buf) {
			rec := f.buf[f.pos]
			f.pos++
			changed, err := f.visit(ctx, rec)
			if err != nil {
				f.err = err
				return Component{}, false, err
			}
			if changed {
				f.stats.Emitted++
				return rec, true, nil
			}
		}
		if f.last {
			return Component{}, false, nil
		}
		if err := f.fetch(ctx); err != nil {
			f.err = err
			return Component{}, false, err
		}
	}
}

// All adapts Next to range-over-func. Iteration stops after the first error.
func (f *Feed) All(ctx context.Context) iter.Seq2[Component, error] {
	return func(yield func(Component, error) bool) {
		for {
			c, ok, err := f.Next(ctx)
			if err != nil {
				yield(Component{}, err)
				return
			}
			if !ok || !yield(c, nil) {
				return
			}
		}
	}
}

func (f *Feed) fetch(ctx context.Context) error {
	f.page++
	p, err := f.lister.Components(ctx, f.page)
	if err != nil {
		return fmt.Errorf("fetch components page %d: %w", f.page, err)
	}
	f.stats.Pages++
	f.buf = p.Data
	f.pos = 0
	total := p.Meta.Pagination.TotalPages
	f.last = f.page >= total
	f.log.Debug("components page fetched",
		logx.Int("page", f.page),
		logx.Int("total_pages", total),
		logx.Int("count", len(p.Data)),
	)
	return nil
}

func (f *Feed) visit(ctx context.Context, rec Component) (bool, error) {
	f.watermark = rec.CreatedAt.Time
	f.stats.Visited++

	id := string(rec.ID)
	prev, known, err := f.snap.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("snapshot get %s: %w", id, err)
	}
	if !known {
		f.stats.Added++
		if err := f.snap.Set(ctx, id, rec); err != nil {
			return false, fmt.Errorf("snapshot set %s: %w", id, err)
		}
		f.log.Debug("component baseline stored", logx.String("id", id), logx.String("name", rec.Name))
		return false, nil
	}
	if prev.Status == rec.Status {
		return false, nil
	}
	if err := f.snap.Set(ctx, id, rec); err != nil {
		return false, fmt.Errorf("snapshot set %s: %w", id, err)
	}
	f.log.Debug("component status changed",
		logx.String("id", id),
		logx.String("name", rec.Name),
		logx.Int("from", int(prev.Status)),
		logx.Int("to", int(rec.Status)),
	)
	return true, nil
}
