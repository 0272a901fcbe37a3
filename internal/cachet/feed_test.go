package cachet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

type memSnapshot map[string]Component

func (m memSnapshot) Get(_ context.Context, id string) (Component, bool, error) {
	c, ok := m[id]
	return c, ok, nil
}

func (m memSnapshot) Set(_ context.Context, id string, c Component) error {
	m[id] = c
	return nil
}

type fakeLister struct {
	pages [][]Component
	calls int
	fail  map[int]error
}

func (l *fakeLister) Components(_ context.Context, page int) (*ComponentPage, error) {
	l.calls++
	if err := l.fail[page]; err != nil {
		return nil, err
	}
	out := &ComponentPage{}
	out.Meta.Pagination = Pagination{CurrentPage: page, TotalPages: len(l.pages)}
	if page-1 < len(l.pages) {
		out.Data = l.pages[page-1]
	}
	return out, nil
}

func comp(id string, status Status, created time.Time) Component {
	return Component{
		ID:         ComponentID(id),
		Name:       "component " + id,
		Status:     status,
		StatusName: status.String(),
		CreatedAt:  Timestamp{Time: created},
	}
}

func drain(t *testing.T, f *Feed) []Component {
	t.Helper()
	var out []Component
	for c, err := range f.All(context.Background()) {
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		out = append(out, c)
	}
	return out
}

func TestFeedEmitsOnlyStatusChanges(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	snap := memSnapshot{"7": comp("7", StatusOperational, t1.Add(-time.Hour))}
	lister := &fakeLister{pages: [][]Component{{
		comp("7", StatusPerformanceIssues, t1),
		comp("9", StatusOperational, t2),
	}}}

	f := NewFeed(lister, snap, time.Time{}, zeroLogger())
	got := drain(t, f)

	if len(got) != 1 || got[0].ID != "7" {
		t.Fatalf("emitted = %+v, want only component 7", got)
	}
	if snap["7"].Status != StatusPerformanceIssues {
		t.Fatalf("snapshot[7].status = %v, want 2", snap["7"].Status)
	}
	if _, ok := snap["9"]; !ok {
		t.Fatalf("component 9 should be stored as baseline")
	}
	if !f.Watermark().Equal(t2) {
		t.Fatalf("watermark = %v, want %v", f.Watermark(), t2)
	}
	st := f.Stats()
	if st.Visited != 2 || st.Emitted != 1 || st.Added != 1 || st.Pages != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestFeedFirstSightIsNotAChange(t *testing.T) {
	now := time.Now().UTC()
	snap := memSnapshot{}
	lister := &fakeLister{pages: [][]Component{{comp("1", StatusMajorOutage, now)}}}

	if got := drain(t, NewFeed(lister, snap, time.Time{}, zeroLogger())); len(got) != 0 {
		t.Fatalf("emitted %d events on first sight", len(got))
	}
	if snap["1"].Status != StatusMajorOutage {
		t.Fatalf("baseline not stored: %+v", snap)
	}
}

func TestFeedUnchangedStatusLeavesSnapshotUntouched(t *testing.T) {
	now := time.Now().UTC()
	stored := comp("3", StatusPartialOutage, now.Add(-time.Hour))
	stored.StatusName = "old name"
	snap := memSnapshot{"3": stored}

	fresh := comp("3", StatusPartialOutage, now)
	fresh.StatusName = "Partial Outage"
	lister := &fakeLister{pages: [][]Component{{fresh}}}

	f := NewFeed(lister, snap, time.Time{}, zeroLogger())
	if got := drain(t, f); len(got) != 0 {
		t.Fatalf("emitted %d events for unchanged status", len(got))
	}
	if snap["3"].StatusName != "old name" {
		t.Fatalf("snapshot was rewritten: %+v", snap["3"])
	}
	if !f.Watermark().Equal(now) {
		t.Fatalf("watermark should advance on non-emitted records")
	}
}

func TestFeedRequestsEachPageOnce(t *testing.T) {
	now := time.Now().UTC()
	pages := [][]Component{
		{comp("1", 1, now), comp("2", 1, now)},
		{comp("3", 1, now), comp("4", 1, now)},
		{comp("5", 1, now)},
	}
	lister := &fakeLister{pages: pages}
	drain(t, NewFeed(lister, memSnapshot{}, time.Time{}, zeroLogger()))
	if lister.calls != 3 {
		t.Fatalf("calls = %d, want 3", lister.calls)
	}
}

func TestFeedEmptyListing(t *testing.T) {
	start := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	lister := &fakeLister{}
	f := NewFeed(lister, memSnapshot{}, start, zeroLogger())
	if got := drain(t, f); len(got) != 0 {
		t.Fatalf("got %d events", len(got))
	}
	if lister.calls != 1 {
		t.Fatalf("calls = %d, want 1", lister.calls)
	}
	if !f.Watermark().Equal(start) {
		t.Fatalf("watermark moved without visiting anything")
	}
}

func TestFeedErrorIsSticky(t *testing.T) {
	now := time.Now().UTC()
	boom := errors.New("boom")
	lister := &fakeLister{
		pages: [][]Component{{comp("1", 1, now)}, {comp("2", 1, now)}},
		fail:  map[int]error{2: boom},
	}
	f := NewFeed(lister, memSnapshot{}, time.Time{}, zeroLogger())
	_, ok, err := f.Next(context.Background())
	if ok || !errors.Is(err, boom) {
		t.Fatalf("Next = ok:%v err:%v, want boom", ok, err)
	}
	_, _, err = f.Next(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("second Next err = %v, want boom", err)
	}
	if lister.calls != 2 {
		t.Fatalf("calls = %d, want 2", lister.calls)
	}
	// page 1 was applied before the failure
	if !f.Watermark().Equal(now) {
		t.Fatalf("watermark = %v", f.Watermark())
	}
}

func TestFeedStopEarlyKeepsProgress(t *testing.T) {
	t1 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	snap := memSnapshot{
		"1": comp("1", 1, t1),
		"2": comp("2", 1, t1),
	}
	lister := &fakeLister{pages: [][]Component{
		{comp("1", 4, t1.Add(time.Minute))},
		{comp("2", 4, t1.Add(2*time.Minute))},
	}}
	f := NewFeed(lister, snap, time.Time{}, zeroLogger())
	for c, err := range f.All(context.Background()) {
		if err != nil {
			t.Fatal(err)
		}
		if c.ID != "1" {
			t.Fatalf("first event = %s", c.ID)
		}
		break
	}
	if lister.calls != 1 {
		t.Fatalf("calls = %d, want 1 (lazy)", lister.calls)
	}
	if snap["1"].Status != 4 || snap["2"].Status != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !f.Watermark().Equal(t1.Add(time.Minute)) {
		t.Fatalf("watermark = %v", f.Watermark())
	}
}

func TestClientPagingOverHTTP(t *testing.T) {
	const perPage = 2
	total := 5
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/api/v1/components" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get(TokenHeader); got != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		totalPages := (total + perPage - 1) / perPage
		var data []map[string]any
		for i := (page - 1) * perPage; i < page*perPage && i < total; i++ {
			data = append(data, map[string]any{
				"id":          i + 1,
				"name":        fmt.Sprintf("c%d", i+1),
				"status":      strconv.Itoa(1),
				"status_name": "Operational",
				"created_at":  "2024-03-01 12:00:00",
				"updated_at":  "2024-03-01 12:00:00",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"meta": map[string]any{"pagination": map[string]any{
				"current_page": page, "total_pages": totalPages, "per_page": perPage,
			}},
			"data": data,
		})
	}))
	defer srv.Close()

	loc := time.FixedZone("UTC+2", 2*3600)
	c, err := NewClient(srv.URL+"/api/v1/", "secret", WithPerPage(perPage), WithLocation(loc))
	if err != nil {
		t.Fatal(err)
	}
	snap := memSnapshot{}
	f := NewFeed(c, snap, time.Time{}, zeroLogger())
	drain(t, f)

	if hits.Load() != 3 {
		t.Fatalf("requests = %d, want 3", hits.Load())
	}
	if len(snap) != total {
		t.Fatalf("snapshot size = %d, want %d", len(snap), total)
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if !f.Watermark().Equal(want) {
		t.Fatalf("watermark = %v, want %v", f.Watermark(), want)
	}
}

func TestClientNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "bad")
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Components(context.Background(), 1)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusForbidden {
		t.Fatalf("err = %v, want *StatusError 403", err)
	}
}
