package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "statusrelay/pkg/logx"
)

// Webhook delivers messages to one webhook URL. Sends are serialized.
type Webhook struct {
	endpoint string
	http     *http.Client
	clock    Clock
	log      logx.Logger
	limiter  *rate.Limiter
	username string
	timeout  time.Duration

	mu    sync.Mutex
	state RateLimitState
}

type Option func(*Webhook)

func WithHTTPClient(hc *http.Client) Option {
	return func(w *Webhook) {
		if hc != nil {
			w.http = hc
		}
	}
}

func WithClock(c Clock) Option {
	return func(w *Webhook) {
		if c != nil {
			w.clock = c
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(w *Webhook) { w.log = log } }

// WithRate paces sends locally at perSec messages per second (burst 1).
// Zero or negative disables local pacing.
func WithRate(perSec float64) Option {
	return func(w *Webhook) {
		if perSec > 0 {
			w.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		} else {
			w.limiter = nil
		}
	}
}

// WithUsername overrides the webhook's display name.
func WithUsername(name string) Option {
	return func(w *Webhook) { w.username = strings.TrimSpace(name) }
}

// WithTimeout bounds each HTTP attempt; rate-limit waits are not included.
func WithTimeout(d time.Duration) Option { return func(w *Webhook) { w.timeout = d } }

func NewWebhook(rawURL string, opts ...Option) (*Webhook, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("discord: webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("discord: webhook url must be http(s), got %q", u.Scheme)
	}
	q := u.Query()
	q.Set("wait", "true")
	u.RawQuery = q.Encode()

	w := &Webhook{
		endpoint: u.String(),
		http:     &http.Client{},
		clock:    realClock{},
	}
	for _, o := range opts {
		o(w)
	}
	if w.log.IsZero() {
		w.log = logx.Nop()
	}
	return w, nil
}

// State returns a copy of the current rate-limit state.
func (w *Webhook) State() RateLimitState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Send posts content and returns the created message.
//
// It first waits out an exhausted bucket, then retries on 429 for as long as
// the server keeps asking. Only ctx bounds the total time spent.
func (w *Webhook) Send(ctx context.Context, content string) (Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return Message{}, err
		}
	}

	if w.state.Exhausted {
		wait := max(w.state.Reset.Sub(w.clock.Now()), 0)
		w.log.Debug("rate limit exhausted, waiting for reset", logx.Duration("wait", wait))
		if err := w.clock.Sleep(ctx, wait); err != nil {
			return Message{}, err
		}
		w.state.Exhausted = false
	}

	body := w.form(content)
	for attempt := 1; ; attempt++ {
		status, hdr, payload, err := w.post(ctx, body)
		if err != nil {
			return Message{}, err
		}

		if status == http.StatusTooManyRequests {
			wait, ok := parseSeconds(hdr.Get(HeaderRetryAfter))
			if !ok {
				return Message{}, fmt.Errorf("%w: %s on HTTP 429", ErrMissingHeader, HeaderRetryAfter)
			}
			w.log.Warn("webhook rate limited, retrying",
				logx.Int("attempt", attempt),
				logx.Duration("retry_after", wait),
			)
			if err := w.clock.Sleep(ctx, wait); err != nil {
				return Message{}, err
			}
			continue
		}

		herr := w.recordRateLimit(hdr)

		if status < 200 || status > 299 {
			return Message{}, &StatusError{StatusCode: status, Body: strings.TrimSpace(string(payload))}
		}
		if herr != nil {
			return Message{}, herr
		}
		return decodeMessage(payload)
	}
}

func (w *Webhook) form(content string) string {
	v := url.Values{}
	v.Set("content", content)
	if w.username != "" {
		v.Set("username", w.username)
	}
	return v.Encode()
}

func (w *Webhook) post(ctx context.Context, body string) (int, http.Header, []byte, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, strings.NewReader(body))
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("discord: post webhook: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("discord: read response: %w", err)
	}
	return resp.StatusCode, resp.Header, payload, nil
}

// recordRateLimit updates state from X-RateLimit-* headers. It returns
// ErrMissingHeader when they are absent, leaving state unchanged.
func (w *Webhook) recordRateLimit(h http.Header) error {
	raw := strings.TrimSpace(h.Get(HeaderRemaining))
	if raw == "" {
		return fmt.Errorf("%w: %s", ErrMissingHeader, HeaderRemaining)
	}
	remaining, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrMissingHeader, HeaderRemaining, raw)
	}
	w.state.Remaining = remaining
	if remaining > 0 {
		return nil
	}

	reset, ok := parseEpoch(h.Get(HeaderReset))
	if !ok {
		return fmt.Errorf("%w: %s with remaining=0", ErrMissingHeader, HeaderReset)
	}
	w.state.Reset = reset
	w.state.Exhausted = true
	w.log.Debug("rate limit bucket empty", logx.Time("reset", w.state.Reset))
	return nil
}

func decodeMessage(b []byte) (Message, error) {
	var m Message
	if len(bytes.TrimSpace(b)) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("discord: decode message: %w", err)
	}
	return m, nil
}

// maxSeconds is the largest seconds value a time.Duration can hold.
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// parseFloatSeconds rejects values that would overflow a time.Duration.
func parseFloatSeconds(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) || f >= maxSeconds {
		return 0, false
	}
	return f, true
}

// parseSeconds reads a non-negative, possibly fractional seconds value.
func parseSeconds(s string) (time.Duration, bool) {
	f, ok := parseFloatSeconds(s)
	if !ok {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}

// parseEpoch reads fractional unix seconds, e.g. "1470173023.123".
func parseEpoch(s string) (time.Time, bool) {
	f, ok := parseFloatSeconds(s)
	if !ok {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}
