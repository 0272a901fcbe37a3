package cachet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	logx "statusrelay/pkg/logx"
)

// TokenHeader carries the Cachet API token on every request.
const TokenHeader = "X-Cachet-Token"

// StatusError is returned for non-2xx API responses. Listing failures are not retried.
type StatusError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("cachet: %s %s: HTTP %d", e.Method, e.Endpoint, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Client is a thin Cachet API client bound to one installation.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	perPage int
	loc     *time.Location
	log     logx.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithPerPage sets ?per_page= on listing requests; 0 keeps the server default.
func WithPerPage(n int) ClientOption { return func(c *Client) { c.perPage = n } }

// WithLocation sets the zone used for Cachet timestamps without an offset.
func WithLocation(loc *time.Location) ClientOption { return func(c *Client) { c.loc = loc } }

func WithLogger(log logx.Logger) ClientOption { return func(c *Client) { c.log = log } }

// NewClient returns a client for baseURL (e.g. https://status.example.com/api/v1).
func NewClient(baseURL, token string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("cachet: base url required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("cachet: base url: %w", err)
	}
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		loc:     time.UTC,
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c, nil
}

// Get performs GET {base}{endpoint}?query and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set(TokenHeader, c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cachet: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.log.Debug("cachet request",
		logx.String("endpoint", endpoint),
		logx.String("query", query.Encode()),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method:     http.MethodGet,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cachet: decode %s: %w", endpoint, err)
	}
	return nil
}

// Components fetches one page (1-based) of the component listing.
func (c *Client) Components(ctx context.Context, page int) (*ComponentPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if c.perPage > 0 {
		q.Set("per_page", strconv.Itoa(c.perPage))
	}
	var out ComponentPage
	if err := c.Get(ctx, "/components", q, &out); err != nil {
		return nil, err
	}
	for i := range out.Data {
		out.Data[i].CreatedAt = out.Data[i].CreatedAt.InLocation(c.loc)
		out.Data[i].UpdatedAt = out.Data[i].UpdatedAt.InLocation(c.loc)
	}
	return &out, nil
}
