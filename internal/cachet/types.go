package cachet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is Cachet's component status ordinal.
type Status int

const (
	StatusUnknown           Status = 0
	StatusOperational       Status = 1
	StatusPerformanceIssues Status = 2
	StatusPartialOutage     Status = 3
	StatusMajorOutage       Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusOperational:
		return "Operational"
	case StatusPerformanceIssues:
		return "Performance Issues"
	case StatusPartialOutage:
		return "Partial Outage"
	case StatusMajorOutage:
		return "Major Outage"
	default:
		return "Unknown"
	}
}

// UnmarshalJSON accepts both 2 and "2"; some Cachet versions quote ordinals.
func (s *Status) UnmarshalJSON(b []byte) error {
	v, err := flexInt(b)
	if err != nil {
		return fmt.Errorf("cachet: status: %w", err)
	}
	*s = Status(v)
	return nil
}

// ComponentID is the component identifier, kept as a string because it is
// used as a snapshot key. Cachet sends it as a JSON number.
type ComponentID string

func (id *ComponentID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ComponentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("cachet: component id: %w", err)
	}
	*id = ComponentID(n.String())
	return nil
}

// Component is one entry of the /components listing.
type Component struct {
	ID          ComponentID `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Link        string      `json:"link,omitempty"`
	Status      Status      `json:"status"`
	StatusName  string      `json:"status_name"`
	Order       int         `json:"order,omitempty"`
	GroupID     int64       `json:"group_id,omitempty"`
	Enabled     bool        `json:"enabled"`
	CreatedAt   Timestamp   `json:"created_at"`
	UpdatedAt   Timestamp   `json:"updated_at"`
}

// Pagination mirrors meta.pagination of Cachet list responses.
type Pagination struct {
	Total       int `json:"total"`
	Count       int `json:"count"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// ComponentPage is one page of GET /components.
type ComponentPage struct {
	Meta struct {
		Pagination Pagination `json:"pagination"`
	} `json:"meta"`
	Data []Component `json:"data"`
}

// cachetLayout is how Cachet serializes Carbon dates (no offset).
const cachetLayout = "2006-01-02 15:04:05"

// Timestamp decodes Cachet dates ("2006-01-02 15:04:05") as well as RFC3339.
// It always encodes as RFC3339 so persisted snapshots keep the offset.
type Timestamp struct {
	time.Time
	// naive is set when the source had no offset and was read as UTC.
	naive bool
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("cachet: timestamp: %w", err)
	}
	if s == nil || strings.TrimSpace(*s) == "" {
		*t = Timestamp{}
		return nil
	}
	raw := strings.TrimSpace(*s)
	if v, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		*t = Timestamp{Time: v}
		return nil
	}
	v, err := time.ParseInLocation(cachetLayout, raw, time.UTC)
	if err != nil {
		return fmt.Errorf("cachet: timestamp %q: %w", raw, err)
	}
	*t = Timestamp{Time: v, naive: true}
	return nil
}

// InLocation re-reads an offset-less timestamp as wall clock time in loc.
// Timestamps that carried an offset are returned unchanged.
func (t Timestamp) InLocation(loc *time.Location) Timestamp {
	if !t.naive || loc == nil || loc == time.UTC {
		return t
	}
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return Timestamp{Time: time.Date(y, m, d, hh, mm, ss, t.Nanosecond(), loc)}
}

func flexInt(b []byte) (int64, error) {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return 0, nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, err
		}
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	}
	return strconv.ParseInt(string(b), 10, 64)
}
