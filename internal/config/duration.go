package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// CachetTimeout returns the HTTP timeout for listing requests.
func (c *Config) CachetTimeout() time.Duration {
	d, err := ParseDurationOrDefault("cachet.timeout", c.Cachet.Timeout, DefaultHTTPTimeout)
	if err != nil {
		return DefaultHTTPTimeout
	}
	return d
}

// DiscordTimeout returns the HTTP timeout for a single webhook request.
func (c *Config) DiscordTimeout() time.Duration {
	d, err := ParseDurationOrDefault("discord.timeout", c.Discord.Timeout, DefaultHTTPTimeout)
	if err != nil {
		return DefaultHTTPTimeout
	}
	return d
}

// RunTimeout returns the daemon's per-run bound (0 = none).
func (c *Config) RunTimeout() time.Duration {
	d, _ := ParseDurationField("daemon.run_timeout", c.Daemon.RunTimeout)
	return d
}

// CachetLocation is the zone used for Cachet timestamps without an offset.
func (c *Config) CachetLocation() *time.Location {
	if tz := strings.TrimSpace(c.Cachet.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.UTC
}
