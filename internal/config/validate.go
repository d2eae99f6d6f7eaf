package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *RuntimeConfig) Validate() error {
	if len(c.Channels) == 0 {
		return errors.New("at least one channel is required")
	}

	seen := make(map[string]struct{}, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.ID == "" {
			return fmt.Errorf("channels[%d].id is required", i)
		}
		if ch.Endpoint == "" {
			return fmt.Errorf("channel %q: endpoint is required", ch.ID)
		}
		if !strings.HasPrefix(ch.Endpoint, "ws://") && !strings.HasPrefix(ch.Endpoint, "wss://") {
			return fmt.Errorf("channel %q: endpoint must be a ws:// or wss:// URL", ch.ID)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("duplicate channel id %q", ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}

	if c.Reconnect.Backoff <= 0 {
		return errors.New("reconnect.backoff must be positive")
	}
	if c.Reconnect.MaxRetries < 1 {
		return errors.New("reconnect.max_retries must be >= 1")
	}

	if c.Watchdog.CheckInterval <= 0 {
		return errors.New("watchdog.check_interval must be positive")
	}
	if c.Watchdog.SoftSilence <= 0 {
		return errors.New("watchdog.soft_silence must be positive")
	}
	if c.Watchdog.HardSilence <= c.Watchdog.SoftSilence {
		return fmt.Errorf("watchdog.hard_silence (%s) must exceed soft_silence (%s)",
			c.Watchdog.HardSilence, c.Watchdog.SoftSilence)
	}

	if c.Probe.AutoInterval <= 0 {
		return errors.New("probe.auto_interval must be positive")
	}
	if c.Probe.SampleTimeout <= 0 {
		return errors.New("probe.sample_timeout must be positive")
	}
	if c.Probe.ExtendedDuration <= 0 {
		return errors.New("probe.extended_duration must be positive")
	}
	if c.Probe.Cooldown <= 0 {
		return errors.New("probe.cooldown must be positive")
	}
	if c.Probe.HistorySize < 1 {
		return errors.New("probe.history_size must be >= 1")
	}

	return nil
}
