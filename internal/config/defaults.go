package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultReconnectBackoff = 3 * time.Second
	DefaultMaxRetries       = 5
	DefaultWatchdogInterval = 30 * time.Second
	DefaultSoftSilence      = 2 * time.Minute
	DefaultHardSilence      = 5 * time.Minute
	DefaultAutoInterval     = 1 * time.Second
	DefaultSampleTimeout    = 5 * time.Second
	DefaultExtendedDuration = 15 * time.Second
	DefaultCooldown         = 30 * time.Second
	DefaultHistorySize      = 60
)

func (c *RuntimeConfig) applyDefaults() {
	if c.Reconnect.Backoff == 0 {
		c.Reconnect.Backoff = DefaultReconnectBackoff
	}
	if c.Reconnect.MaxRetries == 0 {
		c.Reconnect.MaxRetries = DefaultMaxRetries
	}

	if c.Watchdog.CheckInterval == 0 {
		c.Watchdog.CheckInterval = DefaultWatchdogInterval
	}
	if c.Watchdog.SoftSilence == 0 {
		c.Watchdog.SoftSilence = DefaultSoftSilence
	}
	if c.Watchdog.HardSilence == 0 {
		c.Watchdog.HardSilence = DefaultHardSilence
	}

	if c.Probe.AutoInterval == 0 {
		c.Probe.AutoInterval = DefaultAutoInterval
	}
	if c.Probe.SampleTimeout == 0 {
		c.Probe.SampleTimeout = DefaultSampleTimeout
	}
	if c.Probe.ExtendedDuration == 0 {
		c.Probe.ExtendedDuration = DefaultExtendedDuration
	}
	if c.Probe.Cooldown == 0 {
		c.Probe.Cooldown = DefaultCooldown
	}
	if c.Probe.HistorySize == 0 {
		c.Probe.HistorySize = DefaultHistorySize
	}
}
