package config

import "time"

// RuntimeConfig is the root configuration for the realtime core.
type RuntimeConfig struct {
	Channels  []ChannelConfig `yaml:"channels"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Probe     ProbeConfig     `yaml:"probe"`
}

// ChannelConfig describes one logical realtime feed.
type ChannelConfig struct {
	ID       string `yaml:"id"`       // "chat", "notification", "online", "account"
	Endpoint string `yaml:"endpoint"` // ws(s) URL template, may contain {token}
}

// ReconnectConfig holds retry policy settings.
type ReconnectConfig struct {
	Backoff    time.Duration `yaml:"backoff"`     // flat delay before a retry
	MaxRetries int           `yaml:"max_retries"` // consecutive failures before Failed
}

// WatchdogConfig holds stale-activity detection settings.
//
// Silence between SoftSilence and HardSilence triggers a refresh request over
// the existing socket; silence past HardSilence triggers a forced reconnect.
type WatchdogConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	SoftSilence   time.Duration `yaml:"soft_silence"`
	HardSilence   time.Duration `yaml:"hard_silence"`
}

// ProbeConfig holds latency probe settings.
type ProbeConfig struct {
	PingURL          string        `yaml:"ping_url"`
	AutoInterval     time.Duration `yaml:"auto_interval"`
	SampleTimeout    time.Duration `yaml:"sample_timeout"`
	ExtendedDuration time.Duration `yaml:"extended_duration"`
	Cooldown         time.Duration `yaml:"cooldown"`
	HistorySize      int           `yaml:"history_size"`
}
