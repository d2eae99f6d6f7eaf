package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no activity)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrUnknownChannel  = errors.New("unknown channel")
)

// State is the lifecycle state of a channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// InboundMessage is a domain message received on a channel. The core only
// inspects the type discriminator; payloads are opaque to it.
type InboundMessage struct {
	ChannelID  string
	Data       []byte
	ReceivedAt time.Time
}

// ControlMessage is a core-originated maintenance command, distinct from
// domain traffic.
type ControlMessage struct {
	Type    string         `json:"type"` // "reconnect" or "refresh"
	Force   bool           `json:"force,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// ChannelStatus is a point-in-time snapshot of one channel.
type ChannelStatus struct {
	ID             string
	Endpoint       string
	State          State
	LastActivityAt time.Time
	RetryCount     int
}

// AggregateStatus summarizes the full channel set. It is derived on demand,
// never cached.
type AggregateStatus struct {
	AllConnected  bool
	AnyConnected  bool
	NoneConnected bool
	Channels      []ChannelStatus
}

// ClientConfig configures a single WebSocket client.
type ClientConfig struct {
	URL          string        // Resolved ws(s) endpoint
	PingInterval time.Duration // Keepalive ping cadence
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// ChannelConfig describes one channel the manager owns.
type ChannelConfig struct {
	ID       string
	Endpoint string // URL template, may contain the {token} placeholder
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	Channels          []ChannelConfig
	ReconnectBackoff  time.Duration // Flat delay before a scheduled retry
	MaxRetries        int           // Consecutive failures before Failed
	WatchdogInterval  time.Duration // Stale-activity check cadence
	SoftSilence       time.Duration // Silence before a refresh request
	HardSilence       time.Duration // Silence before a forced reconnect
	DialTimeout       time.Duration // Per-attempt connection timeout
	PingInterval      time.Duration // Keepalive ping cadence per socket
	WriteTimeout      time.Duration // Write deadline for sends
	MessageBufferSize int           // Buffer size for the inbound message channel
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ReconnectBackoff:  3 * time.Second,
		MaxRetries:        5,
		WatchdogInterval:  30 * time.Second,
		SoftSilence:       2 * time.Minute,
		HardSilence:       5 * time.Minute,
		DialTimeout:       10 * time.Second,
		PingInterval:      30 * time.Second,
		WriteTimeout:      5 * time.Second,
		MessageBufferSize: 1024,
	}
}
