// Package bus implements the process-wide event bus.
//
// Channel state transitions, login/logout and latency samples are published
// here so UI surfaces can observe them without holding a reference to the
// connection manager or the latency probe.
package bus
