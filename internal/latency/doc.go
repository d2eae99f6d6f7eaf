// Package latency measures round-trip latency to the trading backend.
//
// The probe runs a background measurement loop, keeps a bounded history of
// classified samples, and offers a user-triggered extended run that averages
// samples over an adaptive schedule. Extended runs are serialized and gated
// by a cooldown window.
package latency
