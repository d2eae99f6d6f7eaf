// Package runtime assembles the realtime core: one event bus shared by the
// connection manager and the latency probe, driven by a login/logout
// lifecycle. Login opens every configured channel and starts background
// measurement; logout tears both down again.
package runtime
