// Package connection implements the realtime channel layer.
//
// The connection manager:
//   - Owns one WebSocket per configured channel (chat, notification,
//     online presence, account stream)
//   - Drives each channel through its lifecycle state machine
//   - Schedules a single flat-backoff retry per failed channel, up to a
//     retry ceiling, then parks the channel in Failed until an explicit
//     reconnect
//   - Detects silent connections with a two-tier watchdog (refresh request
//     vs. forced reconnect)
//   - Aggregates per-channel state into one derived status
//
// State transitions are published on the event bus so UI surfaces need no
// reference to the manager.
package connection
