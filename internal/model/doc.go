// Package model defines the wire message types carried over the realtime
// channels. All timestamps are int64 milliseconds since epoch.
package model
