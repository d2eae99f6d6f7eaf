// Package config loads and validates the realtime core configuration.
//
// Configuration is YAML with ${VAR} environment expansion. All durations are
// tunable; in particular the two watchdog silence tiers (soft refresh vs.
// forced reconnect) are configuration, not constants.
package config
