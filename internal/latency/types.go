package latency

import (
	"errors"
	"time"
)

// Errors
var (
	ErrTestRunning = errors.New("extended test already running")
	ErrCooldown    = errors.New("extended test on cooldown")
)

// Tier is a discrete latency-quality classification.
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierFair      Tier = "fair"
	TierPoor      Tier = "poor"
	TierFailed    Tier = "failed"
)

// Classification thresholds. The bounds are strict: a round trip of exactly
// 100ms is good, not excellent.
const (
	ExcellentBelow = 100 * time.Millisecond
	GoodBelow      = 400 * time.Millisecond
	FairBelow      = 800 * time.Millisecond
)

// Classify maps a successful round-trip time to its quality tier. The mapping
// is monotonic: a higher RTT never yields a better tier.
func Classify(rtt time.Duration) Tier {
	switch {
	case rtt < ExcellentBelow:
		return TierExcellent
	case rtt < GoodBelow:
		return TierGood
	case rtt < FairBelow:
		return TierFair
	default:
		return TierPoor
	}
}

// Sample is one completed latency measurement. A failed round trip carries
// TierFailed and no meaningful RTT; it is never folded into averages as zero
// latency.
type Sample struct {
	Timestamp time.Time
	RTT       time.Duration
	Tier      Tier
}

// Failed reports whether the round trip did not complete.
func (s Sample) Failed() bool {
	return s.Tier == TierFailed
}

// Millis returns the RTT as a non-negative integer millisecond count.
func (s Sample) Millis() int64 {
	if s.RTT < 0 {
		return 0
	}
	return s.RTT.Milliseconds()
}

// Result is the outcome of an extended measurement run.
type Result struct {
	AverageMillis int64     // mean RTT over successful samples
	Tier          Tier      // tier of the mean, TierFailed if no sample succeeded
	Timestamp     time.Time // completion time
	Samples       int       // total samples taken
	Failures      int       // samples excluded from the average
}

// IntervalFunc computes the delay before the next sample of an extended run
// from the elapsed run time, allowing adaptive schedules.
type IntervalFunc func(elapsed time.Duration) time.Duration

// DefaultInterval samples densely during the first stretch of a run and
// sparsely afterwards, bounding the number of round trips while keeping the
// displayed progress responsive.
func DefaultInterval(elapsed time.Duration) time.Duration {
	switch {
	case elapsed < 5*time.Second:
		return 500 * time.Millisecond
	case elapsed < 10*time.Second:
		return time.Second
	default:
		return 2 * time.Second
	}
}

// Config holds latency probe settings.
type Config struct {
	AutoInterval     time.Duration // cadence of background measurement
	SampleTimeout    time.Duration // bound on a single round trip
	ExtendedDuration time.Duration // nominal length of an extended run
	Cooldown         time.Duration // minimum gap between extended run starts
	HistorySize      int           // bounded sample history capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AutoInterval:     time.Second,
		SampleTimeout:    5 * time.Second,
		ExtendedDuration: 15 * time.Second,
		Cooldown:         30 * time.Second,
		HistorySize:      60,
	}
}
