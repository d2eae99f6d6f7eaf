package latency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/monjeychiang/SABIT-sub000/internal/bus"
)

// Probe measures and classifies round-trip latency, continuously in the
// background and on demand through rate-limited extended runs.
type Probe struct {
	cfg    Config
	pinger Pinger
	bus    *bus.Bus
	logger *slog.Logger

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time

	// cooldown allows one extended run per window; consultations use the
	// injected clock so the gate stays testable.
	cooldown *rate.Limiter

	mu           sync.Mutex
	history      []Sample // most recent first
	autoCancel   context.CancelFunc
	autoDone     chan struct{}
	extBusy      bool
	lastExtStart time.Time
}

// Option customizes a Probe.
type Option func(*Probe)

// WithNow overrides the wall clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(p *Probe) {
		if now != nil {
			p.now = now
		}
	}
}

// WithAfter overrides the sleep timer source, for tests.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(p *Probe) {
		if after != nil {
			p.after = after
		}
	}
}

// NewProbe creates a latency probe.
func NewProbe(cfg Config, pinger Pinger, b *bus.Bus, logger *slog.Logger, opts ...Option) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	if b == nil {
		b = bus.New(logger)
	}

	def := DefaultConfig()
	if cfg.AutoInterval <= 0 {
		cfg.AutoInterval = def.AutoInterval
	}
	if cfg.SampleTimeout <= 0 {
		cfg.SampleTimeout = def.SampleTimeout
	}
	if cfg.ExtendedDuration <= 0 {
		cfg.ExtendedDuration = def.ExtendedDuration
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}

	p := &Probe{
		cfg:      cfg,
		pinger:   pinger,
		bus:      b,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
		cooldown: rate.NewLimiter(rate.Every(cfg.Cooldown), 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Measure performs one bounded round trip, records the sample and notifies
// listeners. A timed-out or failed round trip yields a TierFailed sample
// rather than an error; the caller never has to handle network flakiness.
func (p *Probe) Measure(ctx context.Context) Sample {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SampleTimeout)
	defer cancel()

	start := p.now()
	err := p.pinger.Ping(ctx)
	elapsed := p.now().Sub(start)

	sample := Sample{Timestamp: p.now()}
	if err != nil {
		sample.Tier = TierFailed
		p.logger.Debug("latency probe failed", "error", err)
	} else {
		if elapsed < 0 {
			elapsed = 0
		}
		sample.RTT = elapsed
		sample.Tier = Classify(elapsed)
	}

	p.record(sample)
	return sample
}

// record appends a sample to the bounded most-recent-first history.
func (p *Probe) record(s Sample) {
	p.mu.Lock()
	p.history = append([]Sample{s}, p.history...)
	if len(p.history) > p.cfg.HistorySize {
		p.history = p.history[:p.cfg.HistorySize]
	}
	p.mu.Unlock()

	p.bus.Publish(bus.EventLatencySample, s)
}

// History returns a copy of the sample history, most recent first. Samples
// are ordered by completion; chronology-sensitive consumers must use the
// per-sample timestamp.
func (p *Probe) History() []Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Sample, len(p.history))
	copy(out, p.history)
	return out
}

// Latest returns the most recent sample, if any.
func (p *Probe) Latest() (Sample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) == 0 {
		return Sample{}, false
	}
	return p.history[0], true
}

// StartAuto begins background measurement on the configured interval.
// Calling it while already running is a no-op.
func (p *Probe) StartAuto(ctx context.Context) {
	p.mu.Lock()
	if p.autoCancel != nil {
		p.mu.Unlock()
		return
	}
	autoCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.autoCancel = cancel
	p.autoDone = done
	p.mu.Unlock()

	p.logger.Info("auto measurement started", "interval", p.cfg.AutoInterval)
	go p.autoLoop(autoCtx, done)
}

// StopAuto stops background measurement and waits for the loop to exit.
// Calling it when not running is a no-op.
func (p *Probe) StopAuto() {
	p.mu.Lock()
	cancel := p.autoCancel
	done := p.autoDone
	p.autoCancel = nil
	p.autoDone = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("auto measurement stopped")
}

func (p *Probe) autoLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.AutoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Measure(ctx)
		}
	}
}

// CooldownRemaining reports how long until the next extended run is allowed.
func (p *Probe) CooldownRemaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cooldownRemainingLocked()
}

func (p *Probe) cooldownRemainingLocked() time.Duration {
	if p.lastExtStart.IsZero() {
		return 0
	}
	remaining := p.cfg.Cooldown - p.now().Sub(p.lastExtStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MeasureAverage runs repeated measurements for roughly duration wall-clock
// time, pacing samples with intervalFn and reporting each one through
// onSample. It resolves to the integer-millisecond mean over successful
// samples, classified into a tier; failures are excluded from the mean but
// counted. A run where every sample fails still returns a defined Result
// with TierFailed.
//
// Exactly one extended run may be active at a time, and run starts are gated
// by the cooldown window measured from the previous start.
func (p *Probe) MeasureAverage(ctx context.Context, duration time.Duration, intervalFn IntervalFunc, onSample func(Sample)) (Result, error) {
	if intervalFn == nil {
		intervalFn = DefaultInterval
	}

	p.mu.Lock()
	if p.extBusy {
		p.mu.Unlock()
		return Result{}, ErrTestRunning
	}
	if remaining := p.cooldownRemainingLocked(); remaining > 0 {
		p.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %ds remaining", ErrCooldown, int(remaining.Round(time.Second).Seconds()))
	}
	if !p.cooldown.AllowN(p.now(), 1) {
		p.mu.Unlock()
		return Result{}, ErrCooldown
	}
	p.extBusy = true
	p.lastExtStart = p.now()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.extBusy = false
		p.mu.Unlock()
	}()

	p.logger.Info("extended latency test started", "duration", duration)

	start := p.now()
	var sum time.Duration
	var successes, failures int

	for {
		sample := p.Measure(ctx)
		if onSample != nil {
			onSample(sample)
		}
		if sample.Failed() {
			failures++
		} else {
			sum += sample.RTT
			successes++
		}

		elapsed := p.now().Sub(start)
		if elapsed >= duration || ctx.Err() != nil {
			break
		}

		if wait := intervalFn(elapsed); wait > 0 {
			select {
			case <-ctx.Done():
			case <-p.after(wait):
			}
		}
	}

	res := Result{
		Timestamp: p.now(),
		Samples:   successes + failures,
		Failures:  failures,
	}
	if successes == 0 {
		res.Tier = TierFailed
	} else {
		mean := sum / time.Duration(successes)
		res.AverageMillis = mean.Milliseconds()
		res.Tier = Classify(mean)
	}

	p.logger.Info("extended latency test finished",
		"average_ms", res.AverageMillis,
		"tier", res.Tier,
		"samples", res.Samples,
		"failures", res.Failures,
	)

	return res, nil
}
