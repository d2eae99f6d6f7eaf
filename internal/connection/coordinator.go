package connection

import (
	"context"
	"time"
)

// coordinator owns retry timing and the stale-activity watchdog. It decides
// when a channel is retried and whether watchdog silence warrants a refresh
// request or a full forced reconnect.
type coordinator struct {
	mgr *manager

	// At most one retry timer exists per channel.
	timers *timerSet
}

func newCoordinator(m *manager) *coordinator {
	return &coordinator{
		mgr:    m,
		timers: newTimerSet(),
	}
}

// scheduleRetry arms the single flat-backoff retry timer for a channel.
// A channel with a timer already in flight is left alone, so repeated
// failures cannot spawn duplicate reconnect storms.
func (c *coordinator) scheduleRetry(id string) {
	c.timers.arm(id, c.mgr.cfg.ReconnectBackoff, func() {
		c.retry(id)
	})
}

// cancelRetry stops a pending retry timer, if any.
func (c *coordinator) cancelRetry(id string) {
	c.timers.cancel(id)
}

// cancelAll stops every pending retry timer.
func (c *coordinator) cancelAll() {
	c.timers.cancelAll()
}

// retry runs the scheduled reconnect attempt for one channel.
func (c *coordinator) retry(id string) {
	ctx := c.mgr.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	c.mgr.logger.Info("retrying channel", "channel", id)
	c.mgr.connectChannel(ctx, id)
}

// watchdogLoop periodically inspects channel activity. Long silence on a
// connected channel is a soft failure the transport never reported: notable
// silence gets a non-destructive refresh, prolonged silence a forced
// reconnect.
func (c *coordinator) watchdogLoop(ctx context.Context) {
	defer c.mgr.wg.Done()

	ticker := time.NewTicker(c.mgr.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkActivity(ctx, time.Now())
		}
	}
}

// checkActivity applies the two-tier silence policy to every connected channel.
func (c *coordinator) checkActivity(ctx context.Context, now time.Time) {
	status := c.mgr.Status()

	for _, ch := range status.Channels {
		if ch.State != StateConnected || ch.LastActivityAt.IsZero() {
			continue
		}

		silence := now.Sub(ch.LastActivityAt)
		switch {
		case silence >= c.mgr.cfg.HardSilence:
			c.mgr.logger.Warn("channel silent past hard threshold, forcing reconnect",
				"channel", ch.ID,
				"silence", silence,
			)
			c.mgr.Reconnect(ctx, ch.ID, true)

		case silence >= c.mgr.cfg.SoftSilence:
			c.mgr.logger.Info("channel unusually quiet, requesting refresh",
				"channel", ch.ID,
				"silence", silence,
			)
			if err := c.mgr.Refresh(ch.ID); err != nil {
				c.mgr.logger.Warn("refresh failed", "channel", ch.ID, "error", err)
			}
		}
	}
}
