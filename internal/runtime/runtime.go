package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/monjeychiang/SABIT-sub000/internal/bus"
	"github.com/monjeychiang/SABIT-sub000/internal/config"
	"github.com/monjeychiang/SABIT-sub000/internal/connection"
	"github.com/monjeychiang/SABIT-sub000/internal/latency"
)

// Session identifies one authenticated realtime session.
type Session struct {
	ID        string
	StartedAt time.Time
}

// Runtime wires the event bus, the connection manager and the latency probe
// into one login-driven lifecycle. The browser-facing layer talks to Runtime;
// it never opens sockets itself.
type Runtime struct {
	logger *slog.Logger
	bus    *bus.Bus
	mgr    connection.Manager
	probe  *latency.Probe

	mu       sync.Mutex
	started  bool
	loggedIn bool
	session  Session
}

// New assembles a runtime from configuration. The manager and probe share the
// returned runtime's event bus.
func New(cfg *config.RuntimeConfig, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}

	b := bus.New(logger)

	mgrCfg := managerConfig(cfg)
	mgr := connection.NewManager(mgrCfg, b, logger)

	probeCfg := latency.Config{
		AutoInterval:     cfg.Probe.AutoInterval,
		SampleTimeout:    cfg.Probe.SampleTimeout,
		ExtendedDuration: cfg.Probe.ExtendedDuration,
		Cooldown:         cfg.Probe.Cooldown,
		HistorySize:      cfg.Probe.HistorySize,
	}
	pinger := latency.NewHTTPPinger(cfg.Probe.PingURL, cfg.Probe.SampleTimeout)
	probe := latency.NewProbe(probeCfg, pinger, b, logger)

	return &Runtime{
		logger: logger,
		bus:    b,
		mgr:    mgr,
		probe:  probe,
	}
}

// managerConfig maps the file configuration onto the manager's settings.
func managerConfig(cfg *config.RuntimeConfig) connection.ManagerConfig {
	out := connection.DefaultManagerConfig()
	for _, ch := range cfg.Channels {
		out.Channels = append(out.Channels, connection.ChannelConfig{
			ID:       ch.ID,
			Endpoint: ch.Endpoint,
		})
	}
	if cfg.Reconnect.Backoff > 0 {
		out.ReconnectBackoff = cfg.Reconnect.Backoff
	}
	if cfg.Reconnect.MaxRetries > 0 {
		out.MaxRetries = cfg.Reconnect.MaxRetries
	}
	if cfg.Watchdog.CheckInterval > 0 {
		out.WatchdogInterval = cfg.Watchdog.CheckInterval
	}
	if cfg.Watchdog.SoftSilence > 0 {
		out.SoftSilence = cfg.Watchdog.SoftSilence
	}
	if cfg.Watchdog.HardSilence > 0 {
		out.HardSilence = cfg.Watchdog.HardSilence
	}
	return out
}

// Login authenticates the realtime session: it stores the token for endpoint
// templates, announces the session, opens every channel and starts background
// latency measurement. Logging in while already logged in returns the current
// session unchanged.
func (r *Runtime) Login(ctx context.Context, token string) (Session, error) {
	r.mu.Lock()
	if r.loggedIn {
		s := r.session
		r.mu.Unlock()
		return s, nil
	}

	session := Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
	r.session = session
	r.loggedIn = true

	// The watchdog survives login/logout cycles; start it once.
	if !r.started {
		if err := r.mgr.Start(ctx); err != nil {
			r.loggedIn = false
			r.session = Session{}
			r.mu.Unlock()
			return Session{}, err
		}
		r.started = true
	}
	r.mu.Unlock()

	r.mgr.SetToken(token)
	r.bus.Publish(bus.EventLoginAuthenticated, session)

	r.logger.Info("session authenticated", "session_id", session.ID)

	status, err := r.mgr.ConnectAll(ctx)
	if err != nil {
		return session, err
	}

	r.probe.StartAuto(ctx)

	r.logger.Info("realtime channels opened",
		"all_connected", status.AllConnected,
		"channels", len(status.Channels),
	)

	return session, nil
}

// Logout ends the session: it announces the logout, stops background latency
// measurement and closes every channel. Idempotent.
func (r *Runtime) Logout(ctx context.Context) error {
	r.mu.Lock()
	if !r.loggedIn {
		r.mu.Unlock()
		return nil
	}
	session := r.session
	r.loggedIn = false
	r.session = Session{}
	r.mu.Unlock()

	r.bus.Publish(bus.EventLogout, session)

	r.probe.StopAuto()
	r.mgr.SetToken("")
	r.mgr.Disconnect()

	r.logger.Info("session ended", "session_id", session.ID)
	return nil
}

// Close shuts the runtime down, ending any active session first.
func (r *Runtime) Close(ctx context.Context) error {
	if err := r.Logout(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	started := r.started
	r.started = false
	r.mu.Unlock()

	if !started {
		return nil
	}
	return r.mgr.Stop(ctx)
}

// Session returns the active session, if any.
func (r *Runtime) Session() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, r.loggedIn
}

// Bus returns the shared event bus.
func (r *Runtime) Bus() *bus.Bus {
	return r.bus
}

// Connections returns the connection manager.
func (r *Runtime) Connections() connection.Manager {
	return r.mgr
}

// Probe returns the latency probe.
func (r *Runtime) Probe() *latency.Probe {
	return r.probe
}

// Status derives the aggregate connection state.
func (r *Runtime) Status() connection.AggregateStatus {
	return r.mgr.Status()
}
