package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/monjeychiang/SABIT-sub000/internal/bus"
)

// Manager owns the set of realtime channels and their sockets. It is the only
// component allowed to open or close a socket.
type Manager interface {
	// Start launches the stale-activity watchdog.
	Start(ctx context.Context) error

	// Stop tears down the watchdog, all retry timers and all sockets.
	Stop(ctx context.Context) error

	// SetToken stores the session token substituted into endpoint templates.
	SetToken(token string)

	// ConnectAll opens a socket for every channel not already connected.
	// It returns once every channel has settled for this round; dial
	// failures surface in the returned status, not as an error.
	ConnectAll(ctx context.Context) (AggregateStatus, error)

	// Disconnect closes every channel. Idempotent.
	Disconnect()

	// DisconnectChannel closes one channel. Idempotent for known channels.
	DisconnectChannel(id string) error

	// Reconnect re-runs the connect sequence for one channel. Without
	// force, a connected channel with recent activity is left alone.
	Reconnect(ctx context.Context, id string, force bool) error

	// Refresh requests fresh data over the existing socket without
	// tearing the connection down.
	Refresh(id string) error

	// Status derives the aggregate connection state. Pure read.
	Status() AggregateStatus

	// Messages returns the channel of inbound domain messages.
	Messages() <-chan InboundMessage
}

// channelState holds the state for a single channel.
type channelState struct {
	id       string
	endpoint string

	state        State
	client       Client
	lastActivity time.Time
	retryCount   int

	// gen identifies the current socket; events from a previous socket's
	// pump are ignored. Bumped on every teardown and dial.
	gen uint64

	// inflight is non-nil while a connect attempt is running; concurrent
	// callers wait on it instead of dialing a duplicate socket.
	inflight chan struct{}

	// stopPump stops the read pump of the current socket.
	stopPump chan struct{}
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	bus    *bus.Bus
	logger *slog.Logger

	// newClient is replaced in tests to inject fake transports.
	newClient func(ClientConfig, *slog.Logger) Client

	inbound   chan InboundMessage
	closeOnce sync.Once

	coord *coordinator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	token    string
	channels map[string]*channelState
	order    []string
}

// NewManager creates a connection manager for the configured channels.
func NewManager(cfg ManagerConfig, b *bus.Bus, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if b == nil {
		b = bus.New(logger)
	}

	m := &manager{
		cfg:       cfg,
		bus:       b,
		logger:    logger,
		newClient: NewClient,
		inbound:   make(chan InboundMessage, cfg.MessageBufferSize),
		channels:  make(map[string]*channelState, len(cfg.Channels)),
	}

	for _, ch := range cfg.Channels {
		m.channels[ch.ID] = &channelState{
			id:       ch.ID,
			endpoint: ch.Endpoint,
			state:    StateDisconnected,
		}
		m.order = append(m.order, ch.ID)
	}

	m.coord = newCoordinator(m)

	return m
}

// Start launches the watchdog loop.
func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.coord.watchdogLoop(m.ctx)

	m.logger.Info("connection manager started",
		"channels", len(m.order),
		"watchdog_interval", m.cfg.WatchdogInterval,
	)

	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	m.coord.cancelAll()
	m.Disconnect()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.closeOnce.Do(func() { close(m.inbound) })
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	m.logger.Info("connection manager stopped")
	return nil
}

// SetToken stores the session token used for endpoint templates.
func (m *manager) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// Messages returns the inbound message channel.
func (m *manager) Messages() <-chan InboundMessage {
	return m.inbound
}

// ConnectAll connects every channel concurrently and waits for each attempt
// to settle.
func (m *manager) ConnectAll(ctx context.Context) (AggregateStatus, error) {
	g, gctx := errgroup.WithContext(ctx)

	m.mu.Lock()
	ids := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, id := range ids {
		id := id
		g.Go(func() error {
			return m.connectChannel(gctx, id)
		})
	}

	err := g.Wait()
	return m.Status(), err
}

// Disconnect closes every channel.
func (m *manager) Disconnect() {
	m.mu.Lock()
	ids := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, id := range ids {
		m.DisconnectChannel(id)
	}
}

// DisconnectChannel closes one channel's socket and cancels its retry timer.
// Calling it on a channel that was never connected is a no-op.
func (m *manager) DisconnectChannel(id string) error {
	m.coord.cancelRetry(id)

	m.mu.Lock()
	cs, ok := m.channels[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownChannel
	}

	was := cs.state
	cli := m.teardownLocked(cs)
	cs.state = StateDisconnected
	m.mu.Unlock()

	if cli != nil {
		cli.Close()
	}

	if was != StateDisconnected {
		m.logger.Info("channel disconnected", "channel", id)
		m.bus.Publish(bus.DisconnectedEvent(id), m.channelStatus(id))
	}

	return nil
}

// Reconnect tears down and re-dials one channel. A connected channel with
// recent activity is left alone unless force is set.
func (m *manager) Reconnect(ctx context.Context, id string, force bool) error {
	m.mu.Lock()
	cs, ok := m.channels[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownChannel
	}

	if !force && cs.state == StateConnected && time.Since(cs.lastActivity) < m.cfg.SoftSilence {
		m.mu.Unlock()
		return nil
	}

	var notify Client
	if force && cs.state == StateConnected {
		notify = cs.client
	}
	m.mu.Unlock()

	// Tell the server we are cycling the connection, best effort. Sent
	// outside the lock so a stalled socket cannot wedge the manager.
	if notify != nil {
		if data, err := json.Marshal(ControlMessage{Type: "reconnect", Force: true}); err == nil {
			notify.Send(data)
		}
	}

	m.coord.cancelRetry(id)

	m.mu.Lock()
	was := cs.state
	cli := m.teardownLocked(cs)
	cs.state = StateDisconnected
	if force {
		cs.retryCount = 0
	}
	m.mu.Unlock()

	if cli != nil {
		cli.Close()
	}
	if was == StateConnected {
		m.bus.Publish(bus.DisconnectedEvent(id), m.channelStatus(id))
	}

	m.logger.Info("reconnecting channel", "channel", id, "force", force)

	return m.connectChannel(ctx, id)
}

// Refresh sends a refresh request over the live socket.
func (m *manager) Refresh(id string) error {
	m.mu.Lock()
	cs, ok := m.channels[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownChannel
	}
	if cs.state != StateConnected || cs.client == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	cli := cs.client
	m.mu.Unlock()

	data, err := json.Marshal(ControlMessage{Type: "refresh"})
	if err != nil {
		return err
	}

	m.logger.Debug("requesting refresh", "channel", id)
	return cli.Send(data)
}

// Status derives the aggregate connection state from the current snapshot.
func (m *manager) Status() AggregateStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := AggregateStatus{AllConnected: len(m.order) > 0}
	for _, id := range m.order {
		cs := m.channels[id]
		status.Channels = append(status.Channels, ChannelStatus{
			ID:             cs.id,
			Endpoint:       cs.endpoint,
			State:          cs.state,
			LastActivityAt: cs.lastActivity,
			RetryCount:     cs.retryCount,
		})
		if cs.state == StateConnected {
			status.AnyConnected = true
		} else {
			status.AllConnected = false
		}
	}
	status.NoneConnected = !status.AnyConnected

	return status
}

// channelStatus returns a snapshot of one channel for event payloads.
func (m *manager) channelStatus(id string) ChannelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.channels[id]
	if !ok {
		return ChannelStatus{ID: id}
	}
	return ChannelStatus{
		ID:             cs.id,
		Endpoint:       cs.endpoint,
		State:          cs.state,
		LastActivityAt: cs.lastActivity,
		RetryCount:     cs.retryCount,
	}
}

// connectChannel runs one connect attempt for a channel and returns when the
// attempt settles. Concurrent calls for the same channel are coalesced onto
// the in-flight attempt.
func (m *manager) connectChannel(ctx context.Context, id string) error {
	m.mu.Lock()
	cs, ok := m.channels[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownChannel
	}

	if cs.state == StateConnected {
		m.mu.Unlock()
		return nil
	}

	// Failed is terminal until an explicit Reconnect, which resets the
	// state before re-running the connect sequence.
	if cs.state == StateFailed {
		m.mu.Unlock()
		return nil
	}

	if cs.inflight != nil {
		wait := cs.inflight
		m.mu.Unlock()
		select {
		case <-wait:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	inflight := make(chan struct{})
	cs.inflight = inflight
	if cs.state != StateReconnecting {
		cs.state = StateConnecting
	}
	cs.gen++
	gen := cs.gen
	endpoint := resolveEndpoint(cs.endpoint, m.token)
	m.mu.Unlock()

	cli := m.newClient(ClientConfig{
		URL:          endpoint,
		PingInterval: m.cfg.PingInterval,
		WriteTimeout: m.cfg.WriteTimeout,
		BufferSize:   m.cfg.MessageBufferSize,
	}, m.logger.With("channel", id))

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	err := cli.Connect(dialCtx)
	cancel()

	m.mu.Lock()
	cs.inflight = nil

	if cs.gen != gen {
		// Torn down while dialing (disconnect or logout); discard.
		m.mu.Unlock()
		close(inflight)
		cli.Close()
		return nil
	}

	if err != nil {
		m.failLocked(cs, err)
		m.mu.Unlock()
		close(inflight)
		cli.Close()
		return nil
	}

	cs.client = cli
	cs.state = StateConnected
	cs.retryCount = 0
	cs.lastActivity = time.Now()
	cs.stopPump = make(chan struct{})
	stop := cs.stopPump
	m.mu.Unlock()
	close(inflight)

	m.logger.Info("channel connected", "channel", id, "endpoint", cs.endpoint)
	m.bus.Publish(bus.ConnectedEvent(id), m.channelStatus(id))

	m.wg.Add(1)
	go m.pump(cs, cli, gen, stop)

	return nil
}

// failLocked records a failed attempt and either schedules the single retry
// or parks the channel in Failed. Caller holds m.mu.
func (m *manager) failLocked(cs *channelState, err error) {
	cs.retryCount++
	cs.client = nil

	if cs.retryCount >= m.cfg.MaxRetries {
		cs.state = StateFailed
		m.logger.Error("channel failed, giving up until explicit reconnect",
			"channel", cs.id,
			"retries", cs.retryCount,
			"error", err,
		)
		return
	}

	cs.state = StateReconnecting
	m.logger.Warn("channel attempt failed, retry scheduled",
		"channel", cs.id,
		"retries", cs.retryCount,
		"backoff", m.cfg.ReconnectBackoff,
		"error", err,
	)
	m.coord.scheduleRetry(cs.id)
}

// teardownLocked releases the current socket and invalidates its pump.
// Caller holds m.mu and must Close the returned client outside the lock.
func (m *manager) teardownLocked(cs *channelState) Client {
	cli := cs.client
	cs.client = nil
	cs.gen++
	if cs.stopPump != nil {
		close(cs.stopPump)
		cs.stopPump = nil
	}
	return cli
}

// pump reads one socket's messages and errors until the socket is torn down.
func (m *manager) pump(cs *channelState, cli Client, gen uint64, stop <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-stop:
			return

		case msg, ok := <-cli.Messages():
			if !ok {
				return
			}
			m.touch(cs, gen, msg.ReceivedAt)

			select {
			case m.inbound <- InboundMessage{ChannelID: cs.id, Data: msg.Data, ReceivedAt: msg.ReceivedAt}:
			default:
				m.logger.Warn("inbound buffer full, dropping message", "channel", cs.id)
			}

		case err := <-cli.Errors():
			m.handleSocketError(cs, cli, gen, err)
			return
		}
	}
}

// touch updates the channel's last-activity timestamp for the current socket.
func (m *manager) touch(cs *channelState, gen uint64, at time.Time) {
	m.mu.Lock()
	if cs.gen == gen {
		cs.lastActivity = at
	}
	m.mu.Unlock()
}

// handleSocketError reacts to an unexpected transport failure.
func (m *manager) handleSocketError(cs *channelState, cli Client, gen uint64, err error) {
	m.mu.Lock()
	if cs.gen != gen {
		// A newer socket replaced this one; nothing to do.
		m.mu.Unlock()
		return
	}

	was := cs.state
	cs.client = nil
	cs.stopPump = nil
	cs.gen++
	m.failLocked(cs, err)
	m.mu.Unlock()

	cli.Close()

	if was == StateConnected {
		m.logger.Warn("channel connection lost", "channel", cs.id, "error", err)
		m.bus.Publish(bus.DisconnectedEvent(cs.id), m.channelStatus(cs.id))
	}
}

// resolveEndpoint substitutes the session token into an endpoint template.
func resolveEndpoint(endpoint, token string) string {
	if !strings.Contains(endpoint, "{token}") {
		return endpoint
	}
	return strings.ReplaceAll(endpoint, "{token}", url.QueryEscape(token))
}
