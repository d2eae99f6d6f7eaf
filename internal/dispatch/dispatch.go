package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/monjeychiang/SABIT-sub000/internal/connection"
	"github.com/monjeychiang/SABIT-sub000/internal/model"
)

// Dispatcher fans the manager's inbound stream out to typed buffers, one per
// consumer concern. Only the type discriminator of each message is inspected.
type Dispatcher interface {
	// Start begins consuming the input stream.
	Start(ctx context.Context) error

	// Stop drains the dispatch loop and closes the output buffers.
	Stop(ctx context.Context) error

	// Buffers returns the typed output buffers for consumers.
	Buffers() Buffers

	// Stats returns current dispatch statistics.
	Stats() Stats
}

// Buffers provides access to the typed output buffers.
type Buffers struct {
	Chat          *GrowableBuffer[model.ChatMessage]
	Notifications *GrowableBuffer[model.Notification]
	Presence      *GrowableBuffer[model.PresenceUpdate]
	Account       *GrowableBuffer[model.AccountUpdate]
}

// Stats contains dispatch counters.
type Stats struct {
	MessagesReceived   int64
	MessagesDispatched int64
	ParseErrors        int64
	UnknownMessages    int64
	ChatBuffer         BufferStats
	NotificationBuffer BufferStats
	PresenceBuffer     BufferStats
	AccountBuffer      BufferStats
}

// Config holds dispatcher settings.
type Config struct {
	ChatBufferSize         int
	NotificationBufferSize int
	PresenceBufferSize     int
	AccountBufferSize      int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChatBufferSize:         256,
		NotificationBufferSize: 64,
		PresenceBufferSize:     64,
		AccountBufferSize:      128,
	}
}

// dispatcher is the internal implementation.
type dispatcher struct {
	cfg    Config
	logger *slog.Logger

	input <-chan connection.InboundMessage

	chatBuf    *GrowableBuffer[model.ChatMessage]
	notifBuf   *GrowableBuffer[model.Notification]
	presBuf    *GrowableBuffer[model.PresenceUpdate]
	accountBuf *GrowableBuffer[model.AccountUpdate]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	received   int64
	dispatched int64
	parseErrs  int64
	unknown    int64
}

// New creates a dispatcher for the given inbound stream.
func New(cfg Config, input <-chan connection.InboundMessage, logger *slog.Logger) Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultConfig()
	if cfg.ChatBufferSize <= 0 {
		cfg.ChatBufferSize = def.ChatBufferSize
	}
	if cfg.NotificationBufferSize <= 0 {
		cfg.NotificationBufferSize = def.NotificationBufferSize
	}
	if cfg.PresenceBufferSize <= 0 {
		cfg.PresenceBufferSize = def.PresenceBufferSize
	}
	if cfg.AccountBufferSize <= 0 {
		cfg.AccountBufferSize = def.AccountBufferSize
	}

	return &dispatcher{
		cfg:        cfg,
		logger:     logger,
		input:      input,
		chatBuf:    NewGrowableBuffer[model.ChatMessage](cfg.ChatBufferSize),
		notifBuf:   NewGrowableBuffer[model.Notification](cfg.NotificationBufferSize),
		presBuf:    NewGrowableBuffer[model.PresenceUpdate](cfg.PresenceBufferSize),
		accountBuf: NewGrowableBuffer[model.AccountUpdate](cfg.AccountBufferSize),
	}
}

// Start begins dispatching messages.
func (d *dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.loop()

	d.logger.Info("dispatcher started",
		"chat_buffer", d.cfg.ChatBufferSize,
		"notification_buffer", d.cfg.NotificationBufferSize,
		"presence_buffer", d.cfg.PresenceBufferSize,
		"account_buffer", d.cfg.AccountBufferSize,
	)

	return nil
}

// Stop gracefully shuts down the dispatcher.
func (d *dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
	case <-ctx.Done():
		d.logger.Warn("dispatcher stop timed out")
	}

	d.chatBuf.Close()
	d.notifBuf.Close()
	d.presBuf.Close()
	d.accountBuf.Close()

	return nil
}

// Buffers returns the typed output buffers.
func (d *dispatcher) Buffers() Buffers {
	return Buffers{
		Chat:          d.chatBuf,
		Notifications: d.notifBuf,
		Presence:      d.presBuf,
		Account:       d.accountBuf,
	}
}

// Stats returns current statistics.
func (d *dispatcher) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Stats{
		MessagesReceived:   d.received,
		MessagesDispatched: d.dispatched,
		ParseErrors:        d.parseErrs,
		UnknownMessages:    d.unknown,
		ChatBuffer:         d.chatBuf.Stats(),
		NotificationBuffer: d.notifBuf.Stats(),
		PresenceBuffer:     d.presBuf.Stats(),
		AccountBuffer:      d.accountBuf.Stats(),
	}
}

func (d *dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case msg, ok := <-d.input:
			if !ok {
				d.logger.Info("input channel closed")
				return
			}
			d.route(msg)
		}
	}
}

// route inspects the type discriminator and hands the message to its buffer.
func (d *dispatcher) route(msg connection.InboundMessage) {
	d.count(&d.received)

	var env model.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		d.logger.Warn("unparseable message", "channel", msg.ChannelID, "error", err)
		d.count(&d.parseErrs)
		return
	}

	receivedAt := msg.ReceivedAt.UnixMilli()
	var sent bool

	switch env.Type {
	case "message":
		var m model.ChatMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			d.parseFailure(msg.ChannelID, env.Type, err)
			return
		}
		m.ReceivedAt = receivedAt
		sent = d.chatBuf.Send(m)

	case "notification":
		var n model.Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			d.parseFailure(msg.ChannelID, env.Type, err)
			return
		}
		n.ReceivedAt = receivedAt
		sent = d.notifBuf.Send(n)

	case "presence":
		var p model.PresenceUpdate
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			d.parseFailure(msg.ChannelID, env.Type, err)
			return
		}
		p.ReceivedAt = receivedAt
		sent = d.presBuf.Send(p)

	case "account_update":
		var a model.AccountUpdate
		if err := json.Unmarshal(msg.Data, &a); err != nil {
			d.parseFailure(msg.ChannelID, env.Type, err)
			return
		}
		a.ReceivedAt = receivedAt
		sent = d.accountBuf.Send(a)

	case "pong", "refresh_ack":
		// Keepalive traffic; already counted as channel activity upstream.
		return

	default:
		d.logger.Debug("unknown message type", "channel", msg.ChannelID, "type", env.Type)
		d.count(&d.unknown)
		return
	}

	if sent {
		d.count(&d.dispatched)
	}
}

func (d *dispatcher) parseFailure(channelID, msgType string, err error) {
	d.logger.Warn("failed to parse message",
		"channel", channelID,
		"type", msgType,
		"error", err,
	)
	d.count(&d.parseErrs)
}

func (d *dispatcher) count(field *int64) {
	d.mu.Lock()
	*field++
	d.mu.Unlock()
}
