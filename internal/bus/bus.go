package bus

import (
	"log/slog"
	"sync"
)

// Handler receives a published event payload.
type Handler func(payload any)

// Named events published by the realtime core.
const (
	EventChatConnected            = "chat:websocket-connected"
	EventChatDisconnected         = "chat:websocket-disconnected"
	EventNotificationConnected    = "notification:websocket-connected"
	EventNotificationDisconnected = "notification:websocket-disconnected"
	EventOnlineConnected          = "online:websocket-connected"
	EventOnlineDisconnected       = "online:websocket-disconnected"
	EventAccountConnected         = "account:websocket-connected"
	EventAccountDisconnected      = "account:websocket-disconnected"
	EventLoginAuthenticated       = "login-authenticated"
	EventLogout                   = "logout-event"
	EventLatencySample            = "latency:sample-recorded"
)

// ConnectedEvent returns the connected event name for a channel ID.
func ConnectedEvent(channelID string) string {
	return channelID + ":websocket-connected"
}

// DisconnectedEvent returns the disconnected event name for a channel ID.
func DisconnectedEvent(channelID string) string {
	return channelID + ":websocket-disconnected"
}

// Bus is a process-wide publish/subscribe mechanism decoupling the connection
// and latency services from their consumers.
//
// Delivery is synchronous and in registration order. The bus never expires
// subscribers; callers own their disposers.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int64
	subs   map[string][]subscription
}

type subscription struct {
	id      int64
	handler Handler
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[string][]subscription),
	}
}

// Subscribe registers a handler for an event and returns a disposer.
// The disposer is idempotent.
func (b *Bus) Subscribe(event string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[event] = append(b.subs[event], subscription{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[event]
		for i, sub := range list {
			if sub.id == id {
				b.subs[event] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[event]) == 0 {
			delete(b.subs, event)
		}
	}
}

// Publish synchronously invokes every current subscriber of event in
// registration order. A panicking handler is recovered and logged so the
// remaining handlers still run.
func (b *Bus) Publish(event string, payload any) {
	b.mu.RLock()
	list := make([]subscription, len(b.subs[event]))
	copy(list, b.subs[event])
	b.mu.RUnlock()

	for _, sub := range list {
		b.invoke(event, sub.handler, payload)
	}
}

func (b *Bus) invoke(event string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", event,
				"panic", r,
			)
		}
	}()
	h(payload)
}
