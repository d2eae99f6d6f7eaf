package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope is the minimal frame shared by every message on a realtime
// channel. Only the type discriminator is inspected before dispatch; the rest
// of the payload belongs to the consumer.
type Envelope struct {
	Type string `json:"type"`
}

// ChatMessage is one message on the chat channel.
type ChatMessage struct {
	ID         uuid.UUID `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	SentTS     int64     `json:"sent_ts"`     // sender timestamp (ms since epoch)
	ReceivedAt int64     `json:"received_at"` // local receive timestamp (ms since epoch)
}

// Notification is one entry on the notification channel.
type Notification struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"` // "system", "order", "price-alert"
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedTS  int64     `json:"created_ts"`
	ReceivedAt int64     `json:"received_at"`
}

// PresenceUpdate reports a user going online or offline.
type PresenceUpdate struct {
	UserID     int64 `json:"user_id"`
	Online     bool  `json:"online"`
	LastSeenTS int64 `json:"last_seen_ts"`
	ReceivedAt int64 `json:"received_at"`
}

// AccountUpdate carries exchange account data (balances, orders, positions).
// The payload is passed through untouched; the exchange schema varies per
// stream and the core never interprets it.
type AccountUpdate struct {
	Stream     string          `json:"stream"` // "balance", "order", "position"
	Symbol     string          `json:"symbol,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt int64           `json:"received_at"`
}
