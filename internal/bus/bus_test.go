package bus

import (
	"testing"
)

func TestBus_DeliveryOrder(t *testing.T) {
	b := New(nil)

	var order []int
	b.Subscribe("evt", func(any) { order = append(order, 1) })
	b.Subscribe("evt", func(any) { order = append(order, 2) })
	b.Subscribe("evt", func(any) { order = append(order, 3) })

	b.Publish("evt", nil)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("delivery order = %v, want [1 2 3]", order)
	}
}

func TestBus_PayloadDelivered(t *testing.T) {
	b := New(nil)

	var got any
	b.Subscribe("evt", func(p any) { got = p })
	b.Publish("evt", "hello")

	if got != "hello" {
		t.Errorf("payload = %v, want hello", got)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New(nil)

	var calls int
	unsub := b.Subscribe("evt", func(any) { calls++ })

	b.Publish("evt", nil)
	unsub()
	b.Publish("evt", nil)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	// Second disposal is a no-op.
	unsub()
	b.Publish("evt", nil)
	if calls != 1 {
		t.Errorf("calls after double unsubscribe = %d, want 1", calls)
	}
}

func TestBus_UnsubscribeKeepsOthers(t *testing.T) {
	b := New(nil)

	var first, second int
	unsub := b.Subscribe("evt", func(any) { first++ })
	b.Subscribe("evt", func(any) { second++ })

	unsub()
	b.Publish("evt", nil)

	if first != 0 {
		t.Errorf("first = %d, want 0", first)
	}
	if second != 1 {
		t.Errorf("second = %d, want 1", second)
	}
}

func TestBus_PanicDoesNotStopDelivery(t *testing.T) {
	b := New(nil)

	var reached bool
	b.Subscribe("evt", func(any) { panic("boom") })
	b.Subscribe("evt", func(any) { reached = true })

	b.Publish("evt", nil)

	if !reached {
		t.Error("handler after panicking handler was not invoked")
	}
}

func TestBus_PublishNoSubscribers(t *testing.T) {
	b := New(nil)
	// Must not panic.
	b.Publish("nobody-listens", 42)
}

func TestChannelEventNames(t *testing.T) {
	if got := ConnectedEvent("chat"); got != EventChatConnected {
		t.Errorf("ConnectedEvent(chat) = %q, want %q", got, EventChatConnected)
	}
	if got := DisconnectedEvent("online"); got != EventOnlineDisconnected {
		t.Errorf("DisconnectedEvent(online) = %q, want %q", got, EventOnlineDisconnected)
	}
}
