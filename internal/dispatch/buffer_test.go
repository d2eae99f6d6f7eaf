package dispatch

import (
	"sync"
	"testing"
	"time"
)

func TestGrowableBuffer_SendReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](8)

	for i := 0; i < 5; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) refused", i)
		}
	}
	if buf.Len() != 5 {
		t.Errorf("Len = %d, want 5", buf.Len())
	}

	for i := 0; i < 5; i++ {
		got, ok := buf.Receive()
		if !ok {
			t.Fatal("Receive returned closed")
		}
		if got != i {
			t.Errorf("Receive = %d, want %d (FIFO order)", got, i)
		}
	}
}

func TestGrowableBuffer_GrowsBeforeFull(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	// 7 items hits the 70% threshold of capacity 10.
	for i := 0; i < 7; i++ {
		buf.Send(i)
	}

	stats := buf.Stats()
	if stats.Resizes == 0 {
		t.Error("buffer never grew")
	}
	if stats.Capacity <= 10 {
		t.Errorf("capacity = %d, want > 10", stats.Capacity)
	}

	// Order survives the unwrap.
	for i := 0; i < 7; i++ {
		got, _ := buf.Receive()
		if got != i {
			t.Errorf("after grow, Receive = %d, want %d", got, i)
		}
	}
}

func TestGrowableBuffer_ReceiveBlocksUntilSend(t *testing.T) {
	buf := NewGrowableBuffer[string](4)

	got := make(chan string, 1)
	go func() {
		v, _ := buf.Receive()
		got <- v
	}()

	// Give the receiver time to park.
	time.Sleep(20 * time.Millisecond)
	buf.Send("hello")

	select {
	case v := <-got:
		if v != "hello" {
			t.Errorf("received %q, want %q", v, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive never woke up")
	}
}

func TestGrowableBuffer_CloseDrains(t *testing.T) {
	buf := NewGrowableBuffer[int](4)
	buf.Send(1)
	buf.Send(2)
	buf.Close()

	if buf.Send(3) {
		t.Error("Send accepted after Close")
	}

	// Remaining items drain, then the closed signal.
	if v, ok := buf.Receive(); !ok || v != 1 {
		t.Errorf("Receive = %d/%v, want 1/true", v, ok)
	}
	if v, ok := buf.Receive(); !ok || v != 2 {
		t.Errorf("Receive = %d/%v, want 2/true", v, ok)
	}
	if _, ok := buf.Receive(); ok {
		t.Error("Receive reported data on drained closed buffer")
	}
}

func TestGrowableBuffer_CloseWakesBlockedReceivers(t *testing.T) {
	buf := NewGrowableBuffer[int](4)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf.Receive()
		}()
	}

	time.Sleep(20 * time.Millisecond)
	buf.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked receivers never woke after Close")
	}
}

func TestGrowableBuffer_TryReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](4)

	if _, ok := buf.TryReceive(); ok {
		t.Error("TryReceive reported data on empty buffer")
	}

	buf.Send(42)
	if v, ok := buf.TryReceive(); !ok || v != 42 {
		t.Errorf("TryReceive = %d/%v, want 42/true", v, ok)
	}
}
