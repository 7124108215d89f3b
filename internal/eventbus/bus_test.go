package eventbus

import "testing"

func TestSubscribe_ReceivesEmittedEvent(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Emit(WorkerAdded, map[string]string{"name": "demo"})

	env := <-ch
	if env.Type != WorkerAdded {
		t.Fatalf("expected WorkerAdded, got %v", env.Type)
	}
	if env.TimestampMS == 0 {
		t.Fatal("expected a non-zero timestamp")
	}
}

func TestEmit_FanOutToMultipleSubscribers(t *testing.T) {
	b := New()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Emit(ToolCall, nil)

	if (<-ch1).Type != ToolCall {
		t.Fatal("expected subscriber 1 to receive the event")
	}
	if (<-ch2).Type != ToolCall {
		t.Fatal("expected subscriber 2 to receive the event")
	}
}

func TestUnsubscribe_ClosesChannelAndStopsDelivery(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", b.SubscriberCount())
	}
}

func TestEmit_DropsOldestWhenSubscriberBufferFull(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	for i := 0; i < defaultBufferSize+10; i++ {
		b.Emit(ToolResult, i)
	}

	// The buffer should be full but Emit must never have blocked; drain one
	// and confirm it's a later event than the very first emitted (0 was
	// dropped to make room for newer ones).
	first := <-ch
	if first.Data == 0 {
		t.Fatal("expected the oldest event to have been dropped, not delivered")
	}
}

func TestSubscriberCount_TracksActiveSubscribers(t *testing.T) {
	b := New()
	if b.SubscriberCount() != 0 {
		t.Fatal("expected a fresh Bus to have 0 subscribers")
	}
	_, unsub := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.SubscriberCount())
	}
	unsub()
	if b.SubscriberCount() != 0 {
		t.Fatal("expected 0 subscribers after unsubscribe")
	}
}
