package bus

import "testing"

func TestSubscribeReceivesPublished(t *testing.T) {
	b := New[int](4)
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Publish(7)
	if got := <-ch; got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

func TestPublishDropsOldestOnOverflow(t *testing.T) {
	b := New[int](2)
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Publish(1)
	b.Publish(2)
	b.Publish(3) // evicts 1

	if got := <-ch; got != 2 {
		t.Fatalf("first received = %d, want 2", got)
	}
	if got := <-ch; got != 3 {
		t.Fatalf("second received = %d, want 3", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New[int](1)
	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
	if n := b.Subscribers(); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
}

func TestIndependentSubscriberBuffers(t *testing.T) {
	b := New[int](2)
	slowID, slow := b.Subscribe()
	fastID, fast := b.Subscribe()
	defer b.Unsubscribe(slowID)
	defer b.Unsubscribe(fastID)

	b.Publish(1)
	if got := <-fast; got != 1 {
		t.Fatalf("fast received %d, want 1", got)
	}

	// Overflow only the slow subscriber.
	b.Publish(2)
	b.Publish(3)
	b.Publish(4)

	if got := <-slow; got != 3 {
		t.Fatalf("slow first = %d, want 3 (1 and 2 evicted)", got)
	}
	if got := <-fast; got != 3 {
		t.Fatalf("fast first = %d, want 3 (2 evicted)", got)
	}
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var b *Bus[string]
	b.Publish("ignored") // must not panic
	if n := b.Subscribers(); n != 0 {
		t.Fatalf("nil bus subscribers = %d, want 0", n)
	}
}
