package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBus_SingleWorkerPreservesOrder(t *testing.T) {
	b := New()

	var (
		mu  sync.Mutex
		got []string
	)
	record := func(e Event) {
		mu.Lock()
		got = append(got, e.Context)
		mu.Unlock()
	}
	b.Subscribe(EventTypeKeyDown, record)
	b.Subscribe(EventTypeRefresh, record)

	want := []string{"a", "b", "c", "d", "e"}
	for i, ctx := range want {
		typ := EventTypeKeyDown
		if i%2 == 1 {
			typ = EventTypeRefresh
		}
		if !b.Publish(Event{Type: typ, Context: ctx}) {
			t.Fatalf("publish %q was dropped", ctx)
		}
	}

	b.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	b := New()
	called := false
	b.Subscribe(EventTypeKeyDown, func(Event) { called = true })

	b.Close(context.Background())
	b.Close(context.Background())

	if b.Publish(Event{Type: EventTypeKeyDown}) {
		t.Error("publish after close should report dropped")
	}
	if called {
		t.Error("handler ran after close")
	}
}

func TestBus_QueueFullDrops(t *testing.T) {
	b := NewWithConfig(1, 1)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	b.Subscribe(EventTypeKeyDown, func(Event) {
		started <- struct{}{}
		<-release
	})

	b.Publish(Event{Type: EventTypeKeyDown})
	<-started

	if !b.Publish(Event{Type: EventTypeKeyDown}) {
		t.Fatal("second event should fit in the queue")
	}
	if b.Publish(Event{Type: EventTypeKeyDown}) {
		t.Error("third event should be dropped")
	}

	close(release)
	b.Close(context.Background())
}

func TestBus_PanicDoesNotKillWorker(t *testing.T) {
	b := New()
	done := make(chan struct{})
	b.Subscribe(EventTypeKeyDown, func(Event) { panic("boom") })
	b.Subscribe(EventTypeRefresh, func(Event) { close(done) })

	b.Publish(Event{Type: EventTypeKeyDown})
	b.Publish(Event{Type: EventTypeRefresh})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive handler panic")
	}
	b.Close(context.Background())
}

func TestBus_ConcurrentPublishAndClose(t *testing.T) {
	b := NewWithConfig(1, 10)
	b.Subscribe(EventTypeRefresh, func(Event) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(Event{Type: EventTypeRefresh})
			}
		}()
	}

	b.Close(context.Background())
	wg.Wait()
}

func TestBus_CloseTimeout(t *testing.T) {
	b := New()
	block := make(chan struct{})
	b.Subscribe(EventTypeKeyDown, func(Event) { <-block })
	b.Publish(Event{Type: EventTypeKeyDown})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	b.Close(ctx)
	if time.Since(start) > time.Second {
		t.Error("close did not honour context deadline")
	}
	close(block)
}
