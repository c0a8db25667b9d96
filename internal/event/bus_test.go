package event

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe("test.event", func(e Event) error {
		called = true
		return nil
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}

	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}

	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus()

	var receivedEvent Event
	bus.Subscribe(TypeUploadStarted, func(e Event) error {
		receivedEvent = e
		return nil
	})

	results := bus.Publish(NewUploadStartedEvent("file-1", "scan.png", 2048))

	if receivedEvent == nil {
		t.Fatal("Handler should have received the event")
	}
	if receivedEvent.EventType() != TypeUploadStarted {
		t.Errorf("Expected event type %q, got %q", TypeUploadStarted, receivedEvent.EventType())
	}
	if len(results) != 1 || results[0] != nil {
		t.Errorf("Expected one nil result, got %v", results)
	}
}

func TestBus_PublishNoSubscribers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe("other.event", func(e Event) error {
		t.Error("Handler should not be called for non-matching event type")
		return nil
	})

	results := bus.Publish(newBaseEvent("test.event"))
	if len(results) != 0 {
		t.Errorf("Expected empty result list for unsubscribed event, got %d entries", len(results))
	}
}

func TestBus_RegistrationOrder(t *testing.T) {
	bus := NewBus()

	var order []int
	for i := 0; i < 8; i++ {
		i := i
		bus.Subscribe("test.event", func(e Event) error {
			order = append(order, i)
			return nil
		})
	}

	// Every publish must observe the same registration order.
	for round := 0; round < 3; round++ {
		order = order[:0]
		bus.Publish(newBaseEvent("test.event"))
		for i, got := range order {
			if got != i {
				t.Fatalf("round %d: handler %d ran at position %d", round, got, i)
			}
		}
		if len(order) != 8 {
			t.Fatalf("round %d: expected 8 handlers, got %d", round, len(order))
		}
	}
}

func TestBus_Once(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe("test.event", func(e Event) error {
		calls++
		return nil
	}, Once())

	for i := 0; i < 5; i++ {
		bus.Publish(newBaseEvent("test.event"))
	}

	if calls != 1 {
		t.Errorf("Once handler should fire exactly once, fired %d times", calls)
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("Once subscription should be removed, %d remain", bus.SubscriptionCount())
	}
}

func TestBus_ErrorIsolation(t *testing.T) {
	bus := NewBus()

	var failures []HandlerFailedEvent
	bus.Subscribe(TypeHandlerFailed, func(e Event) error {
		failures = append(failures, e.(HandlerFailedEvent))
		return nil
	})

	ran := make([]bool, 3)
	bus.Subscribe("test.event", func(e Event) error {
		ran[0] = true
		return nil
	})
	boom := errors.New("boom")
	bus.Subscribe("test.event", func(e Event) error {
		ran[1] = true
		return boom
	})
	bus.Subscribe("test.event", func(e Event) error {
		ran[2] = true
		return nil
	})

	results := bus.Publish(newBaseEvent("test.event"))

	for i, r := range ran {
		if !r {
			t.Errorf("handler %d did not run", i)
		}
	}
	if len(results) != 3 || results[0] != nil || !errors.Is(results[1], boom) || results[2] != nil {
		t.Errorf("unexpected results: %v", results)
	}
	if len(failures) != 1 {
		t.Fatalf("expected exactly one handler-failure event, got %d", len(failures))
	}
	if failures[0].FailedType != "test.event" || !errors.Is(failures[0].Err, boom) {
		t.Errorf("failure event does not reference the failing handler: %+v", failures[0])
	}
	if failures[0].Original == nil || failures[0].Original.EventType() != "test.event" {
		t.Error("failure event should carry the original event")
	}
}

func TestBus_PanicIsolation(t *testing.T) {
	bus := NewBus()

	sibling := false
	bus.Subscribe("test.event", func(e Event) error {
		panic("handler exploded")
	})
	bus.Subscribe("test.event", func(e Event) error {
		sibling = true
		return nil
	})

	results := bus.Publish(newBaseEvent("test.event"))

	if !sibling {
		t.Error("sibling handler should still run after a panic")
	}
	if results[0] == nil {
		t.Error("panic should surface as an error result")
	}
}

func TestBus_ReentrantPublish(t *testing.T) {
	bus := NewBus()

	var sequence []string
	bus.Subscribe("outer.event", func(e Event) error {
		sequence = append(sequence, "outer")
		bus.Publish(newBaseEvent("inner.event"))
		return nil
	})
	bus.Subscribe("inner.event", func(e Event) error {
		sequence = append(sequence, "inner")
		return nil
	})

	bus.Publish(newBaseEvent("outer.event"))

	if len(sequence) != 2 || sequence[0] != "outer" || sequence[1] != "inner" {
		t.Errorf("unexpected dispatch sequence: %v", sequence)
	}
}

func TestBus_UnsubscribeDuringDispatch(t *testing.T) {
	bus := NewBus()

	var id2 string
	ran := make(map[string]int)
	bus.Subscribe("test.event", func(e Event) error {
		ran["first"]++
		bus.Unsubscribe(id2)
		return nil
	})
	id2 = bus.Subscribe("test.event", func(e Event) error {
		ran["second"]++
		return nil
	})
	bus.Subscribe("test.event", func(e Event) error {
		ran["third"]++
		return nil
	})

	// The in-flight dispatch iterates a snapshot, so the second handler
	// still fires this time and is gone on the next publish.
	bus.Publish(newBaseEvent("test.event"))
	bus.Publish(newBaseEvent("test.event"))

	if ran["first"] != 2 || ran["third"] != 2 {
		t.Errorf("surviving handlers should run on both publishes: %v", ran)
	}
	if ran["second"] != 1 {
		t.Errorf("unsubscribed handler should have run exactly once, ran %d times", ran["second"])
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe("test.event", func(e Event) error {
		called = true
		return nil
	})

	if removed := bus.Unsubscribe(id); !removed {
		t.Error("Unsubscribe should return true when subscription exists")
	}
	if removed := bus.Unsubscribe(id); removed {
		t.Error("Unsubscribe should be a no-op the second time")
	}

	bus.Publish(newBaseEvent("test.event"))
	if called {
		t.Error("Handler should not be called after unsubscribing")
	}
}

func TestBus_UnsubscribeAll(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe("test.event", func(e Event) error { calls++; return nil })
	bus.Subscribe("test.event", func(e Event) error { calls++; return nil })
	bus.Subscribe("keep.event", func(e Event) error { calls++; return nil })

	bus.UnsubscribeAll("test.event")
	bus.Publish(newBaseEvent("test.event"))
	bus.Publish(newBaseEvent("keep.event"))

	if calls != 1 {
		t.Errorf("expected only the surviving subscription to fire, got %d calls", calls)
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()

	var events []string
	bus.SubscribeAll(func(e Event) error {
		events = append(events, e.EventType())
		return nil
	})

	bus.Publish(newBaseEvent("event.one"))
	bus.Publish(newBaseEvent("event.two"))
	bus.Publish(newBaseEvent("event.three"))

	expected := []string{"event.one", "event.two", "event.three"}
	if len(events) != len(expected) {
		t.Fatalf("expected %d events, got %d", len(expected), len(events))
	}
	for i, e := range expected {
		if events[i] != e {
			t.Errorf("expected event %d to be %q, got %q", i, e, events[i])
		}
	}
}

func TestBus_Async(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe("test.event", func(e Event) error {
		defer wg.Done()
		return nil
	}, Async())

	results := bus.Publish(newBaseEvent("test.event"))
	if len(results) != 1 || results[0] != nil {
		t.Errorf("async handler should contribute a nil result, got %v", results)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handler never ran")
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()

	bus.Subscribe("a", func(e Event) error { return nil })
	bus.Subscribe("b", func(e Event) error { return nil })
	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("expected 0 subscriptions after Clear, got %d", bus.SubscriptionCount())
	}
}
