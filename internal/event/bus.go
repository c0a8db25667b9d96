package event

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Wildcard subscriptions receive every event after the type-specific
// handlers have run.
const wildcard = "*"

// Handler is a function that handles an event. A non-nil return value is
// treated the same as a panic: it is isolated from sibling handlers and
// surfaced as a HandlerFailedEvent.
type Handler func(Event) error

type subOptions struct {
	once  bool
	async bool
}

// Option configures a subscription.
type Option func(*subOptions)

// Once makes the subscription fire at most one time and then remove itself.
func Once() Option {
	return func(o *subOptions) { o.once = true }
}

// Async runs the handler in its own goroutine so dispatch does not wait for
// it. Async handler results are not part of the Publish return value.
func Async() Option {
	return func(o *subOptions) { o.async = true }
}

// subscription represents a registered event handler.
type subscription struct {
	id        string
	eventType string
	handler   Handler
	opts      subOptions
}

// Bus is a synchronous pub-sub event bus. It allows components to
// communicate without direct dependencies. A Bus is safe for concurrent use;
// handlers for one event type run in registration order.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription // eventType -> subscriptions
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscriptions: make(map[string][]subscription),
	}
}

// Subscribe registers a handler for a specific event type and returns a
// subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler, opts ...Option) string {
	var o subOptions
	for _, opt := range opts {
		opt(&o)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscription{
		id:        uuid.NewString(),
		eventType: eventType,
		handler:   handler,
		opts:      o,
	}
	b.subscriptions[eventType] = append(b.subscriptions[eventType], sub)
	return sub.id
}

// SubscribeAll registers a handler for all event types. Wildcard handlers
// run after the type-specific handlers, in registration order.
func (b *Bus) SubscribeAll(handler Handler, opts ...Option) string {
	return b.Subscribe(wildcard, handler, opts...)
}

// Unsubscribe removes a subscription by ID. Removing an unknown or already
// removed ID is a no-op; the return value reports whether anything was
// removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				b.subscriptions[eventType] = append(subs[:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// UnsubscribeAll removes every subscription for an event type.
func (b *Bus) UnsubscribeAll(eventType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions, eventType)
}

// Publish dispatches an event to all registered handlers. Type-specific
// handlers are called first, then wildcard handlers; within each group,
// handlers run in registration order. The returned slice holds one entry
// per dispatched handler, in order: nil for success and for async handlers,
// the handler's error otherwise. An empty slice means the event had no
// subscribers, which is not an error condition.
//
// A handler that fails never halts delivery to its siblings; each failure
// is republished as a HandlerFailedEvent. Handlers may themselves publish
// (dispatch iterates over a snapshot, so re-entrant publish and unsubscribe
// during dispatch are safe).
func (b *Bus) Publish(event Event) []error {
	eventType := event.EventType()

	b.mu.Lock()
	subs := make([]subscription, 0, len(b.subscriptions[eventType])+len(b.subscriptions[wildcard]))
	subs = append(subs, b.subscriptions[eventType]...)
	subs = append(subs, b.subscriptions[wildcard]...)
	// Claim once-subscriptions before invoking so they fire exactly one
	// time even under re-entrant or concurrent publishes.
	b.dropOnceLocked(eventType)
	b.dropOnceLocked(wildcard)
	b.mu.Unlock()

	results := make([]error, 0, len(subs))
	for _, sub := range subs {
		if sub.opts.async {
			go func(s subscription) {
				if err := safeCall(s.handler, event); err != nil {
					b.reportFailure(eventType, err, event)
				}
			}(sub)
			results = append(results, nil)
			continue
		}
		err := safeCall(sub.handler, event)
		if err != nil {
			b.reportFailure(eventType, err, event)
		}
		results = append(results, err)
	}
	return results
}

// Clear removes all subscriptions. Intended for tests and full application
// reset.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string][]subscription)
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}

func (b *Bus) dropOnceLocked(eventType string) {
	subs := b.subscriptions[eventType]
	kept := subs[:0]
	for _, sub := range subs {
		if !sub.opts.once {
			kept = append(kept, sub)
		}
	}
	if len(kept) == 0 {
		delete(b.subscriptions, eventType)
		return
	}
	b.subscriptions[eventType] = kept
}

// reportFailure surfaces a handler failure as an event of its own. Failures
// of handler-failure subscribers are not republished, which bounds the
// recursion.
func (b *Bus) reportFailure(failedType string, err error, original Event) {
	if failedType == TypeHandlerFailed {
		return
	}
	b.Publish(NewHandlerFailedEvent(failedType, err, original))
}

// safeCall invokes a handler and converts panics into errors so one
// misbehaving handler cannot block event delivery to the others.
func safeCall(handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(event)
}
