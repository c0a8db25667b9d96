// Package event provides a pub-sub event bus for decoupled inter-component
// communication in Image2Doc.
//
// The file coordinator publishes lifecycle events without knowing who will
// receive them; the notification center and the presentation layers
// subscribe without knowing who produces them. One Bus instance is
// constructed at startup and injected into every component that needs it;
// there is no package-level singleton, so tests get fresh state per test.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event) error)
//
// # Event Categories
//
// Upload lifecycle:
//   - [UploadStartedEvent], [UploadProgressEvent], [UploadCompletedEvent], [UploadFailedEvent]
//
// Conversion lifecycle:
//   - [ConversionStartedEvent], [ConversionProgressEvent],
//     [ConversionCompletedEvent], [ConversionFailedEvent]
//
// Download lifecycle:
//   - [DownloadStartedEvent], [DownloadCompletedEvent]
//
// Record management:
//   - [FileRemovedEvent], [FilesClearedEvent]
//
// System:
//   - [SystemErrorEvent], [SystemWarningEvent], [SystemInfoEvent]
//   - [HandlerFailedEvent]: published by the bus itself when a subscriber fails
//
// # Dispatch Semantics
//
// Handlers for one event type run synchronously in registration order unless
// registered with [Async]. A handler registered with [Once] fires at most
// one time. A failing handler (error return or panic) never prevents its
// siblings from running; the failure is republished as a
// [HandlerFailedEvent] carrying the failing event type, the error, and the
// original event. Re-entrant publish from inside a handler is legal.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeConversionCompleted, func(e event.Event) error {
//	    done := e.(event.ConversionCompletedEvent)
//	    log.Printf("converted %s to %s", done.File.Name, done.Format)
//	    return nil
//	})
//
//	bus.Publish(event.NewConversionCompletedEvent(record, "docx"))
package event
