package notify

import (
	"fmt"
	"strings"

	"github.com/image2doc/image2doc/internal/event"
)

// Bind subscribes the center to the bus events it presents. The returned
// subscription IDs can be passed to bus.Unsubscribe to detach.
func (c *Center) Bind(bus *event.Bus) []string {
	ids := []string{
		bus.Subscribe(event.TypeUploadFailed, func(e event.Event) error {
			if ev, ok := e.(event.UploadFailedEvent); ok {
				c.Error("Upload failed", uploadFailedMessage(ev))
			}
			return nil
		}),
		bus.Subscribe(event.TypeConversionCompleted, func(e event.Event) error {
			if ev, ok := e.(event.ConversionCompletedEvent); ok {
				c.Success("Conversion complete",
					fmt.Sprintf("%s converted to %s", ev.File.Name, strings.ToUpper(ev.Format)))
			}
			return nil
		}),
		bus.Subscribe(event.TypeConversionFailed, func(e event.Event) error {
			if ev, ok := e.(event.ConversionFailedEvent); ok {
				c.Error("Conversion failed", fmt.Sprintf("%s: %s", ev.File.Name, ev.Reason))
			}
			return nil
		}),
		bus.Subscribe(event.TypeSystemError, func(e event.Event) error {
			if ev, ok := e.(event.SystemErrorEvent); ok {
				c.Error(ev.Message, ev.Details)
			}
			return nil
		}),
		bus.Subscribe(event.TypeSystemWarning, func(e event.Event) error {
			if ev, ok := e.(event.SystemWarningEvent); ok {
				c.Warning(ev.Message, ev.Details)
			}
			return nil
		}),
		bus.Subscribe(event.TypeSystemInfo, func(e event.Event) error {
			if ev, ok := e.(event.SystemInfoEvent); ok {
				c.Info(ev.Message, ev.Details)
			}
			return nil
		}),
	}
	return ids
}

func uploadFailedMessage(ev event.UploadFailedEvent) string {
	if ev.Name != "" {
		return fmt.Sprintf("%s: %s", ev.Name, ev.Reason)
	}
	return ev.Reason
}
