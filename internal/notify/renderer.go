package notify

import "github.com/rs/zerolog"

// LogRenderer writes notifications to the structured log. It is the renderer
// for headless deployments where no UI is attached.
type LogRenderer struct {
	log zerolog.Logger
}

// NewLogRenderer builds a LogRenderer.
func NewLogRenderer(log zerolog.Logger) *LogRenderer {
	return &LogRenderer{log: log}
}

// Render logs the notification at a level matching its severity.
func (r *LogRenderer) Render(n Notification) {
	var ev *zerolog.Event
	switch n.Level {
	case LevelError:
		ev = r.log.Error()
	case LevelWarning:
		ev = r.log.Warn()
	default:
		ev = r.log.Info()
	}
	ev.Str("notification_id", n.ID).Str("title", n.Title).Msg(n.Message)
}

// Dismiss is a no-op; log lines cannot be retracted.
func (r *LogRenderer) Dismiss(id string) {}
