// Package notify implements the notification center. It holds a bounded set
// of active notifications, auto-dismisses them after a timeout, and feeds
// itself from the event bus so producers never talk to it directly.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Level classifies a notification for presentation.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

const (
	// MaxActive bounds how many notifications are visible at once. Adding
	// beyond the cap evicts the oldest.
	MaxActive = 5
	// DefaultDuration is the auto-dismiss timeout.
	DefaultDuration = 5 * time.Second
)

// Action is a button attached to a notification.
type Action struct {
	ID    string
	Label string
	fn    func()
}

// Notification is one visible message. Title is the short headline; Message
// carries the detail and may be empty.
type Notification struct {
	ID      string
	Level   Level
	Title   string
	Message string
	// Duration zero means the notification stays until removed.
	Duration  time.Duration
	Actions   []Action
	CreatedAt time.Time
}

// Option customizes a notification before it is shown.
type Option func(*Notification)

// WithDuration overrides the auto-dismiss timeout.
func WithDuration(d time.Duration) Option {
	return func(n *Notification) { n.Duration = d }
}

// Persistent disables auto-dismissal.
func Persistent() Option {
	return func(n *Notification) { n.Duration = 0 }
}

// WithAction attaches a button. fn runs when HandleAction is called with the
// action's ID.
func WithAction(id, label string, fn func()) Option {
	return func(n *Notification) {
		n.Actions = append(n.Actions, Action{ID: id, Label: label, fn: fn})
	}
}

// Renderer receives display callbacks. Implementations must be fast; the
// center calls them under its lock.
type Renderer interface {
	Render(n Notification)
	Dismiss(id string)
}

// Center manages active notifications.
type Center struct {
	mu       sync.Mutex
	active   []Notification
	timers   map[string]*time.Timer
	renderer Renderer
	log      zerolog.Logger
}

// NewCenter builds a Center. renderer may be nil for headless use.
func NewCenter(renderer Renderer, log zerolog.Logger) *Center {
	return &Center{
		timers:   make(map[string]*time.Timer),
		renderer: renderer,
		log:      log,
	}
}

// Show adds a notification and returns its ID. When the cap is reached the
// oldest active notification is evicted first.
func (c *Center) Show(level Level, title, message string, opts ...Option) string {
	n := Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Title:     title,
		Message:   message,
		Duration:  DefaultDuration,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&n)
	}

	c.mu.Lock()
	for len(c.active) >= MaxActive {
		c.evictLocked(c.active[0].ID)
	}
	c.active = append(c.active, n)
	if n.Duration > 0 {
		id := n.ID
		c.timers[id] = time.AfterFunc(n.Duration, func() { c.Remove(id) })
	}
	if c.renderer != nil {
		c.renderer.Render(n)
	}
	c.mu.Unlock()

	c.log.Debug().Str("level", string(level)).Str("id", n.ID).Str("title", title).Msg(message)
	return n.ID
}

// Success shows a success notification.
func (c *Center) Success(title, message string, opts ...Option) string {
	return c.Show(LevelSuccess, title, message, opts...)
}

// Error shows an error notification.
func (c *Center) Error(title, message string, opts ...Option) string {
	return c.Show(LevelError, title, message, opts...)
}

// Warning shows a warning notification.
func (c *Center) Warning(title, message string, opts ...Option) string {
	return c.Show(LevelWarning, title, message, opts...)
}

// Info shows an informational notification.
func (c *Center) Info(title, message string, opts ...Option) string {
	return c.Show(LevelInfo, title, message, opts...)
}

// Remove dismisses a notification. Removing an unknown or already-dismissed
// ID is a no-op.
func (c *Center) Remove(id string) {
	c.mu.Lock()
	c.evictLocked(id)
	c.mu.Unlock()
}

// evictLocked removes one notification and stops its timer. Caller holds mu.
func (c *Center) evictLocked(id string) {
	for i, n := range c.active {
		if n.ID == id {
			c.active = append(c.active[:i], c.active[i+1:]...)
			if t, ok := c.timers[id]; ok {
				t.Stop()
				delete(c.timers, id)
			}
			if c.renderer != nil {
				c.renderer.Dismiss(id)
			}
			return
		}
	}
}

// HandleAction runs the action's callback and dismisses the notification.
// A panicking callback never takes the center down.
func (c *Center) HandleAction(notificationID, actionID string) (err error) {
	c.mu.Lock()
	var fn func()
	for _, n := range c.active {
		if n.ID != notificationID {
			continue
		}
		for _, a := range n.Actions {
			if a.ID == actionID {
				fn = a.fn
				break
			}
		}
		break
	}
	c.mu.Unlock()

	if fn == nil {
		return fmt.Errorf("no action %q on notification %q", actionID, notificationID)
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("action", actionID).Msg("notification action panicked")
			err = fmt.Errorf("action %q panicked: %v", actionID, r)
		}
		c.Remove(notificationID)
	}()
	fn()
	return nil
}

// Active returns the visible notifications, oldest first.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.active))
	copy(out, c.active)
	return out
}

// Clear dismisses everything.
func (c *Center) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.active {
		if t, ok := c.timers[n.ID]; ok {
			t.Stop()
			delete(c.timers, n.ID)
		}
		if c.renderer != nil {
			c.renderer.Dismiss(n.ID)
		}
	}
	c.active = nil
}
