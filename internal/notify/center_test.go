package notify

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/image2doc/image2doc/internal/event"
	"github.com/image2doc/image2doc/internal/model"
)

type recordingRenderer struct {
	mu        sync.Mutex
	rendered  []string
	dismissed []string
}

func (r *recordingRenderer) Render(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rendered = append(r.rendered, n.Message)
}

func (r *recordingRenderer) Dismiss(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismissed = append(r.dismissed, id)
}

func (r *recordingRenderer) dismissCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dismissed)
}

func newTestCenter() (*Center, *recordingRenderer) {
	r := &recordingRenderer{}
	return NewCenter(r, zerolog.Nop()), r
}

func TestShowAndActive(t *testing.T) {
	c, r := newTestCenter()
	id := c.Success("Conversion complete", "converted", Persistent())

	active := c.Active()
	require.Len(t, active, 1)
	assert.Equal(t, id, active[0].ID)
	assert.Equal(t, LevelSuccess, active[0].Level)
	assert.Equal(t, "Conversion complete", active[0].Title)
	assert.Equal(t, []string{"converted"}, r.rendered)
}

func TestCapacityEvictsOldest(t *testing.T) {
	c, r := newTestCenter()
	var first string
	for i := 0; i < MaxActive; i++ {
		id := c.Info("note", fmt.Sprintf("n%d", i), Persistent())
		if i == 0 {
			first = id
		}
	}
	c.Info("note", "overflow", Persistent())

	active := c.Active()
	require.Len(t, active, MaxActive)
	assert.Equal(t, "n1", active[0].Message)
	assert.Equal(t, "overflow", active[MaxActive-1].Message)
	assert.Equal(t, []string{first}, r.dismissed)
}

func TestAutoDismiss(t *testing.T) {
	c, _ := newTestCenter()
	c.Error("error", "gone soon", WithDuration(20*time.Millisecond))

	require.Eventually(t, func() bool {
		return len(c.Active()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRemoveIsIdempotent(t *testing.T) {
	c, r := newTestCenter()
	id := c.Warning("warning", "careful", Persistent())

	c.Remove(id)
	c.Remove(id)
	c.Remove("never-existed")

	assert.Empty(t, c.Active())
	assert.Equal(t, 1, r.dismissCount())
}

func TestHandleAction(t *testing.T) {
	c, _ := newTestCenter()
	ran := false
	id := c.Success("Conversion complete", "done", Persistent(), WithAction("open", "Open", func() { ran = true }))

	require.NoError(t, c.HandleAction(id, "open"))
	assert.True(t, ran)
	assert.Empty(t, c.Active(), "handled notification should be dismissed")

	require.Error(t, c.HandleAction(id, "open"))
	require.Error(t, c.HandleAction("nope", "open"))
}

func TestHandleActionContainsPanic(t *testing.T) {
	c, _ := newTestCenter()
	id := c.Error("error", "boom", Persistent(), WithAction("retry", "Retry", func() { panic("kaboom") }))

	err := c.HandleAction(id, "retry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Empty(t, c.Active())
}

func TestClear(t *testing.T) {
	c, r := newTestCenter()
	c.Info("note", "a", Persistent())
	c.Info("note", "b", Persistent())

	c.Clear()
	assert.Empty(t, c.Active())
	assert.Equal(t, 2, r.dismissCount())
}

func TestBind(t *testing.T) {
	c, _ := newTestCenter()
	bus := event.NewBus()
	ids := c.Bind(bus)
	require.NotEmpty(t, ids)

	file := model.FileRecord{ID: "f1", Name: "scan.png"}
	bus.Publish(event.NewConversionCompletedEvent(file, "pdf"))
	bus.Publish(event.NewConversionFailedEvent(file, "no text detected in image"))
	bus.Publish(event.NewSystemWarningEvent("language list unavailable", "using defaults"))

	active := c.Active()
	require.Len(t, active, 3)
	assert.Equal(t, LevelSuccess, active[0].Level)
	assert.Equal(t, "Conversion complete", active[0].Title)
	assert.Contains(t, active[0].Message, "PDF")
	assert.Equal(t, LevelError, active[1].Level)
	assert.Equal(t, "Conversion failed", active[1].Title)
	assert.Equal(t, LevelWarning, active[2].Level)
	assert.Equal(t, "language list unavailable", active[2].Title)

	for _, id := range ids {
		assert.True(t, bus.Unsubscribe(id))
	}
	bus.Publish(event.NewSystemInfoEvent("ignored", ""))
	assert.Len(t, c.Active(), 3)
}
