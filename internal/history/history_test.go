package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/image2doc/image2doc/internal/event"
	"github.com/image2doc/image2doc/internal/model"
)

type memorySink struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (s *memorySink) Insert(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *memorySink) all() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func TestRecorderRecordsOutcomes(t *testing.T) {
	sink := &memorySink{}
	bus := event.NewBus()
	NewRecorder(sink, zerolog.Nop()).Bind(bus)

	started := time.Now().UTC()
	ended := started.Add(1500 * time.Millisecond)
	file := model.FileRecord{
		ID: "f1", Name: "scan.png", ContentType: "image/png",
		Language: "eng", TextLength: 120, Pages: 2,
		ConversionStartedAt: &started, ConversionEndedAt: &ended,
	}
	bus.Publish(event.NewConversionCompletedEvent(file, "pdf"))

	failed := model.FileRecord{ID: "f2", Name: "blank.png", ContentType: "image/png", TargetFormat: "docx", Language: "eng"}
	bus.Publish(event.NewConversionFailedEvent(failed, "no text detected in image"))

	entries := sink.all()
	require.Len(t, entries, 2)

	assert.Equal(t, OutcomeCompleted, entries[0].Outcome)
	assert.Equal(t, "pdf", entries[0].TargetFormat)
	assert.Equal(t, int64(1500), entries[0].DurationMS)
	assert.Equal(t, 120, entries[0].TextLength)

	assert.Equal(t, OutcomeFailed, entries[1].Outcome)
	assert.Equal(t, "docx", entries[1].TargetFormat)
	assert.Equal(t, "no text detected in image", entries[1].Message)
	assert.Equal(t, int64(0), entries[1].DurationMS)
}

func TestRecorderSurfacesSinkErrors(t *testing.T) {
	sink := &memorySink{err: errors.New("connection refused")}
	bus := event.NewBus()
	NewRecorder(sink, zerolog.Nop()).Bind(bus)

	errs := bus.Publish(event.NewConversionCompletedEvent(model.FileRecord{ID: "f1"}, "pdf"))
	require.Len(t, errs, 1)
}
