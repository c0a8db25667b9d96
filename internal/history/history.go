package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/image2doc/image2doc/internal/event"
)

// Outcome classifies how a conversion ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one row in the conversions table.
type Entry struct {
	ID           string    `json:"id"`
	FileID       string    `json:"fileId"`
	FileName     string    `json:"fileName"`
	SourceType   string    `json:"sourceType"`
	TargetFormat string    `json:"targetFormat"`
	Language     string    `json:"language"`
	Outcome      Outcome   `json:"outcome"`
	Message      string    `json:"message,omitempty"`
	TextLength   int       `json:"textLength"`
	Pages        int       `json:"pages,omitempty"`
	DurationMS   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Repository wraps all SQL for the conversions table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores one finished conversion.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversions
			(id, file_id, file_name, source_type, target_format, language, outcome, message, text_length, pages, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, e.ID, e.FileID, e.FileName, e.SourceType, e.TargetFormat, e.Language, e.Outcome, e.Message, e.TextLength, e.Pages, e.DurationMS, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, file_id, file_name, source_type, target_format, language, outcome, COALESCE(message,''), text_length, pages, duration_ms, created_at
		FROM conversions ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select conversions: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.FileID, &e.FileName, &e.SourceType, &e.TargetFormat, &e.Language, &e.Outcome, &e.Message, &e.TextLength, &e.Pages, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sink is the write half of the repository, split out so the Recorder can be
// tested without Postgres.
type Sink interface {
	Insert(ctx context.Context, e Entry) error
}

// Recorder turns bus events into history rows.
type Recorder struct {
	sink Sink
	log  zerolog.Logger
	// timeout bounds each insert so a slow database never stalls the bus.
	timeout time.Duration
}

// NewRecorder builds a Recorder.
func NewRecorder(sink Sink, log zerolog.Logger) *Recorder {
	return &Recorder{sink: sink, log: log, timeout: 5 * time.Second}
}

// Bind subscribes the recorder to conversion outcomes.
func (r *Recorder) Bind(bus *event.Bus) []string {
	return []string{
		bus.Subscribe(event.TypeConversionCompleted, func(e event.Event) error {
			ev, ok := e.(event.ConversionCompletedEvent)
			if !ok {
				return nil
			}
			entry := Entry{
				ID:           uuid.NewString(),
				FileID:       ev.File.ID,
				FileName:     ev.File.Name,
				SourceType:   ev.File.ContentType,
				TargetFormat: ev.Format,
				Language:     ev.File.Language,
				Outcome:      OutcomeCompleted,
				TextLength:   ev.File.TextLength,
				Pages:        ev.File.Pages,
				DurationMS:   duration(ev.File.ConversionStartedAt, ev.File.ConversionEndedAt),
				CreatedAt:    time.Now().UTC(),
			}
			return r.record(entry)
		}),
		bus.Subscribe(event.TypeConversionFailed, func(e event.Event) error {
			ev, ok := e.(event.ConversionFailedEvent)
			if !ok {
				return nil
			}
			entry := Entry{
				ID:           uuid.NewString(),
				FileID:       ev.File.ID,
				FileName:     ev.File.Name,
				SourceType:   ev.File.ContentType,
				TargetFormat: ev.File.TargetFormat,
				Language:     ev.File.Language,
				Outcome:      OutcomeFailed,
				Message:      ev.Reason,
				DurationMS:   duration(ev.File.ConversionStartedAt, ev.File.ConversionEndedAt),
				CreatedAt:    time.Now().UTC(),
			}
			return r.record(entry)
		}),
	}
}

func (r *Recorder) record(entry Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.sink.Insert(ctx, entry); err != nil {
		r.log.Warn().Err(err).Str("file_id", entry.FileID).Msg("record conversion")
		return err
	}
	return nil
}

func duration(start, end *time.Time) int64 {
	if start == nil || end == nil {
		return 0
	}
	return end.Sub(*start).Milliseconds()
}
