package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

type EventType string

const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is one progress update. Counters are cumulative.
type Event struct {
	Type      EventType `json:"type"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	ID        string    `json:"id,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Summary is the final tally of a run.
type Summary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// SaveFunc stores one legacy snippet.
type SaveFunc func(ctx context.Context, s *LegacySnippet) error

// EmitFunc receives progress events in order. It is called from the
// goroutine running Run.
type EmitFunc func(Event)

// Runner imports ids one after another with a fixed pause between them.
// There is no retry and no resume: each id is tried once, and a failure is
// counted and reported without stopping the loop.
type Runner struct {
	client *Client
	delay  time.Duration
	logger *slog.Logger
}

func NewRunner(client *Client, delay time.Duration, logger *slog.Logger) *Runner {
	return &Runner{client: client, delay: delay, logger: logger}
}

// Run performs one import. It returns an error only when the id list cannot
// be fetched or ctx is cancelled; per-id failures are in the summary.
func (r *Runner) Run(ctx context.Context, src Source, save SaveFunc, emit EmitFunc) (Summary, error) {
	var sum Summary

	ids, err := r.client.ListIDs(ctx, src)
	if err != nil {
		emit(Event{Type: EventError, Message: err.Error()})
		return sum, err
	}
	sum.Total = len(ids)
	emit(Event{Type: EventStart, Total: sum.Total})

	// One token per id; the first one is free, the rest wait r.delay.
	limit := rate.Inf
	if r.delay > 0 {
		limit = rate.Every(r.delay)
	}
	pace := rate.NewLimiter(limit, 1)

	for _, id := range ids {
		if err := pace.Wait(ctx); err != nil {
			r.logger.Warn("import cancelled", slog.Int("processed", sum.Processed), slog.Int("total", sum.Total))
			return sum, fmt.Errorf("importer: %w", err)
		}

		err := r.importOne(ctx, src, id, save)
		sum.Processed++
		ev := Event{Type: EventProgress, ID: id}
		if err != nil {
			sum.Failed++
			ev.Type = EventError
			ev.Message = err.Error()
			r.logger.Warn("legacy snippet import failed", slog.String("legacy_id", id), slog.String("error", err.Error()))
		} else {
			sum.Succeeded++
		}
		emit(sum.event(ev))
	}

	emit(sum.event(Event{Type: EventDone}))
	return sum, nil
}

func (r *Runner) importOne(ctx context.Context, src Source, id string, save SaveFunc) error {
	s, err := r.client.Fetch(ctx, src, id)
	if err != nil {
		return err
	}
	if err := save(ctx, s); err != nil {
		return fmt.Errorf("saving snippet %s: %w", id, err)
	}
	return nil
}

func (s Summary) event(ev Event) Event {
	ev.Total = s.Total
	ev.Processed = s.Processed
	ev.Succeeded = s.Succeeded
	ev.Failed = s.Failed
	return ev
}
