package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/events"
)

// RunCompleted is the payload published once per finished run.
type RunCompleted struct {
	RunID      string         `json:"run_id"`
	Trigger    string         `json:"trigger"`
	Result     string         `json:"result"`
	FinishedAt time.Time      `json:"finished_at"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Sources    []SourceResult `json:"sources"`
}

// SourceResult is one source's outcome within RunCompleted.
type SourceResult struct {
	Source   string `json:"source"`
	Outcome  string `json:"outcome"`
	Rooms    int    `json:"rooms"`
	Slots    int    `json:"slots"`
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PublisherSink collects source outcomes per run and publishes RunCompleted
// when the run ends.
type PublisherSink struct {
	publisher availability.Publisher
	topic     string

	mu      sync.Mutex
	pending map[[16]byte][]SourceResult
}

// NewPublisherSink publishes to topic through publisher.
func NewPublisherSink(publisher availability.Publisher, topic string) *PublisherSink {
	return &PublisherSink{publisher: publisher, topic: topic, pending: map[[16]byte][]SourceResult{}}
}

// Consume accumulates source results and publishes finished runs.
func (s *PublisherSink) Consume(ctx context.Context, batch []events.Event) error {
	var firstErr error
	for _, evt := range batch {
		switch evt.Stage {
		case events.StageSourceDone:
			s.mu.Lock()
			s.pending[evt.RunID] = append(s.pending[evt.RunID], SourceResult{
				Source:   evt.Source,
				Outcome:  evt.Outcome,
				Rooms:    evt.Rooms,
				Slots:    evt.Slots,
				Fallback: evt.Fallback,
				Error:    evt.Note,
			})
			s.mu.Unlock()
		case events.StageRunDone, events.StageRunError:
			if err := s.publish(ctx, evt); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *PublisherSink) publish(ctx context.Context, evt events.Event) error {
	s.mu.Lock()
	results := s.pending[evt.RunID]
	delete(s.pending, evt.RunID)
	s.mu.Unlock()

	payload := RunCompleted{
		RunID:      evt.RunUUID().String(),
		Trigger:    evt.Trigger,
		Result:     "success",
		FinishedAt: evt.TS.UTC(),
		DurationMs: evt.Dur.Milliseconds(),
		Sources:    append([]SourceResult{}, results...),
	}
	if evt.Stage == events.StageRunError {
		payload.Result = "error"
		payload.Error = evt.Note
	}
	if _, err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
		return fmt.Errorf("publish run %s: %w", payload.RunID, err)
	}
	return nil
}

// Close is a no-op; unfinished runs are dropped.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
