package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names a lifecycle milestone.
type Stage string

// Supported stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageSourceStart Stage = "SOURCE_START"
	StageSourceDone  Stage = "SOURCE_DONE"
)

// Event is one milestone of an orchestrated run.
type Event struct {
	RunID   [16]byte
	TS      time.Time
	Stage   Stage
	Trigger string
	// Source is set on source stages.
	Source   string
	Outcome  string
	Rooms    int
	Slots    int
	Fallback bool
	Dur      time.Duration
	// Note carries the error text of failed sources and runs.
	Note string
}

// Validate rejects events sinks cannot attribute.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageSourceStart:
		if e.Source == "" {
			return errors.New("source start requires source")
		}
	case StageSourceDone:
		if e.Source == "" {
			return errors.New("source done requires source")
		}
		if e.Outcome == "" {
			return errors.New("source done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID returns the run ID as a uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// RunIDBytes parses a run ID string into the Event form. Unparseable IDs yield the zero value.
func RunIDBytes(id string) [16]byte {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}
	}
	return parsed
}
