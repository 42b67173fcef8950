package showip

import (
	"io"
	"time"

	"github.com/pkg/errors"
)

// Journaler describes an event logger. The log stream of the daemon is a
// Journaler.
type Journaler interface {
	Write(Event) error
}

// JournalReader describes a reader that reads journal events from the newest
// to the oldest. It returns io.EOF once there is nothing left.
type JournalReader interface {
	Read() (Event, time.Time, error)
}

// ErrBadRecord is returned by a JournalReader for a record that exists but
// cannot be decoded. Readers may continue after it.
var ErrBadRecord = errors.New("bad journal record")

// PreviousState is what is known about the last run that wrote into the same
// journal.
type PreviousState struct {
	Started   *EventStarted
	StartedAt time.Time
	Stopped   *EventStopped
	StoppedAt time.Time
}

// CleanShutdown returns true if the previous run either never started or wrote
// its final status record.
func (s *PreviousState) CleanShutdown() bool {
	return s.Started == nil || s.Stopped != nil
}

// ReadPreviousState reads the journal backwards until it finds the start of
// the last run. Records that fail to decode are skipped.
func ReadPreviousState(r JournalReader) (*PreviousState, error) {
	var state PreviousState

	for {
		ev, t, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return &state, nil
			}
			if errors.Is(err, ErrBadRecord) {
				continue
			}
			return nil, errors.Wrap(err, "failed to read journal")
		}

		switch ev := ev.(type) {
		case *EventStopped:
			// Only the newest stop counts; anything older belongs to an older
			// run.
			if state.Stopped == nil {
				state.Stopped = ev
				state.StoppedAt = t
			}
		case *EventStarted:
			state.Started = ev
			state.StartedAt = t
			return &state, nil
		}
	}
}
