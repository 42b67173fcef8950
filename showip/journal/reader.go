package journal

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"time"

	"git.unix.lgbt/diamondburned/showip/showip"
	"git.unix.lgbt/diamondburned/showip/showip/journal/backwardio"
	"github.com/pkg/errors"
)

// MaxRecordSize is the longest line that Reader accepts. No record that the
// daemon writes comes close.
const MaxRecordSize = 64 << 10

// rawEvent is Event as read back, with the data left for later.
type rawEvent struct {
	Time time.Time       `json:"time"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Reader reads a JSON log stream from its newest record to its oldest.
type Reader struct {
	s *backwardio.Scanner
}

var _ showip.JournalReader = (*Reader)(nil)

// NewReader creates a new reader over a log file written with Writer.
func NewReader(r io.ReadSeeker) *Reader {
	s := backwardio.NewScanner(r)
	s.Buffer(0, MaxRecordSize)

	return &Reader{s}
}

// Read returns the record before the previously returned one. Blank lines are
// skipped. A line that isn't a known record gives an error wrapping
// showip.ErrBadRecord, after which reading may go on. io.EOF is returned once
// the first record was read.
func (r *Reader) Read() (showip.Event, time.Time, error) {
	for {
		line, err := r.s.ReadUntil('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, time.Time{}, io.EOF
			}
			return nil, time.Time{}, errors.Wrap(err, "failed to scan log")
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		return decodeRecord(line)
	}
}

func decodeRecord(line []byte) (showip.Event, time.Time, error) {
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, time.Time{}, errors.Wrapf(showip.ErrBadRecord, "not JSON: %v", err)
	}

	ev := showip.NewEvent(raw.Type)
	if ev == nil {
		return nil, time.Time{}, errors.Wrapf(showip.ErrBadRecord, "unknown record type %q", raw.Type)
	}

	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, ev); err != nil {
			return nil, time.Time{}, errors.Wrapf(showip.ErrBadRecord, "%s: bad data: %v", raw.Type, err)
		}
	}

	return ev, raw.Time, nil
}

// ReadPreviousStateFromFile reads what the last run left in the log file at
// path. A file that doesn't exist yet holds no previous run.
func ReadPreviousStateFromFile(path string) (*showip.PreviousState, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &showip.PreviousState{}, nil
		}
		return nil, errors.Wrap(err, "failed to open log file")
	}
	defer f.Close()

	return ReadPreviousState(f)
}

// ReadPreviousState reads what the last run left in r.
func ReadPreviousState(r io.ReadSeeker) (*showip.PreviousState, error) {
	return showip.ReadPreviousState(NewReader(r))
}
