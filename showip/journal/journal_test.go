package journal

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"git.unix.lgbt/diamondburned/showip/showip"
	"github.com/pkg/errors"
)

var testTime = time.Date(2021, 4, 13, 5, 35, 0, 0, time.UTC)

func fixedTime() time.Time { return testTime }

func TestStreamFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showip.log")

	events := []showip.Event{
		&showip.EventStarted{PID: 42, Interval: 1, Budget: 10},
		&showip.EventCycle{Counter: 0},
		&showip.EventCycle{Counter: 1},
		&showip.EventStopping{Cause: "stop"},
		&showip.EventStopped{Cause: "stop", Cycles: 2},
	}

	s, err := Open(path)
	if err != nil {
		t.Fatal("failed to open:", err)
	}

	for _, ev := range events {
		if err := s.Write(ev); err != nil {
			t.Fatal("failed to write:", err)
		}
	}

	if err := s.Close(); err != nil {
		t.Fatal("failed to close:", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal("second close failed:", err)
	}

	if err := s.Write(&showip.EventCycle{}); !errors.Is(err, ErrStream) {
		t.Fatalf("write after close returned %v, expected ErrStream", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	r := NewReader(f)

	for i := len(events) - 1; i >= 0; i-- {
		ev, _, err := r.Read()
		if err != nil {
			t.Fatalf("failed to read event %d: %v", i, err)
		}

		if !reflect.DeepEqual(ev, events[i]) {
			t.Errorf("event %d mismatch, got %#v, expected %#v", i, ev, events[i])
		}
	}
}

func TestStreamAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showip.log")

	for pid := 1; pid <= 2; pid++ {
		s, err := Open(path)
		if err != nil {
			t.Fatal("failed to open:", err)
		}

		s.Write(&showip.EventStarted{PID: pid})
		s.Write(&showip.EventCycle{Counter: 0})

		if pid == 1 {
			s.Write(&showip.EventStopped{Cause: "stop", Cycles: 1})
		}

		s.Close()
	}

	state, err := ReadPreviousStateFromFile(path)
	if err != nil {
		t.Fatal("failed to read previous state:", err)
	}

	if state.Started == nil || state.Started.PID != 2 {
		t.Fatalf("unexpected start record %#v", state.Started)
	}
	if state.CleanShutdown() {
		t.Fatal("second run never stopped but was reported clean")
	}
}

func TestReaderBadRecords(t *testing.T) {
	const input = `{"time":"2021-04-13T05:35:00Z","type":"started","data":{"pid":7}}
this is not JSON
{"time":"2021-04-13T05:35:01Z","type":"bogus","data":{}}
{"time":"2021-04-13T05:35:02Z","type":"cycle","data":{"counter":"zero"}}
`

	r := NewReader(strings.NewReader(input))

	for i := 0; i < 3; i++ {
		if _, _, err := r.Read(); !errors.Is(err, showip.ErrBadRecord) {
			t.Fatalf("read %d returned %v, expected ErrBadRecord", i, err)
		}
	}

	ev, at, err := r.Read()
	if err != nil {
		t.Fatal("failed to read:", err)
	}
	if started, ok := ev.(*showip.EventStarted); !ok || started.PID != 7 {
		t.Fatalf("unexpected event %#v", ev)
	}
	if !at.Equal(testTime) {
		t.Errorf("unexpected time %v", at)
	}

	state, err := ReadPreviousState(strings.NewReader(input))
	if err != nil {
		t.Fatal("failed to read previous state:", err)
	}
	if state.Started == nil || state.Started.PID != 7 {
		t.Fatalf("unexpected start record %#v", state.Started)
	}
}

func TestHumanWriter(t *testing.T) {
	tests := []struct {
		event  showip.Event
		output string
	}{
		{
			&showip.EventCycle{Counter: 3},
			"2021-04-13T05:35:00Z cycle counter=3\n",
		},
		{
			&showip.EventStopped{Cause: "stop", Cycles: 2},
			"2021-04-13T05:35:00Z stopped cause=\"stop\" cycles=2 exit_code=0\n",
		},
		{
			&showip.EventChildNotified{},
			"2021-04-13T05:35:00Z child notified\n",
		},
	}

	for _, test := range tests {
		t.Run(test.event.Type(), func(t *testing.T) {
			var buf bytes.Buffer
			w := HumanWriter{&buf, fixedTime}

			if err := w.Write(test.event); err != nil {
				t.Fatal("failed to write:", err)
			}

			if got := buf.String(); got != test.output {
				t.Errorf("got %q, expected %q", got, test.output)
			}
		})
	}
}

type brokenWriter struct{ writes int }

func (w *brokenWriter) Write(b []byte) (int, error) {
	w.writes++
	return 0, errors.New("write /dev/full: no space left on device")
}

func TestStreamBroken(t *testing.T) {
	w := &brokenWriter{}
	s := NewStream(w, JSON)

	for i := 0; i < 2; i++ {
		err := s.Write(&showip.EventCycle{Counter: i})
		if !errors.Is(err, ErrStream) {
			t.Fatalf("write %d returned %v, expected ErrStream", i, err)
		}
		if !strings.Contains(err.Error(), "writer: ") {
			t.Fatalf("write %d error %q does not name the stream", i, err)
		}
	}

	if w.writes == 0 {
		t.Fatal("stream never flushed")
	}
}

type closeCounter struct {
	bytes.Buffer
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestNewStreamDoesNotClose(t *testing.T) {
	w := &closeCounter{}
	s := NewStream(w, Human)

	if err := s.Write(&showip.EventCycle{Counter: 1}); err != nil {
		t.Fatal("failed to write:", err)
	}

	// Every write is flushed right away.
	if !strings.Contains(w.String(), "cycle counter=1") {
		t.Fatalf("unexpected output %q", w.String())
	}

	s.Close()

	if w.closes != 0 {
		t.Fatal("stream closed the writer it does not own")
	}
}

func TestReadPreviousStateMissingFile(t *testing.T) {
	state, err := ReadPreviousStateFromFile(filepath.Join(t.TempDir(), "showip.log"))
	if err != nil {
		t.Fatal("missing log file is an error:", err)
	}
	if state.Started != nil || !state.CleanShutdown() {
		t.Fatalf("unexpected state %#v", state)
	}
}

func TestReaderRecordTooLong(t *testing.T) {
	input := `{"time":"2021-04-13T05:35:00Z","type":"started","data":{"pid":7}}` + "\n" +
		strings.Repeat("x", 2*MaxRecordSize) + "\n"

	_, _, err := NewReader(strings.NewReader(input)).Read()
	if err == nil || errors.Is(err, showip.ErrBadRecord) {
		t.Fatalf("expected a scan error, got %v", err)
	}
}
