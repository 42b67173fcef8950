package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"git.unix.lgbt/diamondburned/showip/showip"
	"github.com/pkg/errors"
)

// Event describes the JSON structure of an event to be written.
type Event struct {
	Time time.Time    `json:"time"`
	Type string       `json:"type"`
	Data showip.Event `json:"data"`
}

// Writer is a simple journaler that writes line-delimited JSON events into the
// writer.
type Writer struct {
	w   io.Writer
	now func() time.Time
}

var _ showip.Journaler = (*Writer)(nil)

// NewWriter creates a new journal writer.
func NewWriter(w io.Writer) Writer {
	return Writer{w, time.Now}
}

// Write writes the given event into the writer. Each event is written using a
// single Write call.
func (l Writer) Write(ev showip.Event) error {
	evJSON := Event{
		Time: l.now(),
		Type: ev.Type(),
		Data: ev,
	}

	buf := bytes.Buffer{}
	buf.Grow(256)

	// Encode terminates the line.
	if err := json.NewEncoder(&buf).Encode(evJSON); err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	if _, err := l.w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write event")
	}

	return nil
}

// HumanWriter writes one human-readable line per event:
//
//	2021-04-13T05:35:00Z cycle counter=3
type HumanWriter struct {
	w   io.Writer
	now func() time.Time
}

var _ showip.Journaler = (*HumanWriter)(nil)

// NewHumanWriter creates a new human-readable journal writer.
func NewHumanWriter(w io.Writer) HumanWriter {
	return HumanWriter{w, time.Now}
}

// Write writes the given event into the writer.
func (l HumanWriter) Write(ev showip.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return errors.Wrap(err, "failed to flatten event")
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := bytes.Buffer{}
	buf.Grow(128)

	buf.WriteString(l.now().Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.WriteString(ev.Type())

	for _, k := range keys {
		fmt.Fprintf(&buf, " %s=%s", k, fields[k])
	}

	buf.WriteByte('\n')

	if _, err := l.w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write event")
	}

	return nil
}
