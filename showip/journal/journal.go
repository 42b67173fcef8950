// Package journal provides the log stream of the daemon: implementations of
// showip's Journaler that write progress records into a file or into stdout,
// and a reader that reads them back from the newest to the oldest.
package journal

import (
	"bufio"
	"io"
	"os"
	"sync"

	"git.unix.lgbt/diamondburned/showip/showip"
	"github.com/pkg/errors"
)

// ErrStream is wrapped by every error that Stream returns. It means the log
// stream can no longer be written to.
var ErrStream = errors.New("log stream failure")

// Format selects the encoding of a Stream.
type Format uint8

const (
	// JSON writes line-delimited JSON that Reader can read back.
	JSON Format = iota
	// Human writes lines meant to be read by a person.
	Human
)

// Stream is a buffered journaler that flushes after every event, so that a
// record returned as written has reached the underlying file. Once a write
// fails, every later write fails as well.
type Stream struct {
	mutex  sync.Mutex
	enc    showip.Journaler
	buf    *bufio.Writer
	closer io.Closer
	closed bool
	id     string
}

var _ showip.Journaler = (*Stream)(nil)

// NewStream creates a new stream writing into w. Closing the stream does not
// close w.
func NewStream(w io.Writer, f Format) *Stream {
	return newStream(w, nil, f, "writer")
}

// Stdout creates a human-readable stream into the process' standard output.
func Stdout() *Stream {
	return newStream(os.Stdout, nil, Human, "stdout")
}

// Open opens the file at path for appending and returns a JSON stream into it.
// The file is created if it doesn't exist.
func Open(path string) (*Stream, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE|os.O_SYNC, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open log file")
	}

	return newStream(f, f, JSON, "file:"+path), nil
}

func newStream(w io.Writer, c io.Closer, f Format, id string) *Stream {
	buf := bufio.NewWriter(w)

	var enc showip.Journaler
	switch f {
	case Human:
		enc = NewHumanWriter(buf)
	default:
		enc = NewWriter(buf)
	}

	return &Stream{
		enc:    enc,
		buf:    buf,
		closer: c,
		id:     id,
	}
}

// Write encodes the event and flushes it.
func (s *Stream) Write(ev showip.Event) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return errors.Wrap(ErrStream, "stream closed")
	}

	if err := s.enc.Write(ev); err != nil {
		return errors.Wrapf(ErrStream, "%s: %v", s.id, err)
	}

	if err := s.buf.Flush(); err != nil {
		return errors.Wrapf(ErrStream, "%s: failed to flush: %v", s.id, err)
	}

	return nil
}

// Close flushes and closes the stream. Calling Close more than once is a
// no-op.
func (s *Stream) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.buf.Flush()

	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	if err != nil {
		return errors.Wrap(err, "failed to close log stream")
	}

	return nil
}
