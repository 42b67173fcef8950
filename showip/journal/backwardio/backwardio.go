// Package backwardio implements a buffered scanner that scans an
// io.ReadSeeker backwards, one delimited token at a time.
package backwardio

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

const defaultChunk = 4096

// Scanner reads delimited tokens starting from the end of its reader.
type Scanner struct {
	r     io.ReadSeeker
	buf   []byte // unconsumed bytes
	off   int64  // offset of buf[0] in r
	chunk int
	max   int

	started bool
	done    bool
}

// NewScanner creates a new backwards scanner.
func NewScanner(r io.ReadSeeker) *Scanner {
	return &Scanner{
		r:     r,
		chunk: defaultChunk,
		max:   bufio.MaxScanTokenSize,
	}
}

// Buffer sets the size of each read and the maximum token size. Values of 0
// or less keep the defaults. It must be called before the first ReadUntil.
func (s *Scanner) Buffer(chunk, max int) {
	if chunk > 0 {
		s.chunk = chunk
	}
	if max > 0 {
		s.max = max
	}
}

// ReadUntil returns the token that precedes the last returned one, without the
// delimiter. The first token is whatever follows the last delimiter in the
// reader, which is empty for a reader ending with a delimiter. io.EOF is
// returned once the start of the reader was reached. The returned slice is
// only valid until the next call.
func (s *Scanner) ReadUntil(delim byte) ([]byte, error) {
	if !s.started {
		end, err := s.r.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, errors.Wrap(err, "failed to find end of file")
		}

		s.off = end
		s.started = true
	}

	for {
		if i := bytes.LastIndexByte(s.buf, delim); i >= 0 {
			tok := s.buf[i+1:]
			s.buf = s.buf[:i]
			return tok, nil
		}

		if s.off == 0 {
			if s.done {
				return nil, io.EOF
			}

			s.done = true
			tok := s.buf
			s.buf = nil
			return tok, nil
		}

		if len(s.buf) >= s.max {
			return nil, bufio.ErrTooLong
		}

		if err := s.fill(); err != nil {
			return nil, err
		}
	}
}

// fill prepends the chunk that precedes buf.
func (s *Scanner) fill() error {
	n := int64(s.chunk)
	if n > s.off {
		n = s.off
	}

	off := s.off - n

	if _, err := s.r.Seek(off, io.SeekStart); err != nil {
		return errors.Wrap(err, "failed to seek")
	}

	buf := make([]byte, int(n)+len(s.buf))
	if _, err := io.ReadFull(s.r, buf[:n]); err != nil {
		return errors.Wrap(err, "failed to read")
	}
	copy(buf[n:], s.buf)

	s.buf = buf
	s.off = off
	return nil
}
