package backwardio

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

// readAll reads every token of s until io.EOF.
func readAll(t *testing.T, s *Scanner, delim byte) []string {
	t.Helper()

	var tokens []string
	for {
		b, err := s.ReadUntil(delim)
		if errors.Is(err, io.EOF) {
			return tokens
		}
		if err != nil {
			t.Fatal("failed to read:", err)
		}
		tokens = append(tokens, string(b))
	}
}

func TestScannerTokens(t *testing.T) {
	tests := map[string]struct {
		input  string
		expect []string
	}{
		"empty":          {"", []string{""}},
		"one record":     {"started\n", []string{"", "started"}},
		"records":        {"a\nbb\nccc\n", []string{"", "ccc", "bb", "a"}},
		"partial tail":   {"a\nbb\ncc", []string{"cc", "bb", "a"}},
		"leading blank":  {"\na\n", []string{"", "a", ""}},
		"blank in a row": {"a\n\n\nb\n", []string{"", "b", "", "", "a"}},
	}

	// A chunk of 1 splits every token; 3 splits some; the default holds all.
	for _, chunk := range []int{1, 3, 0} {
		for name, test := range tests {
			s := NewScanner(strings.NewReader(test.input))
			s.Buffer(chunk, 0)

			got := readAll(t, s, '\n')
			if strings.Join(got, "|") != strings.Join(test.expect, "|") {
				t.Errorf("%s (chunk %d): expected %q, got %q", name, chunk, test.expect, got)
			}
		}
	}
}

func TestScannerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showip.log")

	var lines []string
	for i := 0; i < 500; i++ {
		lines = append(lines, strings.Repeat(string(rune('a'+i%26)), i%40+1))
	}

	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600); err != nil {
		t.Fatal("failed to write log:", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal("failed to open log:", err)
	}
	defer f.Close()

	s := NewScanner(f)
	s.Buffer(64, 0)

	got := readAll(t, s, '\n')
	if len(got) != len(lines)+1 || got[0] != "" {
		t.Fatalf("expected %d tokens after an empty one, got %d", len(lines), len(got))
	}

	for i, line := range got[1:] {
		if expect := lines[len(lines)-1-i]; line != expect {
			t.Fatalf("token %d: expected %q, got %q", i, expect, line)
		}
	}
}

func TestScannerTooLong(t *testing.T) {
	s := NewScanner(strings.NewReader("short\n" + strings.Repeat("x", 16)))
	s.Buffer(4, 8)

	if _, err := s.ReadUntil('\n'); !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

type brokenFile struct {
	seekEnd   error
	seekStart error
	read      error
}

func (f brokenFile) Read(b []byte) (int, error) {
	if f.read != nil {
		return 0, f.read
	}
	return len(b), nil
}

func (f brokenFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekEnd:
		return 16, f.seekEnd
	case io.SeekStart:
		return offset, f.seekStart
	default:
		return 0, errors.New("unexpected whence")
	}
}

func TestScannerErrors(t *testing.T) {
	errDisk := errors.New("input/output error")

	tests := map[string]struct {
		file   brokenFile
		expect string
	}{
		"seek end":   {brokenFile{seekEnd: errDisk}, "failed to find end of file"},
		"seek start": {brokenFile{seekStart: errDisk}, "failed to seek"},
		"read":       {brokenFile{read: errDisk}, "failed to read"},
	}

	for name, test := range tests {
		_, err := NewScanner(test.file).ReadUntil('\n')
		if !errors.Is(err, errDisk) {
			t.Errorf("%s: expected the disk error, got %v", name, err)
			continue
		}
		if !strings.Contains(err.Error(), test.expect) {
			t.Errorf("%s: expected %q in %q", name, test.expect, err)
		}
	}
}
