// Package config implements the configuration store of the daemon. The
// configuration file holds a single positive integer: the number of seconds
// to wait between two cycles.
package config

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned if the configuration file cannot be opened.
	ErrNotFound = errors.New("configuration file not found")
	// ErrParse is returned if the configuration file does not start with a
	// positive integer.
	ErrParse = errors.New("invalid configuration")
)

// DefaultInterval is the loop interval in seconds used until a configuration
// file was loaded successfully.
const DefaultInterval = 1

// MaxInterval is the longest loop interval in seconds that still fits into a
// time.Duration.
const MaxInterval = math.MaxInt64 / int64(time.Second)

// Config is a parsed configuration file.
type Config struct {
	// Interval is the loop interval in seconds. It is always positive.
	Interval int
}

// Default returns the configuration used when there is no file.
func Default() Config {
	return Config{Interval: DefaultInterval}
}

// Load loads the configuration file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(ErrNotFound, "%v", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, errors.Wrap(err, path)
	}

	return cfg, nil
}

// Parse parses the first whitespace-delimited token of r as the loop
// interval. Anything after the first token is ignored.
func Parse(r io.Reader) (Config, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Config{}, errors.Wrap(err, "failed to read configuration")
		}
		return Config{}, errors.Wrap(ErrParse, "empty file")
	}

	tok := scanner.Text()

	interval, err := strconv.Atoi(tok)
	if err != nil {
		return Config{}, errors.Wrapf(ErrParse, "interval %q is not an integer", tok)
	}

	if interval <= 0 {
		return Config{}, errors.Wrapf(ErrParse, "interval %d is not positive", interval)
	}

	if int64(interval) > MaxInterval {
		return Config{}, errors.Wrapf(ErrParse, "interval %d is longer than %d seconds", interval, MaxInterval)
	}

	return Config{Interval: interval}, nil
}

// Store holds the configuration currently in effect. It is safe to use from
// multiple goroutines, although the daemon only reads and reloads it from the
// control loop.
type Store struct {
	path     string
	interval atomic.Int64
}

// NewStore creates a store for the file at path that starts out with the
// default configuration. An empty path is valid; loading then does nothing.
func NewStore(path string) *Store {
	s := &Store{path: path}
	s.interval.Store(DefaultInterval)
	return s
}

// Path returns the path of the configuration file.
func (s *Store) Path() string { return s.path }

// Load loads the configuration file and commits it. It is the same as Reload
// and exists for readability at startup.
func (s *Store) Load() error { return s.Reload() }

// Reload re-reads the configuration file. The stored configuration is only
// replaced if the file is valid; otherwise the previous one stays in effect
// and the error is returned.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}

	cfg, err := Load(s.path)
	if err != nil {
		return err
	}

	s.interval.Store(int64(cfg.Interval))
	return nil
}

// Validate checks the configuration file without committing it.
func (s *Store) Validate() error {
	if s.path == "" {
		return nil
	}

	_, err := Load(s.path)
	return err
}

// Current returns the configuration in effect.
func (s *Store) Current() Config {
	return Config{Interval: int(s.interval.Load())}
}

// Interval returns the loop interval in effect.
func (s *Store) Interval() time.Duration {
	return time.Duration(s.interval.Load()) * time.Second
}
