// Package lock provides the single-instance guarantee of the daemon: an
// exclusive advisory lock (flock) on a PID file that holds the owner's process
// ID.
package lock

import (
	"os"
	"strconv"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrAlreadyRunning is returned by Acquire if another process holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Handle owns an acquired lock. The zero value and a nil Handle are valid and
// release nothing.
type Handle struct {
	mutex    sync.Mutex
	path     string
	lock     *flock.Flock
	released bool
}

// Acquire opens the file at path, creating it with owner-only permissions if
// it is absent, and takes an exclusive lock on it without blocking. On
// success, the caller's process ID is written as the sole content of the file.
//
// If path is empty, a Handle that does nothing is returned.
func Acquire(path string) (*Handle, error) {
	return acquire(path, os.Getpid())
}

func acquire(path string, pid int) (*Handle, error) {
	if path == "" {
		return &Handle{}, nil
	}

	l := flock.New(path)

	locked, err := l.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire lock")
	}

	if !locked {
		return nil, errors.Wrapf(ErrAlreadyRunning, "%s is locked", path)
	}

	if err := writePID(path, pid); err != nil {
		l.Unlock()
		return nil, err
	}

	return &Handle{
		path: path,
		lock: l,
	}, nil
}

func writePID(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "failed to open PID file")
	}
	defer f.Close()

	if err := f.Chmod(0600); err != nil {
		return errors.Wrap(err, "failed to restrict PID file permissions")
	}

	if _, err := f.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		return errors.Wrap(err, "failed to write PID")
	}

	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync PID file")
	}

	return nil
}

// Path returns the path of the lock file, or an empty string if there is
// none.
func (h *Handle) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}

// Release unlinks the lock file, then unlocks and closes it. Calling Release
// more than once is a no-op.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.released || h.lock == nil {
		return nil
	}
	h.released = true

	// Unlink while still holding the lock.
	rmErr := os.Remove(h.path)

	if err := h.lock.Unlock(); err != nil {
		return errors.Wrap(err, "failed to unlock")
	}

	if rmErr != nil && !os.IsNotExist(rmErr) {
		return errors.Wrap(rmErr, "failed to remove lock file")
	}

	return nil
}

// ReadPID reads the process ID recorded in the lock file at path.
func ReadPID(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read PID file")
	}

	pid, err := strconv.Atoi(string(trimNewline(b)))
	if err != nil {
		return 0, errors.Wrap(err, "invalid PID file")
	}

	return pid, nil
}

func trimNewline(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\n' {
		return b[:len(b)-1]
	}
	return b
}
