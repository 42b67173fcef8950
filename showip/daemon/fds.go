package daemon

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// maxFallbackFD bounds the descriptor scan when /proc is not mounted.
const maxFallbackFD = 4096

// markCloseOnExec sets FD_CLOEXEC on every open descriptor above stderr so
// that none of them leak into the next stage. Descriptors cannot simply be
// closed here, since the Go runtime owns some of them.
func markCloseOnExec() error {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return markCloseOnExecRange()
	}

	for _, entry := range entries {
		fd, err := strconv.Atoi(entry.Name())
		if err != nil || fd <= 2 {
			continue
		}

		unix.CloseOnExec(fd)
	}

	return nil
}

func markCloseOnExecRange() error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return err
	}

	max := rlim.Cur
	if max > maxFallbackFD {
		max = maxFallbackFD
	}

	// Descriptors that aren't open fail with EBADF, which is fine.
	for fd := 3; uint64(fd) < max; fd++ {
		unix.CloseOnExec(fd)
	}

	return nil
}
