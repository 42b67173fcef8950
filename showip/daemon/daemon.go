// Package daemon detaches the process from its controlling terminal.
//
// Go cannot fork without exec, so the classic double fork is done by
// re-executing the program twice. An environment variable tells every
// process which stage it is in:
//
//	stage 0: the foreground process. It starts stage 1 in a new session and
//	         exits.
//	stage 1: the session leader. It ignores SIGCHLD, starts stage 2 and
//	         exits, so the daemon can never reacquire a controlling terminal.
//	stage 2: the daemon. It resets its umask and moves to the root directory.
//
// Every stage is started with its standard streams bound to /dev/null and
// with every other inherited descriptor closed on exec.
package daemon

import (
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// StageEnv is the environment variable carrying the stage of a re-executed
// process.
const StageEnv = "SHOWIP_DAEMON_STAGE"

// ErrDaemonize is wrapped by every error returned by Daemonize.
var ErrDaemonize = errors.New("failed to daemonize")

// Stage is a step of the daemonization sequence.
type Stage int

const (
	Foreground Stage = iota
	SessionLeader
	Detached
)

func (s Stage) String() string {
	switch s {
	case Foreground:
		return "foreground"
	case SessionLeader:
		return "session leader"
	case Detached:
		return "detached"
	default:
		return "Stage(" + strconv.Itoa(int(s)) + ")"
	}
}

var devNull = os.DevNull

// errExited is returned once exit returned, which only a stubbed exit does.
var errExited = errors.New("exit returned")

// Daemonizer runs the daemonization sequence. Every call into the operating
// system goes through a function field.
type Daemonizer struct {
	startProcess func(name string, argv []string, attr *os.ProcAttr) (int, error)
	executable   func() (string, error)
	exit         func(code int)
	getenv       func(key string) string
	unsetenv     func(key string) error
	environ      func() []string
	getpid       func() int
	umask        func(mask int) int
	chdir        func(dir string) error
	ignoreChild  func()
	closeOnExec  func() error

	args []string
}

// New creates a daemonizer that re-executes the program with the given
// arguments, not including the program name. Paths in args must be absolute
// since the daemon runs in the root directory.
func New(args []string) *Daemonizer {
	return &Daemonizer{
		startProcess: startProcess,
		executable:   os.Executable,
		exit:         os.Exit,
		getenv:       os.Getenv,
		unsetenv:     os.Unsetenv,
		environ:      os.Environ,
		getpid:       os.Getpid,
		umask:        unix.Umask,
		chdir:        os.Chdir,
		ignoreChild:  func() { signal.Ignore(syscall.SIGCHLD) },
		closeOnExec:  markCloseOnExec,
		args:         args,
	}
}

// Daemonize daemonizes the process using the arguments it was started with.
func Daemonize() (int, error) {
	return New(os.Args[1:]).Daemonize()
}

// Stage returns the stage that the current process is in.
func (d *Daemonizer) Stage() (Stage, error) {
	v := d.getenv(StageEnv)
	if v == "" {
		return Foreground, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < int(Foreground) || n > int(Detached) {
		return 0, errors.Wrapf(ErrDaemonize, "invalid %s %q", StageEnv, v)
	}

	return Stage(n), nil
}

// Daemonize runs the stage of the current process. Stages before the last one
// never return: they start the next stage and exit with status 0. The last
// stage returns the daemon's process ID.
func (d *Daemonizer) Daemonize() (int, error) {
	stage, err := d.Stage()
	if err != nil {
		return 0, err
	}

	switch stage {
	case Foreground:
		if err := d.respawn(SessionLeader, true); err != nil {
			return 0, errors.Wrapf(ErrDaemonize, "failed to start session leader: %v", err)
		}

	case SessionLeader:
		d.ignoreChild()

		if err := d.respawn(Detached, false); err != nil {
			return 0, errors.Wrapf(ErrDaemonize, "failed to start daemon: %v", err)
		}

	case Detached:
		return d.detach()
	}

	d.exit(0)
	return 0, errExited
}

// respawn starts the next stage. setsid puts the new process into its own
// session.
func (d *Daemonizer) respawn(next Stage, setsid bool) error {
	exe, err := d.executable()
	if err != nil {
		return errors.Wrap(err, "failed to find executable")
	}

	if err := d.closeOnExec(); err != nil {
		return errors.Wrap(err, "failed to close inherited descriptors")
	}

	null, err := os.OpenFile(devNull, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrap(err, "failed to open null device")
	}
	defer null.Close()

	argv := append([]string{exe}, d.args...)

	_, err = d.startProcess(exe, argv, &os.ProcAttr{
		Dir:   "/",
		Env:   d.stageEnv(next),
		Files: []*os.File{null, null, null},
		Sys:   &syscall.SysProcAttr{Setsid: setsid},
	})
	return err
}

// startProcess starts a process that is never waited for, since it outlives
// the current one.
func startProcess(name string, argv []string, attr *os.ProcAttr) (int, error) {
	p, err := os.StartProcess(name, argv, attr)
	if err != nil {
		return 0, err
	}

	pid := p.Pid
	return pid, p.Release()
}

func (d *Daemonizer) stageEnv(next Stage) []string {
	prefix := StageEnv + "="

	var env []string
	for _, kv := range d.environ() {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		env = append(env, kv)
	}

	return append(env, prefix+strconv.Itoa(int(next)))
}

func (d *Daemonizer) detach() (int, error) {
	// Children of the daemon must not believe they are a stage.
	if err := d.unsetenv(StageEnv); err != nil {
		return 0, errors.Wrapf(ErrDaemonize, "failed to clear %s: %v", StageEnv, err)
	}

	d.umask(0)

	if err := d.chdir("/"); err != nil {
		return 0, errors.Wrapf(ErrDaemonize, "failed to change directory: %v", err)
	}

	return d.getpid(), nil
}
