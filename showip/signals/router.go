// Package signals routes process signals to lifecycle events.
//
// The goroutine that receives signals only ever sets flags and wakes the
// control loop; every event is acted upon by the control loop at its next
// scheduling point.
package signals

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"git.unix.lgbt/diamondburned/showip/showip"
)

// StopSignals are the signals that request a stop.
var StopSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// flags is the set of pending events.
type flags struct {
	stop   atomic.Bool
	reload atomic.Bool
	child  atomic.Bool
	wake   chan struct{}
}

func newFlags() *flags {
	return &flags{wake: make(chan struct{}, 1)}
}

func (f *flags) raise(ev showip.LifecycleEvent) {
	switch ev {
	case showip.EventStop:
		f.stop.Store(true)
	case showip.EventReload:
		f.reload.Store(true)
	case showip.EventChildNotification:
		f.child.Store(true)
	default:
		return
	}

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// processFlags are the flags shared by every router of the process. Signal
// dispositions are process-wide, and so are these.
var processFlags = newFlags()

// Router maps SIGINT and SIGTERM to EventStop, SIGHUP to EventReload and
// SIGCHLD to EventChildNotification.
//
// The first stop signal restores the default disposition of the stop
// signals, so a second one terminates the process even if the shutdown
// sequence hangs.
type Router struct {
	flags *flags
	sigs  chan os.Signal
	done  chan struct{}

	once    sync.Once
	stopped sync.Once
}

var _ showip.EventSource = (*Router)(nil)

// NewRouter creates a router over the process-wide pending flags. It does not
// receive any signal until Start is called.
func NewRouter() *Router {
	return newRouter(processFlags)
}

func newRouter(f *flags) *Router {
	return &Router{
		flags: f,
		sigs:  make(chan os.Signal, 8),
		done:  make(chan struct{}),
	}
}

// Start registers the router for its signals.
func (r *Router) Start() {
	r.once.Do(func() {
		signal.Notify(r.sigs, append(StopSignals, syscall.SIGHUP, syscall.SIGCHLD)...)
		go r.loop()
	})
}

// Stop unregisters the router and restores the default signal dispositions.
func (r *Router) Stop() {
	r.stopped.Do(func() {
		signal.Stop(r.sigs)
		close(r.done)
	})
}

func (r *Router) loop() {
	for {
		select {
		case <-r.done:
			return
		case sig := <-r.sigs:
			r.route(sig)
		}
	}
}

func (r *Router) route(sig os.Signal) {
	switch sig {
	case syscall.SIGINT, syscall.SIGTERM:
		signal.Reset(StopSignals...)
		r.flags.raise(showip.EventStop)
	case syscall.SIGHUP:
		r.flags.raise(showip.EventReload)
	case syscall.SIGCHLD:
		r.flags.raise(showip.EventChildNotification)
	}
}

// RequestReload raises a pending reload as if SIGHUP was received. It is safe
// to call from any goroutine.
func (r *Router) RequestReload() {
	r.flags.raise(showip.EventReload)
}

// Pending drains the pending events. A child notification comes first and a
// stop comes last, so that everything else is handled before the stop
// request ends the run.
func (r *Router) Pending() []showip.LifecycleEvent {
	var events []showip.LifecycleEvent

	if r.flags.child.Swap(false) {
		events = append(events, showip.EventChildNotification)
	}
	if r.flags.reload.Swap(false) {
		events = append(events, showip.EventReload)
	}
	if r.flags.stop.Swap(false) {
		events = append(events, showip.EventStop)
	}

	return events
}

// StopPending returns true if a stop was raised and not yet drained.
func (r *Router) StopPending() bool {
	return r.flags.stop.Load()
}

// Wake returns a channel that receives whenever an event is raised.
func (r *Router) Wake() <-chan struct{} {
	return r.flags.wake
}
