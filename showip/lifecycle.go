package showip

import "fmt"

// RunState is the state of the daemon's control loop. It only ever moves
// forward: Initializing, Running, StoppingRequested, Stopped.
type RunState int32

const (
	Initializing RunState = iota
	Running
	StoppingRequested
	Stopped
)

func (s RunState) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case StoppingRequested:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("RunState(%d)", int32(s))
	}
}

// canMoveTo returns true if the state machine permits going from s to next.
func (s RunState) canMoveTo(next RunState) bool {
	return next == s+1
}

// LifecycleEvent is a discrete input to the Controller. Events come from the
// signal router (Stop, Reload, ChildNotification) or from the work loop
// itself (LoopExhausted, IoFailure).
type LifecycleEvent int

const (
	EventNone LifecycleEvent = iota
	EventStop
	EventReload
	EventChildNotification
	EventLoopExhausted
	EventIoFailure
)

func (ev LifecycleEvent) String() string {
	switch ev {
	case EventNone:
		return "none"
	case EventStop:
		return "stop"
	case EventReload:
		return "reload"
	case EventChildNotification:
		return "child notification"
	case EventLoopExhausted:
		return "loop exhausted"
	case EventIoFailure:
		return "io failure"
	default:
		return fmt.Sprintf("LifecycleEvent(%d)", int(ev))
	}
}

// IsTerminal returns true if the event ends the control loop.
func (ev LifecycleEvent) IsTerminal() bool {
	switch ev {
	case EventStop, EventLoopExhausted, EventIoFailure:
		return true
	default:
		return false
	}
}

// EventSource is where the Controller collects asynchronously raised events.
// Pending drains everything raised since the last call; Wake is signaled
// whenever something new gets raised. StopPending reports a stop that was
// raised but not drained yet; reloads are dropped while it does.
type EventSource interface {
	Pending() []LifecycleEvent
	StopPending() bool
	Wake() <-chan struct{}
}
