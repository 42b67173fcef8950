package showip

// eventType describes an event type.
type eventType = string

const (
	eventWarning           eventType = "warning"
	eventStarted           eventType = "started"
	eventCycle             eventType = "cycle"
	eventReloaded          eventType = "reloaded"
	eventReloadFailed      eventType = "reload failed"
	eventChildNotified     eventType = "child notified"
	eventLoopExhausted     eventType = "loop exhausted"
	eventProbeFailed       eventType = "probe failed"
	eventRenderFailed      eventType = "render failed"
	eventCapabilityMissing eventType = "capability missing"
	eventStopping          eventType = "stopping"
	eventStopped           eventType = "stopped"
)

// Event is an interface describing known journal records. These are what the
// daemon writes into its log stream.
type Event interface {
	Type() string
	event()
}

// NewEvent creates a new event from the given event type. It is used primarily
// for decoding events from its type. Nil is returned if the event type is
// unknown.
func NewEvent(eventType string) Event {
	switch eventType {
	case eventWarning:
		return &EventWarning{}
	case eventStarted:
		return &EventStarted{}
	case eventCycle:
		return &EventCycle{}
	case eventReloaded:
		return &EventReloaded{}
	case eventReloadFailed:
		return &EventReloadFailed{}
	case eventChildNotified:
		return &EventChildNotified{}
	case eventLoopExhausted:
		return &EventBudgetExhausted{}
	case eventProbeFailed:
		return &EventProbeFailed{}
	case eventRenderFailed:
		return &EventRenderFailed{}
	case eventCapabilityMissing:
		return &EventCapabilityMissing{}
	case eventStopping:
		return &EventStopping{}
	case eventStopped:
		return &EventStopped{}
	default:
		return nil
	}
}

// EventWarning is emitted when a non-fatal error occurs.
type EventWarning struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}

func (ev *EventWarning) Type() string { return eventWarning }
func (ev *EventWarning) event()       {}

// EventStarted is emitted once the daemon holds its lock and is about to run
// the first cycle.
type EventStarted struct {
	PID      int `json:"pid"`
	Interval int `json:"interval"`
	Budget   int `json:"budget"` // 0 if unlimited
}

func (ev *EventStarted) Type() string { return eventStarted }
func (ev *EventStarted) event()       {}

// EventCycle is the progress record written at the start of every cycle.
type EventCycle struct {
	Counter int `json:"counter"`
}

func (ev *EventCycle) Type() string { return eventCycle }
func (ev *EventCycle) event()       {}

// EventReloaded is emitted after the configuration was re-read successfully.
type EventReloaded struct {
	Interval int `json:"interval"`
}

func (ev *EventReloaded) Type() string { return eventReloaded }
func (ev *EventReloaded) event()       {}

// EventReloadFailed is emitted when a reload could not be committed. The
// previous configuration stays in effect.
type EventReloadFailed struct {
	Interval int    `json:"interval"` // the interval still in effect
	Error    string `json:"error"`
}

func (ev *EventReloadFailed) Type() string { return eventReloadFailed }
func (ev *EventReloadFailed) event()       {}

// EventChildNotified is emitted when a child-reaped signal was observed.
type EventChildNotified struct{}

func (ev *EventChildNotified) Type() string { return eventChildNotified }
func (ev *EventChildNotified) event()       {}

// EventBudgetExhausted is emitted when the loop budget reaches zero. The
// Controller then stops with EventLoopExhausted.
type EventBudgetExhausted struct {
	Cycles int `json:"cycles"`
}

func (ev *EventBudgetExhausted) Type() string { return eventLoopExhausted }
func (ev *EventBudgetExhausted) event()       {}

// EventProbeFailed is emitted when a snapshot could not be taken. The cycle
// renders blank lines instead.
type EventProbeFailed struct {
	Error string `json:"error"`
}

func (ev *EventProbeFailed) Type() string { return eventProbeFailed }
func (ev *EventProbeFailed) event()       {}

// EventRenderFailed is emitted when the display rejected a render.
type EventRenderFailed struct {
	Error string `json:"error"`
}

func (ev *EventRenderFailed) Type() string { return eventRenderFailed }
func (ev *EventRenderFailed) event()       {}

// EventCapabilityMissing is emitted at startup when a required piece of
// hardware is absent. The daemon keeps running but will exit with a failure.
type EventCapabilityMissing struct {
	Capability string `json:"capability"`
}

func (ev *EventCapabilityMissing) Type() string { return eventCapabilityMissing }
func (ev *EventCapabilityMissing) event()       {}

// EventStopping is emitted when the Controller leaves the Running state.
type EventStopping struct {
	Cause string `json:"cause"`
}

func (ev *EventStopping) Type() string { return eventStopping }
func (ev *EventStopping) event()       {}

// EventStopped is the final status record of a run.
type EventStopped struct {
	Cause    string `json:"cause"`
	Cycles   int    `json:"cycles"`
	ExitCode int    `json:"exit_code"`
}

// IsClean returns true if the run ended with a success status.
func (ev EventStopped) IsClean() bool {
	return ev.ExitCode == 0
}

func (ev *EventStopped) Type() string { return eventStopped }
func (ev *EventStopped) event()       {}
