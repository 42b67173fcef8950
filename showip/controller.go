package showip

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrCapabilityMissing is returned by ExitError when the daemon ran without a
// capability it requires.
var ErrCapabilityMissing = errors.New("required capability missing")

// Configuration is the view of the configuration store that the Controller
// needs.
type Configuration interface {
	Interval() time.Duration
	Reload() error
}

// Releaser releases the single-instance lock.
type Releaser interface {
	Release() error
}

// ControllerConfig contains everything the Controller drives.
type ControllerConfig struct {
	Driver  *Driver
	Events  EventSource
	Config  Configuration
	Journal Journaler

	// Lock and Stream are released by the shutdown sequence. Either may be
	// nil.
	Lock   Releaser
	Stream io.Closer

	Logger  *slog.Logger
	Metrics Metrics
}

// Controller is the lifecycle state machine. It owns every piece of mutable
// state of a run and must only be used from a single goroutine.
type Controller struct {
	driver  *Driver
	events  EventSource
	config  Configuration
	journal Journaler
	lock    Releaser
	stream  io.Closer
	logger  *slog.Logger
	metrics Metrics

	state    RunState
	cause    LifecycleEvent
	failure  error
	missing  []string
	shutdown sync.Once
	exitCode int

	now func() time.Time
}

// NewController creates a new Controller in the Initializing state.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}

	return &Controller{
		driver:  cfg.Driver,
		events:  cfg.Events,
		config:  cfg.Config,
		journal: cfg.Journal,
		lock:    cfg.Lock,
		stream:  cfg.Stream,
		logger:  cfg.Logger.With("component", "controller"),
		metrics: cfg.Metrics,
		state:   Initializing,
		now:     time.Now,
	}
}

// State returns the current run state.
func (c *Controller) State() RunState { return c.state }

// Cause returns the event that ended the run, or EventNone if it hasn't ended.
func (c *Controller) Cause() LifecycleEvent { return c.cause }

// CapabilityMissing records that a required capability is absent. The run
// proceeds, but its exit status will be a failure.
func (c *Controller) CapabilityMissing(capability string) {
	c.missing = append(c.missing, capability)
	c.record(&EventCapabilityMissing{Capability: capability})
	c.logger.Error("required capability missing, running degraded", "capability", capability)
}

// Run runs the control loop until a terminal event arrives, then runs the
// shutdown sequence and returns the exit status.
func (c *Controller) Run(ctx context.Context) int {
	c.transition(Running)
	c.metrics.IntervalChanged(c.config.Interval().Seconds())

	counter := c.driver.Counter()
	c.record(&EventStarted{
		PID:      os.Getpid(),
		Interval: int(c.config.Interval() / time.Second),
		Budget:   counter.Budget(),
	})

	for c.state == Running {
		ev, err := c.driver.Cycle(ctx)
		if ev != EventNone {
			c.handle(ev, err)
		}

		if err := c.metrics.Flush(); err != nil {
			c.logger.Warn("failed to write metrics", "error", err)
		}

		c.dispatch(ctx)
		if c.state != Running {
			break
		}

		c.wait(ctx)
	}

	return c.Shutdown()
}

// wait waits out the configured interval after a cycle. Non-terminal events
// interrupt the wait only long enough to be handled.
func (c *Controller) wait(ctx context.Context) {
	start := c.now()

	for c.state == Running {
		// The interval is re-read after every interruption so that a reload
		// during the wait applies to the wait itself.
		if c.driver.Wait(ctx, start.Add(c.config.Interval()), c.events.Wake()) {
			return
		}

		c.dispatch(ctx)
	}
}

// dispatch handles every pending event. A canceled context counts as a stop
// request.
func (c *Controller) dispatch(ctx context.Context) {
	events := c.events.Pending()
	stopping := slices.Contains(events, EventStop)

	for _, ev := range events {
		// A reload is pointless once a stop is on its way, including one
		// raised after the events above were drained.
		if ev == EventReload && (stopping || c.events.StopPending()) {
			c.logger.Debug("dropping reload, stop pending")
			continue
		}
		c.handle(ev, nil)
	}

	if ctx.Err() != nil {
		c.handle(EventStop, nil)
	}
}

func (c *Controller) handle(ev LifecycleEvent, err error) {
	switch ev {
	case EventReload:
		c.reload()

	case EventChildNotification:
		c.record(&EventChildNotified{})
		c.logger.Debug("received child notification")

	case EventStop, EventLoopExhausted, EventIoFailure:
		c.requestStop(ev, err)
	}
}

func (c *Controller) reload() {
	// Reloads that race with a stop are dropped; there is nothing left to
	// configure.
	if c.state != Running {
		return
	}

	if err := c.config.Reload(); err != nil {
		interval := int(c.config.Interval() / time.Second)
		c.metrics.Reloaded(false)
		c.record(&EventReloadFailed{Interval: interval, Error: err.Error()})
		c.logger.Error("reload failed, keeping previous configuration",
			"error", err, "interval", interval)
		return
	}

	interval := c.config.Interval()
	c.metrics.Reloaded(true)
	c.metrics.IntervalChanged(interval.Seconds())
	c.record(&EventReloaded{Interval: int(interval / time.Second)})
	c.logger.Info("configuration reloaded", "interval", interval)
}

// requestStop moves the Controller into StoppingRequested. The first terminal
// event wins; later ones are ignored.
func (c *Controller) requestStop(ev LifecycleEvent, err error) {
	if c.state != Running {
		return
	}

	c.cause = ev
	if ev == EventIoFailure {
		c.failure = err
		c.logger.Error("log stream failure", "error", err)
	}

	c.transition(StoppingRequested)
	c.record(&EventStopping{Cause: ev.String()})
	c.logger.Info("stopping", "cause", ev.String())
}

// Shutdown runs the shutdown sequence and returns the exit status. It is safe
// to call more than once; only the first call does anything.
func (c *Controller) Shutdown() int {
	c.shutdown.Do(func() {
		if c.cause == EventNone {
			c.cause = EventStop
		}
		for c.state < StoppingRequested {
			c.transition(c.state + 1)
		}

		exitErr := c.ExitError()
		if exitErr == nil {
			c.exitCode = 0
		} else {
			c.exitCode = 1
		}

		if c.lock != nil {
			if err := c.lock.Release(); err != nil {
				c.logger.Error("failed to release lock", "error", err)
			}
		}

		// The final record has to make it into the stream before it is
		// closed, otherwise the next run cannot tell that this one stopped.
		c.record(&EventStopped{
			Cause:    c.cause.String(),
			Cycles:   c.driver.Counter().Count(),
			ExitCode: c.exitCode,
		})

		if c.stream != nil {
			if err := c.stream.Close(); err != nil {
				c.logger.Warn("failed to close log stream", "error", err)
			}
		}

		c.transition(Stopped)

		if err := c.metrics.Flush(); err != nil {
			c.logger.Warn("failed to write metrics", "error", err)
		}

		if exitErr != nil {
			c.logger.Error("stopped", "cause", c.cause.String(), "error", exitErr)
		} else {
			c.logger.Info("stopped", "cause", c.cause.String())
		}
	})

	return c.exitCode
}

// ExitError returns the reason the run counts as failed, or nil if it
// doesn't.
func (c *Controller) ExitError() error {
	if c.failure != nil {
		return c.failure
	}
	if len(c.missing) > 0 {
		return errors.Wrapf(ErrCapabilityMissing, "%v", c.missing)
	}
	return nil
}

func (c *Controller) transition(next RunState) {
	if !c.state.canMoveTo(next) {
		panic(fmt.Sprintf("showip: invalid state transition %s -> %s", c.state, next))
	}

	c.state = next
	c.metrics.StateChanged(next.String())
}

// record writes a lifecycle record into the journal. Failures are not fatal
// here; a broken stream is caught by the next progress record.
func (c *Controller) record(ev Event) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Write(ev); err != nil {
		c.logger.Debug("failed to journal event", "type", ev.Type(), "error", err)
	}
}
