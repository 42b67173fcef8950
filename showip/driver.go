package showip

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Facts is a snapshot of what the probe observed on the host.
type Facts struct {
	Addresses []string
}

// Empty returns true if there is nothing worth rendering.
func (f Facts) Empty() bool {
	return len(f.Addresses) == 0
}

// Lines returns the two lines to render. Missing lines are empty so that the
// display is blanked instead of keeping stale content around.
func (f Facts) Lines() (line0, line1 string) {
	if len(f.Addresses) > 0 {
		line0 = f.Addresses[0]
	}
	if len(f.Addresses) > 1 {
		line1 = f.Addresses[1]
	}
	return
}

// Probe produces a snapshot of observable facts.
type Probe interface {
	Snapshot(ctx context.Context) (Facts, error)
}

// Display renders two lines of text onto a fixed-size output.
type Display interface {
	Render(line0, line1 string) error
}

// Metrics receives counters from the work loop and the Controller. A nil
// Metrics is valid wherever one is accepted.
type Metrics interface {
	CycleCompleted(addresses int)
	ProbeFailed()
	RenderFailed()
	Reloaded(ok bool)
	StateChanged(state string)
	IntervalChanged(seconds float64)
	Flush() error
}

type nopMetrics struct{}

func (nopMetrics) CycleCompleted(int)      {}
func (nopMetrics) ProbeFailed()            {}
func (nopMetrics) RenderFailed()           {}
func (nopMetrics) Reloaded(bool)           {}
func (nopMetrics) StateChanged(string)     {}
func (nopMetrics) IntervalChanged(float64) {}
func (nopMetrics) Flush() error            { return nil }

// LoopCounter keeps track of completed cycles and of the remaining loop
// budget. The count never resets.
type LoopCounter struct {
	count   int
	budget  int
	limited bool
}

// NewLoopCounter creates a counter that is exhausted after budget cycles. A
// budget of 0 or less never exhausts.
func NewLoopCounter(budget int) LoopCounter {
	return LoopCounter{
		budget:  budget,
		limited: budget > 0,
	}
}

// Count returns the number of completed cycles.
func (c LoopCounter) Count() int { return c.count }

// Budget returns the initial budget, or 0 if unlimited.
func (c LoopCounter) Budget() int {
	if !c.limited {
		return 0
	}
	return c.count + c.budget
}

// Remaining returns the remaining budget. The boolean is false if the counter
// is unlimited.
func (c LoopCounter) Remaining() (int, bool) {
	return c.budget, c.limited
}

// complete records a completed cycle and returns true if that spent the last
// unit of the budget.
func (c *LoopCounter) complete() bool {
	c.count++
	if !c.limited {
		return false
	}
	if c.budget > 0 {
		c.budget--
	}
	return c.budget == 0
}

// ErrLoopIO is wrapped by the error that Cycle returns when the log stream
// is broken.
var ErrLoopIO = errors.New("log stream failure")

// Driver runs the cycles of the work loop. It is the sole owner of the loop
// counter.
type Driver struct {
	journal Journaler
	probe   Probe
	display Display
	metrics Metrics
	counter LoopCounter

	now func() time.Time
}

// NewDriver creates a new work loop driver. The budget is the number of cycles
// after which the driver reports EventLoopExhausted; 0 means never.
func NewDriver(j Journaler, p Probe, d Display, m Metrics, budget int) *Driver {
	if m == nil {
		m = nopMetrics{}
	}

	return &Driver{
		journal: j,
		probe:   p,
		display: d,
		metrics: m,
		counter: NewLoopCounter(budget),
		now:     time.Now,
	}
}

// Counter returns a copy of the loop counter.
func (d *Driver) Counter() LoopCounter { return d.counter }

// Cycle runs a single cycle. It returns EventNone unless the cycle ended the
// loop, in which case it returns EventLoopExhausted or EventIoFailure. The
// error is only non-nil for EventIoFailure.
func (d *Driver) Cycle(ctx context.Context) (LifecycleEvent, error) {
	// A progress record that cannot be written means the filesystem or
	// device behind the log stream is gone.
	if err := d.journal.Write(&EventCycle{Counter: d.counter.Count()}); err != nil {
		return EventIoFailure, errors.Wrapf(ErrLoopIO, "failed to write progress record: %v", err)
	}

	facts, err := d.probe.Snapshot(ctx)
	if err != nil {
		d.metrics.ProbeFailed()
		d.journal.Write(&EventProbeFailed{Error: err.Error()})
		facts = Facts{}
	}

	line0, line1 := facts.Lines()

	if err := d.display.Render(line0, line1); err != nil {
		d.metrics.RenderFailed()
		d.journal.Write(&EventRenderFailed{Error: err.Error()})
	}

	d.metrics.CycleCompleted(len(facts.Addresses))

	if d.counter.complete() {
		d.journal.Write(&EventBudgetExhausted{Cycles: d.counter.Count()})
		return EventLoopExhausted, nil
	}

	return EventNone, nil
}

// Wait blocks until the given time, until the context is canceled or until
// something arrives on wake. It returns true only if the full wait elapsed.
func (d *Driver) Wait(ctx context.Context, until time.Time, wake <-chan struct{}) bool {
	dura := until.Sub(d.now())
	if dura <= 0 {
		return true
	}

	timer := time.NewTimer(dura)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-wake:
		return false
	case <-ctx.Done():
		return false
	}
}
