// Package showip is the core of the showip daemon. It owns the run state
// machine, the lifecycle events that drive it, and the work loop that samples
// the host and renders what it finds onto a two-line display.
//
// Mechanism of Operation
//
// Startup
//
// The daemon is invoked in the foreground. If asked to, it detaches itself
// from the invoking terminal first (see package daemon), and only then does it
// take the lock file (see package lock) and subscribe to signals (see package
// signals). Taking the lock before detaching would leave the lock held by a
// process that is about to exit and be replaced by its own child.
//
// Control Loop
//
// Everything that mutates state runs on a single goroutine owned by the
// Controller. Signals never touch that state directly: they set one of a
// handful of atomic flags and poke a wake channel. The Controller reads those
// flags once per scheduling point, which is after every cycle and whenever the
// inter-cycle wait is interrupted.
//
// A cycle looks like this:
//
//    - write a progress record to the log stream, flushing it
//    - take a snapshot of facts from the probe
//    - render up to two lines of those facts on the display
//    - spend one unit of the loop budget
//    - wait for the configured interval, or until a stop is requested
//
// Shutdown
//
// There are several reasons to stop: a stop signal, an exhausted loop budget,
// or a broken log stream. All of them go through the same shutdown sequence,
// which runs exactly once. It releases the lock file, closes the log stream
// unless the stream is standard output, and writes the final status record.
//
package showip
