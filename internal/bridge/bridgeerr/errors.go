// Package bridgeerr defines the bridge's error taxonomy.
//
// Callers distinguish error categories with errors.Is against these
// sentinels, never by string matching.
package bridgeerr

import "errors"

var (
	// ConfigInvalid marks a malformed pattern, an out-of-range template
	// placeholder, or a dangling endpoint reference. Surfaced synchronously
	// to the caller of a reconfiguration; never retried.
	ConfigInvalid = errors.New("bridge: invalid configuration")

	// ConnectionFailed marks a transient per-worker connection failure.
	// Handled by the worker's reconnect schedule; reported in its status
	// and error counter. Never propagates past the worker.
	ConnectionFailed = errors.New("bridge: connection failed")

	// QueueFull marks a non-fatal drop at router enqueue or worker wire
	// send. Counted and logged rate-limited; never blocks the caller.
	QueueFull = errors.New("bridge: queue full")

	// Cancelled marks an operation aborted by shutdown. Expected, not an
	// error condition to alarm on.
	Cancelled = errors.New("bridge: cancelled")

	// Internal marks an unreachable invariant violation. Transitions the
	// Supervisor to Errored and stops accepting reconfigurations until
	// restart.
	Internal = errors.New("bridge: internal error")
)
