// Package worker implements the bridge's Endpoint Worker: one instance
// per configured and enabled endpoint, owning its network connection,
// subscription set, outbound send queue, and reconnect state machine.
//
// Worker polymorphism (MQTT vs ZeroMQ) is modeled as a capability set
// rather than runtime reflection: both variants satisfy Worker, and the
// router and supervisor dispatch on the interface alone.
package worker

import (
	"context"
	"time"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
)

// defaultOutboundQueueSize is the default bound on a worker's outbound
// publish queue (spec default 10000).
const defaultOutboundQueueSize = 10000

// defaultShutdownDeadline bounds how long Shutdown waits for the
// worker's loops to finish before abandoning the worker.
const defaultShutdownDeadline = 2 * time.Second

// Worker is the capability set every endpoint variant implements:
// reconcile subscriptions, enqueue an outbound send, report status, and
// shut down cleanly.
type Worker interface {
	// Endpoint identifies which endpoint this worker owns.
	Endpoint() model.EndpointRef

	// Start connects and begins the worker's send (and, for subscriber
	// roles, receive) loops. It retries the initial connection with
	// capped exponential backoff until it succeeds or ctx is cancelled;
	// callers that don't want to block on the first connect attempt
	// should run it in its own goroutine.
	Start(ctx context.Context) error

	// SetSubscriptions reconciles the worker's active subscriptions to
	// exactly the given set. Idempotent; bumps the worker's generation
	// counter only when the set actually changes.
	SetSubscriptions(ctx context.Context, set []string) error

	// Publish enqueues an outbound message for asynchronous send. Returns
	// immediately; delivery is not guaranteed to have completed on return.
	// Returns bridgeerr.QueueFull if the outbound queue is saturated.
	Publish(ctx context.Context, msg model.OutboundMessage) error

	// Status returns a point-in-time snapshot of the worker's state.
	Status() model.WorkerState

	// Shutdown disconnects and waits, bounded by a deadline, for the
	// worker's loops to exit. The MQTT worker first publishes what is
	// still queued; the ZeroMQ worker discards it. Safe to call more
	// than once.
	Shutdown(ctx context.Context) error
}

// Inbox is the shared fan-in channel type workers push tagged inbound
// messages onto. A single Inbox instance is shared by every worker in a
// bridge run; the router is its sole consumer.
type Inbox chan model.InboundMessage

// NewInbox creates a fan-in channel of the given capacity.
func NewInbox(capacity int) Inbox {
	if capacity <= 0 {
		capacity = defaultOutboundQueueSize
	}
	return make(Inbox, capacity)
}

// StatsSink receives counter-delta notifications from a worker. Workers
// treat the sink as non-blocking and lossy: a full sink drops the
// notification rather than stalling the worker.
type StatsSink interface {
	Received(kind model.EndpointKind)
	Sent(kind model.EndpointKind)
	Error(endpoint model.EndpointRef)
	Latency(sample time.Duration)
}
