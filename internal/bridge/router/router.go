// Package router implements the bridge's Router: the single logical
// consumer that drains the inbound fan-in, consults the Mapping Index,
// and dispatches outbound sends to target workers.
package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/mapping"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/worker"
)

// StatsSink receives router-level counter and latency notifications.
type StatsSink interface {
	Received(kind model.EndpointKind)
	Sent(kind model.EndpointKind)
	QueueDrop(endpoint model.EndpointRef)
	Latency(sample time.Duration)
}

// Logger is the minimal logging surface the router consumes.
type Logger interface {
	Warn(msg string, args ...any)
}

// WorkerTable resolves a target endpoint to its live Worker. The
// Supervisor is the only writer; the router only reads.
type WorkerTable interface {
	Get(ref model.EndpointRef) (worker.Worker, bool)
}

// Router drains a shared inbox, looks up routing actions in the current
// Mapping Index, and enqueues outbound sends on target workers.
//
// The Mapping Index is read through an atomic pointer: the Supervisor
// swaps in a new index on reconfiguration, and the router always
// resolves each message against a single consistent snapshot.
type Router struct {
	inbox   worker.Inbox
	workers WorkerTable
	stats   StatsSink
	logger  Logger

	indexPtr atomic.Pointer[mapping.Index]

	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Router draining inbox, dispatching through workers,
// and consulting idx for routing decisions. idx may be swapped later
// via SetIndex.
func New(inbox worker.Inbox, workers WorkerTable, idx *mapping.Index, stats StatsSink, logger Logger) *Router {
	r := &Router{
		inbox:   inbox,
		workers: workers,
		stats:   stats,
		logger:  logger,
		done:    make(chan struct{}),
	}
	r.SetIndex(idx)
	return r
}

// SetIndex atomically swaps in a new Mapping Index. In-flight Lookup
// calls against the old index complete normally; subsequent messages
// see the new index.
func (r *Router) SetIndex(idx *mapping.Index) {
	r.indexPtr.Store(idx)
}

func (r *Router) currentIndex() *mapping.Index {
	return r.indexPtr.Load()
}

// Start launches the router's drain loop in a new goroutine. A Router
// stopped with Stop may be started again.
func (r *Router) Start() {
	r.done = make(chan struct{})
	r.wg.Add(1)
	go r.run()
}

// Stop signals the drain loop to exit and waits for it to finish.
func (r *Router) Stop() {
	close(r.done)
	r.wg.Wait()
}

func (r *Router) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case msg := <-r.inbox:
			r.route(msg)
		}
	}
}

// route implements one pass of spec §4.5: lookup, dispatch, latency,
// counters.
func (r *Router) route(msg model.InboundMessage) {
	if r.stats != nil {
		r.stats.Received(msg.Source.Kind)
	}

	idx := r.currentIndex()
	if idx == nil {
		return
	}

	actions, err := idx.Lookup(msg.Source, msg.Topic)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("router: lookup failed", "source", msg.Source, "topic", msg.Topic, "error", err)
		}
		return
	}

	if !msg.Ingress.IsZero() && r.stats != nil {
		r.stats.Latency(time.Since(msg.Ingress))
	}

	for _, action := range actions {
		w, ok := r.workers.Get(action.Target)
		if !ok {
			continue
		}

		out := model.OutboundMessage{
			Topic:    action.Topic,
			Payload:  msg.Payload,
			QoS:      msg.QoS,
			Retained: msg.Retained,
		}

		if err := w.Publish(context.Background(), out); err != nil {
			if r.stats != nil {
				r.stats.QueueDrop(action.Target)
			}
			continue
		}

		if r.stats != nil {
			r.stats.Sent(action.TargetKind)
		}
	}
}
