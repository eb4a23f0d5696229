package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/mapping"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/worker"
)

var (
	mqtt1 = model.EndpointRef{Kind: model.KindMQTT, ID: 1}
	zmq2  = model.EndpointRef{Kind: model.KindZMQ, ID: 2}
)

// fakeWorker records every Publish call for assertions; it implements
// worker.Worker without any real network I/O.
type fakeWorker struct {
	ref model.EndpointRef

	mu       sync.Mutex
	received []model.OutboundMessage
	full     bool
}

func (f *fakeWorker) Endpoint() model.EndpointRef              { return f.ref }
func (f *fakeWorker) Start(ctx context.Context) error          { return nil }
func (f *fakeWorker) SetSubscriptions(ctx context.Context, set []string) error { return nil }
func (f *fakeWorker) Status() model.WorkerState                                { return model.WorkerState{Endpoint: f.ref} }
func (f *fakeWorker) Shutdown(ctx context.Context) error                       { return nil }

func (f *fakeWorker) Publish(ctx context.Context, msg model.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errQueueFull
	}
	f.received = append(f.received, msg)
	return nil
}

func (f *fakeWorker) messages() []model.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.OutboundMessage, len(f.received))
	copy(out, f.received)
	return out
}

var errQueueFull = &queueFullErr{}

type queueFullErr struct{}

func (*queueFullErr) Error() string { return "queue full" }

type fakeTable struct {
	mu      sync.Mutex
	workers map[model.EndpointRef]worker.Worker
}

func newFakeTable() *fakeTable { return &fakeTable{workers: make(map[model.EndpointRef]worker.Worker)} }

func (t *fakeTable) put(w *fakeWorker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.workers[w.ref] = w
}

func (t *fakeTable) Get(ref model.EndpointRef) (worker.Worker, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.workers[ref]
	return w, ok
}

type fakeStats struct {
	mu        sync.Mutex
	received  int
	sent      int
	queueDrop int
	latencies int
}

func (s *fakeStats) Received(kind model.EndpointKind) { s.mu.Lock(); s.received++; s.mu.Unlock() }
func (s *fakeStats) Sent(kind model.EndpointKind)      { s.mu.Lock(); s.sent++; s.mu.Unlock() }
func (s *fakeStats) QueueDrop(ref model.EndpointRef)   { s.mu.Lock(); s.queueDrop++; s.mu.Unlock() }
func (s *fakeStats) Latency(d time.Duration)           { s.mu.Lock(); s.latencies++; s.mu.Unlock() }

func buildIndex(t *testing.T, m model.Mapping) *mapping.Index {
	t.Helper()
	endpoints := map[model.EndpointRef]model.EndpointKind{mqtt1: model.KindMQTT, zmq2: model.KindZMQ}
	idx, err := mapping.Build([]model.Mapping{m}, endpoints)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func TestRouter_RoutesMatchingMessage(t *testing.T) {
	m := model.Mapping{ID: 1, Source: mqtt1, Target: zmq2, SourceTopic: "sensors/+/t", TargetTopic: "zmq.s.{1}.t", Direction: model.DirMQTTToZMQ, Enabled: true}
	idx := buildIndex(t, m)

	inbox := worker.NewInbox(10)
	table := newFakeTable()
	target := &fakeWorker{ref: zmq2}
	table.put(target)

	stats := &fakeStats{}
	r := New(inbox, table, idx, stats, nil)
	r.Start()
	defer r.Stop()

	inbox <- model.InboundMessage{Source: mqtt1, Topic: "sensors/room1/t", Payload: []byte("23.4"), Ingress: time.Now()}

	waitFor(t, func() bool { return len(target.messages()) == 1 })

	got := target.messages()[0]
	if got.Topic != "zmq.s.room1.t" || string(got.Payload) != "23.4" {
		t.Errorf("delivered message = %+v, want topic=zmq.s.room1.t payload=23.4", got)
	}
}

func TestRouter_QueueDropOnFullTarget(t *testing.T) {
	m := model.Mapping{ID: 1, Source: mqtt1, Target: zmq2, SourceTopic: "a/+", TargetTopic: "b/{1}", Direction: model.DirMQTTToZMQ, Enabled: true}
	idx := buildIndex(t, m)

	inbox := worker.NewInbox(10)
	table := newFakeTable()
	target := &fakeWorker{ref: zmq2, full: true}
	table.put(target)

	stats := &fakeStats{}
	r := New(inbox, table, idx, stats, nil)
	r.Start()
	defer r.Stop()

	inbox <- model.InboundMessage{Source: mqtt1, Topic: "a/x", Payload: []byte("p")}

	waitFor(t, func() bool { stats.mu.Lock(); defer stats.mu.Unlock(); return stats.queueDrop == 1 })
}

func TestRouter_IsolatesQueueFullPerTarget(t *testing.T) {
	zmq3 := model.EndpointRef{Kind: model.KindZMQ, ID: 3}
	full := model.Mapping{ID: 1, Source: mqtt1, Target: zmq2, SourceTopic: "a/+", TargetTopic: "b/{1}", Direction: model.DirMQTTToZMQ, Enabled: true}
	ok := model.Mapping{ID: 2, Source: mqtt1, Target: zmq3, SourceTopic: "c/+", TargetTopic: "d/{1}", Direction: model.DirMQTTToZMQ, Enabled: true}

	endpoints := map[model.EndpointRef]model.EndpointKind{mqtt1: model.KindMQTT, zmq2: model.KindZMQ, zmq3: model.KindZMQ}
	idx, err := mapping.Build([]model.Mapping{full, ok}, endpoints)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	inbox := worker.NewInbox(10)
	table := newFakeTable()
	fullTarget := &fakeWorker{ref: zmq2, full: true}
	okTarget := &fakeWorker{ref: zmq3}
	table.put(fullTarget)
	table.put(okTarget)

	stats := &fakeStats{}
	r := New(inbox, table, idx, stats, nil)
	r.Start()
	defer r.Stop()

	inbox <- model.InboundMessage{Source: mqtt1, Topic: "a/x", Payload: []byte("p")}
	inbox <- model.InboundMessage{Source: mqtt1, Topic: "c/y", Payload: []byte("q")}

	waitFor(t, func() bool { return len(okTarget.messages()) == 1 })
	if len(fullTarget.messages()) != 0 {
		t.Errorf("expected saturated target to receive nothing, got %v", fullTarget.messages())
	}
}

func TestRouter_SetIndexSwapsAtomically(t *testing.T) {
	m1 := model.Mapping{ID: 1, Source: mqtt1, Target: zmq2, SourceTopic: "a/+", TargetTopic: "b/{1}", Direction: model.DirMQTTToZMQ, Enabled: true}
	idx1 := buildIndex(t, m1)

	inbox := worker.NewInbox(10)
	table := newFakeTable()
	target := &fakeWorker{ref: zmq2}
	table.put(target)

	r := New(inbox, table, idx1, &fakeStats{}, nil)
	r.Start()
	defer r.Stop()

	m2 := model.Mapping{ID: 2, Source: mqtt1, Target: zmq2, SourceTopic: "x/+", TargetTopic: "y/{1}", Direction: model.DirMQTTToZMQ, Enabled: true}
	endpoints := map[model.EndpointRef]model.EndpointKind{mqtt1: model.KindMQTT, zmq2: model.KindZMQ}
	idx2, err := mapping.Build([]model.Mapping{m2}, endpoints)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r.SetIndex(idx2)

	inbox <- model.InboundMessage{Source: mqtt1, Topic: "x/z", Payload: []byte("p")}

	waitFor(t, func() bool { return len(target.messages()) == 1 })
	if got := target.messages()[0].Topic; got != "y/z" {
		t.Errorf("topic = %q, want y/z (routed against swapped index)", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met within deadline")
	}
}
