package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
)

type fakeSink struct {
	mu         sync.Mutex
	throughput []string
	latencies  []float64
	errors     []uint64
}

func (f *fakeSink) WriteThroughput(endpointKind string, endpointID string, sent, received uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.throughput = append(f.throughput, endpointKind)
}

func (f *fakeSink) WriteLatency(latencyMs float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latencies = append(f.latencies, latencyMs)
}

func (f *fakeSink) WriteErrorCount(endpointKind string, endpointID string, errors uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errors)
}

func waitForStats(t *testing.T, cond func() bool) {
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

func TestAggregator_CountsReceivedAndSentByKind(t *testing.T) {
	a := New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	defer a.Stop()

	a.Received(model.KindMQTT)
	a.Received(model.KindZMQ)
	a.Sent(model.KindMQTT)

	waitForStats(t, func() bool {
		snap := a.Snapshot()
		return snap.MQTTReceived == 1 && snap.ZMQReceived == 1 && snap.MQTTSent == 1
	})
}

func TestAggregator_ErrorIncrementsAggregateCounter(t *testing.T) {
	a := New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	defer a.Stop()

	ref := model.EndpointRef{Kind: model.KindMQTT, ID: 1}
	a.Error(ref)
	a.Error(ref)

	waitForStats(t, func() bool { return a.Snapshot().Errors == 2 })
}

func TestAggregator_QueueDropCountsAndRateLimitsLog(t *testing.T) {
	var warnings int
	var mu sync.Mutex
	logger := warnFunc(func(msg string, args ...any) {
		mu.Lock()
		warnings++
		mu.Unlock()
	})

	a := New(nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	defer a.Stop()

	ref := model.EndpointRef{Kind: model.KindZMQ, ID: 2}
	for i := 0; i < 5; i++ {
		a.QueueDrop(ref)
	}

	waitForStats(t, func() bool { return a.QueueDropCount() == 5 })

	mu.Lock()
	got := warnings
	mu.Unlock()
	if got != 1 {
		t.Errorf("warnings = %d, want 1 (rate-limited)", got)
	}
}

type warnFunc func(msg string, args ...any)

func (f warnFunc) Warn(msg string, args ...any) { f(msg, args...) }

func TestAggregator_LatencyEMAConvergesTowardSamples(t *testing.T) {
	a := New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	defer a.Stop()

	a.Latency(100 * time.Millisecond)
	waitForStats(t, func() bool { return a.Snapshot().AvgLatencyMs == 100 })

	for i := 0; i < 50; i++ {
		a.Latency(10 * time.Millisecond)
	}

	waitForStats(t, func() bool {
		latency := a.Snapshot().AvgLatencyMs
		return latency < 15
	})
}

func TestAggregator_MinuteRolloverProducesBucketAndResets(t *testing.T) {
	a := New(nil, nil)
	a.Sent(model.KindMQTT)
	a.Sent(model.KindMQTT)
	a.Sent(model.KindZMQ)

	// Drain manually instead of waiting a full minute tick.
	a.apply(event{kind: evSent, endpointKind: model.KindMQTT})
	a.apply(event{kind: evSent, endpointKind: model.KindMQTT})
	a.apply(event{kind: evSent, endpointKind: model.KindZMQ})

	a.rollover(time.Now())

	snap := a.Snapshot()
	if len(snap.Buckets) != 1 {
		t.Fatalf("len(Buckets) = %d, want 1", len(snap.Buckets))
	}
	if snap.Buckets[0].MQTTSent != 2 || snap.Buckets[0].ZMQSent != 1 {
		t.Errorf("bucket = %+v, want MQTTSent=2 ZMQSent=1", snap.Buckets[0])
	}

	// A second rollover with no new sends should append a zero bucket,
	// not repeat the first.
	a.rollover(time.Now().Add(time.Minute))
	snap = a.Snapshot()
	if len(snap.Buckets) != 2 {
		t.Fatalf("len(Buckets) = %d, want 2", len(snap.Buckets))
	}
	if snap.Buckets[1].MQTTSent != 0 || snap.Buckets[1].ZMQSent != 0 {
		t.Errorf("second bucket = %+v, want zeroes", snap.Buckets[1])
	}
}

func TestAggregator_BucketHistoryCapsAtThirty(t *testing.T) {
	a := New(nil, nil)
	for i := 0; i < 40; i++ {
		a.rollover(time.Now().Add(time.Duration(i) * time.Minute))
	}

	snap := a.Snapshot()
	if len(snap.Buckets) != bucketCount {
		t.Errorf("len(Buckets) = %d, want %d", len(snap.Buckets), bucketCount)
	}
}

func TestAggregator_InfluxSinkReceivesRolloverWrites(t *testing.T) {
	sink := &fakeSink{}
	a := New(sink, nil)

	a.apply(event{kind: evSent, endpointKind: model.KindMQTT})
	a.rollover(time.Now())
	a.apply(event{kind: evLatency, latency: 5 * time.Millisecond})
	a.foldLatency(5 * time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.throughput) != 2 {
		t.Errorf("len(throughput writes) = %d, want 2 (mqtt + zmq)", len(sink.throughput))
	}
	if len(sink.errors) != 1 {
		t.Errorf("len(error writes) = %d, want 1", len(sink.errors))
	}
	if len(sink.latencies) != 1 {
		t.Errorf("len(latency writes) = %d, want 1", len(sink.latencies))
	}
}

func TestAggregator_EventChannelFullDropsRatherThanBlocks(t *testing.T) {
	a := New(nil, nil)
	// Never started: no consumer drains a.events, so the channel fills
	// and subsequent sends must drop rather than block this goroutine.
	for i := 0; i < eventQueueSize+10; i++ {
		a.Received(model.KindMQTT)
	}
}

func TestAggregator_SampleRateComputesDeltaOverWindow(t *testing.T) {
	a := New(nil, nil)
	start := time.Now()
	a.sampleRate(start)

	a.mqttSent.Add(10)
	a.sampleRate(start.Add(time.Second))

	snap := a.Snapshot()
	if snap.MessagesPerSecond != 10 {
		t.Errorf("MessagesPerSecond = %v, want 10", snap.MessagesPerSecond)
	}
}
