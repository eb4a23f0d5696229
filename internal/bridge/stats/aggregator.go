// Package stats implements the bridge's Stats Aggregator: a single task
// that drains counter-delta notifications from every worker and the
// router over a non-blocking lossy channel, maintains running counters
// and a rolling throughput history, and optionally mirrors per-minute
// rollups to InfluxDB.
package stats

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
)

const (
	// eventQueueSize bounds the lossy intake channel. A full channel
	// drops the event rather than stalling the caller.
	eventQueueSize = 4096

	// emaCoefficient is the smoothing factor applied to each new
	// latency sample.
	emaCoefficient = 0.1

	// bucketCount is the length of the rolling per-minute throughput
	// history.
	bucketCount = 30

	// queueFullLogInterval rate-limits QueueFull warnings per endpoint.
	queueFullLogInterval = 5 * time.Second
)

type eventKind int

const (
	evReceived eventKind = iota
	evSent
	evError
	evQueueDrop
	evLatency
)

type event struct {
	kind         eventKind
	endpointKind model.EndpointKind
	endpoint     model.EndpointRef
	latency      time.Duration
}

// Logger is the minimal logging surface the aggregator consumes for
// rate-limited QueueFull warnings.
type Logger interface {
	Warn(msg string, args ...any)
}

// InfluxSink receives per-minute rollup writes. Satisfied by
// *influxdb.Client; nil disables mirroring entirely.
type InfluxSink interface {
	WriteThroughput(endpointKind string, endpointID string, sent, received uint64)
	WriteLatency(latencyMs float64)
	WriteErrorCount(endpointKind string, endpointID string, errors uint64)
}

// Aggregator is the bridge's Stats Aggregator. It is safe for
// concurrent use: every exported method other than Start/Stop may be
// called from any goroutine.
type Aggregator struct {
	events chan event

	mqttReceived atomic.Uint64
	mqttSent     atomic.Uint64
	zmqReceived  atomic.Uint64
	zmqSent      atomic.Uint64
	errorsTotal  atomic.Uint64
	queueDrops   atomic.Uint64

	// minuteMQTTSent/minuteZMQSent accumulate the current, not-yet-
	// rolled minute bucket.
	minuteMQTTSent atomic.Uint64
	minuteZMQSent  atomic.Uint64

	// rateMu/lastSentSnapshot/lastRateAt back the one-second
	// messages-per-second sample.
	rateMu           sync.Mutex
	lastSentSnapshot uint64
	lastRateAt       time.Time
	currentRate      float64

	// emaMu/avgLatencyMs back the EMA latency sample.
	emaMu        sync.Mutex
	avgLatencyMs float64

	// bucketsMu/buckets back the 30-entry rolling throughput history.
	bucketsMu sync.Mutex
	buckets   []model.MinuteBucket

	// errLogMu/lastQueueFullLog rate-limit QueueFull warnings per endpoint.
	errLogMu         sync.Mutex
	lastQueueFullLog map[model.EndpointRef]time.Time

	sink   InfluxSink
	logger Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs an Aggregator. sink may be nil to disable InfluxDB
// mirroring; logger may be nil to disable QueueFull warnings.
func New(sink InfluxSink, logger Logger) *Aggregator {
	return &Aggregator{
		events:           make(chan event, eventQueueSize),
		lastQueueFullLog: make(map[model.EndpointRef]time.Time),
		sink:             sink,
		logger:           logger,
		done:             make(chan struct{}),
	}
}

// Received records one inbound message counted against kind. Never
// blocks: a full intake channel silently drops the event.
func (a *Aggregator) Received(kind model.EndpointKind) {
	a.enqueue(event{kind: evReceived, endpointKind: kind})
}

// Sent records one outbound message delivered to a worker's send path,
// counted against kind.
func (a *Aggregator) Sent(kind model.EndpointKind) {
	a.enqueue(event{kind: evSent, endpointKind: kind})
}

// Error records an error reported against endpoint, incrementing the
// aggregate error counter. No per-endpoint error count is kept.
func (a *Aggregator) Error(endpoint model.EndpointRef) {
	a.enqueue(event{kind: evError, endpoint: endpoint})
}

// QueueDrop records a non-fatal QueueFull at router enqueue or worker
// wire send, and rate-limits a warning log per endpoint.
func (a *Aggregator) QueueDrop(endpoint model.EndpointRef) {
	a.enqueue(event{kind: evQueueDrop, endpoint: endpoint})
}

// Latency records one router latency sample, folded into the EMA.
func (a *Aggregator) Latency(sample time.Duration) {
	a.enqueue(event{kind: evLatency, latency: sample})
}

func (a *Aggregator) enqueue(e event) {
	select {
	case a.events <- e:
	default:
	}
}

// Start launches the aggregator's drain loop in a new goroutine; the
// rate and minute rollover tickers run inside that loop.
func (a *Aggregator) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.run(ctx)
}

// Stop signals the drain loop to exit and waits for it to finish.
func (a *Aggregator) Stop() {
	close(a.done)
	a.wg.Wait()
}

func (a *Aggregator) run(ctx context.Context) {
	defer a.wg.Done()

	rateTicker := time.NewTicker(time.Second)
	defer rateTicker.Stop()

	minuteTicker := time.NewTicker(time.Minute)
	defer minuteTicker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ctx.Done():
			return
		case e := <-a.events:
			a.apply(e)
		case now := <-rateTicker.C:
			a.sampleRate(now)
		case now := <-minuteTicker.C:
			a.rollover(now)
		}
	}
}

func (a *Aggregator) apply(e event) {
	switch e.kind {
	case evReceived:
		a.bumpCounter(e.endpointKind, &a.mqttReceived, &a.zmqReceived)
	case evSent:
		a.bumpCounter(e.endpointKind, &a.mqttSent, &a.zmqSent)
		a.bumpMinute(e.endpointKind)
	case evError:
		a.errorsTotal.Add(1)
	case evQueueDrop:
		a.queueDrops.Add(1)
		a.warnQueueFull(e.endpoint)
	case evLatency:
		a.foldLatency(e.latency)
	}
}

func (a *Aggregator) bumpCounter(kind model.EndpointKind, mqtt, zmq *atomic.Uint64) {
	if kind == model.KindMQTT {
		mqtt.Add(1)
	} else {
		zmq.Add(1)
	}
}

func (a *Aggregator) bumpMinute(kind model.EndpointKind) {
	if kind == model.KindMQTT {
		a.minuteMQTTSent.Add(1)
	} else {
		a.minuteZMQSent.Add(1)
	}
}

func (a *Aggregator) warnQueueFull(endpoint model.EndpointRef) {
	if a.logger == nil {
		return
	}
	a.errLogMu.Lock()
	last, seen := a.lastQueueFullLog[endpoint]
	now := time.Now()
	if seen && now.Sub(last) < queueFullLogInterval {
		a.errLogMu.Unlock()
		return
	}
	a.lastQueueFullLog[endpoint] = now
	a.errLogMu.Unlock()

	a.logger.Warn("stats: queue full", "endpoint_kind", endpoint.Kind, "endpoint_id", endpoint.ID)
}

func (a *Aggregator) foldLatency(sample time.Duration) {
	ms := float64(sample) / float64(time.Millisecond)

	a.emaMu.Lock()
	if a.avgLatencyMs == 0 {
		a.avgLatencyMs = ms
	} else {
		a.avgLatencyMs = emaCoefficient*ms + (1-emaCoefficient)*a.avgLatencyMs
	}
	latency := a.avgLatencyMs
	a.emaMu.Unlock()

	if a.sink != nil {
		a.sink.WriteLatency(latency)
	}
}

func (a *Aggregator) sampleRate(now time.Time) {
	sent := a.mqttSent.Load() + a.zmqSent.Load()

	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	if a.lastRateAt.IsZero() {
		a.lastRateAt = now
		a.lastSentSnapshot = sent
		return
	}

	elapsed := now.Sub(a.lastRateAt).Seconds()
	if elapsed <= 0 {
		return
	}
	delta := sent - a.lastSentSnapshot
	a.currentRate = float64(delta) / elapsed

	a.lastRateAt = now
	a.lastSentSnapshot = sent
}

func (a *Aggregator) rollover(minute time.Time) {
	mqttSent := a.minuteMQTTSent.Swap(0)
	zmqSent := a.minuteZMQSent.Swap(0)

	bucket := model.MinuteBucket{
		Minute:   minute.Truncate(time.Minute),
		MQTTSent: mqttSent,
		ZMQSent:  zmqSent,
	}

	a.bucketsMu.Lock()
	a.buckets = append(a.buckets, bucket)
	if len(a.buckets) > bucketCount {
		a.buckets = a.buckets[len(a.buckets)-bucketCount:]
	}
	a.bucketsMu.Unlock()

	if a.sink != nil {
		a.emaMu.Lock()
		latency := a.avgLatencyMs
		a.emaMu.Unlock()

		a.sink.WriteThroughput("mqtt", "_all", mqttSent, 0)
		a.sink.WriteThroughput("zmq", "_all", zmqSent, 0)
		a.sink.WriteErrorCount("_all", "_all", a.errorsTotal.Load())
		a.sink.WriteLatency(latency)
	}
}

// Snapshot returns a point-in-time, copy-safe read of every counter,
// the current instantaneous rate, the latency EMA, and the rolling
// throughput history.
func (a *Aggregator) Snapshot() model.StatsSnapshot {
	a.rateMu.Lock()
	rate := a.currentRate
	a.rateMu.Unlock()

	a.emaMu.Lock()
	latency := a.avgLatencyMs
	a.emaMu.Unlock()

	a.bucketsMu.Lock()
	buckets := make([]model.MinuteBucket, len(a.buckets))
	copy(buckets, a.buckets)
	a.bucketsMu.Unlock()

	return model.StatsSnapshot{
		MQTTReceived:      a.mqttReceived.Load(),
		MQTTSent:          a.mqttSent.Load(),
		ZMQReceived:       a.zmqReceived.Load(),
		ZMQSent:           a.zmqSent.Load(),
		Errors:            a.errorsTotal.Load(),
		MessagesPerSecond: roundedOrZero(rate),
		AvgLatencyMs:      latency,
		Buckets:           buckets,
	}
}

// QueueDropCount returns the cumulative count of QueueFull events,
// exposed separately from StatsSnapshot for supervisor status reporting.
func (a *Aggregator) QueueDropCount() uint64 {
	return a.queueDrops.Load()
}

func roundedOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
