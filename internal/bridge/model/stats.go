package model

import "time"

// MinuteBucket is one minute's worth of send throughput, for each
// protocol kind, in the 30-minute rolling series.
type MinuteBucket struct {
	Minute    time.Time
	MQTTSent  uint64
	ZMQSent   uint64
}

// StatsSnapshot is a point-in-time read of the aggregator's counters,
// safe to copy and serialize.
type StatsSnapshot struct {
	MQTTReceived uint64
	MQTTSent     uint64
	ZMQReceived  uint64
	ZMQSent      uint64
	Errors       uint64

	// QueueDepth is the sum of outbound channel lengths across all workers.
	QueueDepth int

	// MessagesPerSecond is the delta of the sent counter over the last
	// 1-second window.
	MessagesPerSecond float64

	// AvgLatencyMs is an exponential moving average (coefficient 0.1)
	// over per-router latency samples, in milliseconds.
	AvgLatencyMs float64

	// Buckets holds up to 30 one-minute throughput buckets, oldest first.
	Buckets []MinuteBucket
}
