package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteThroughput writes one protocol's send/receive counters for one
// endpoint at the current minute rollover.
//
// Parameters:
//   - endpointKind: "mqtt" or "zmq"
//   - endpointID: stable endpoint identifier as a string
//   - sent, received: counter deltas for the completed minute
func (c *Client) WriteThroughput(endpointKind string, endpointID string, sent, received uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_throughput",
		map[string]string{
			"endpoint_kind": endpointKind,
			"endpoint_id":   endpointID,
		},
		map[string]interface{}{
			"sent":     sent,
			"received": received,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLatency writes the router's current EMA latency sample.
func (c *Client) WriteLatency(latencyMs float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_latency",
		nil,
		map[string]interface{}{
			"avg_latency_ms": latencyMs,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteQueueDepth writes the current outbound queue depth for one
// endpoint, useful for spotting a worker approaching saturation.
func (c *Client) WriteQueueDepth(endpointKind string, endpointID string, depth int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_queue_depth",
		map[string]string{
			"endpoint_kind": endpointKind,
			"endpoint_id":   endpointID,
		},
		map[string]interface{}{
			"depth": depth,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteErrorCount writes the current cumulative error counter for one
// endpoint.
func (c *Client) WriteErrorCount(endpointKind string, endpointID string, errors uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_errors",
		map[string]string{
			"endpoint_kind": endpointKind,
			"endpoint_id":   endpointID,
		},
		map[string]interface{}{
			"errors": errors,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
