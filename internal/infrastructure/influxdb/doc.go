// Package influxdb provides the bridge's optional InfluxDB sink for the
// Stats Aggregator.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, metric writing, and health monitoring. Mirroring to
// InfluxDB is entirely optional: a bridge with InfluxDB disabled
// operates identically, just without the long-term time-series record.
//
// # Purpose
//
// This package handles time-series storage of:
//   - Per-endpoint send/receive throughput (one-minute rollovers)
//   - Router latency EMA samples
//   - Outbound queue depth
//   - Cumulative error counts
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "bridge",
//	    Bucket:  "bridge-metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteThroughput("mqtt", "1", sent, received)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
package influxdb
