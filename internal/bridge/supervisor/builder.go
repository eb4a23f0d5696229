package supervisor

import (
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/worker"
	mqttinfra "github.com/zhxiaoyu/zeromqtt/internal/infrastructure/mqtt"
)

// defaultPublishQoS is the QoS used when a source message's QoS is
// unknown (spec §6: publish QoS mirrors the source if known, else 0).
const defaultPublishQoS = 0

// Builder constructs a fresh, unstarted Worker for an enabled endpoint
// record. The Supervisor calls it once per spawn — on Start and on any
// reconfiguration that adds or respawns an endpoint.
type Builder interface {
	BuildMQTT(ep model.MQTTEndpoint) worker.Worker
	BuildZMQ(ep model.ZMQEndpoint) worker.Worker
}

// DefaultBuilder constructs real MQTT and ZeroMQ workers wired to a
// shared inbox, stats sink, and logger.
type DefaultBuilder struct {
	Inbox             worker.Inbox
	Stats             worker.StatsSink
	Logger            worker.Logger
	OutboundQueueSize int
}

var _ Builder = DefaultBuilder{}

func (b DefaultBuilder) BuildMQTT(ep model.MQTTEndpoint) worker.Worker {
	cfg := worker.MQTTConfig{
		Conn: mqttinfra.ConnConfig{
			Host:          ep.Host,
			Port:          ep.Port,
			ClientID:      ep.ClientID,
			Username:      ep.Username,
			Password:      ep.Password,
			TLS:           ep.TLS,
			KeepAliveSecs: ep.KeepAliveSec,
			CleanSession:  ep.CleanSession,
			DefaultQoS:    defaultPublishQoS,
		},
		DefaultQoS: defaultPublishQoS,
	}
	return worker.NewMQTTWorker(ep.Ref(), cfg, b.Inbox, b.Stats, b.Logger, b.OutboundQueueSize)
}

func (b DefaultBuilder) BuildZMQ(ep model.ZMQEndpoint) worker.Worker {
	cfg := worker.ZMQConfig{
		Role:           ep.Role,
		BindAddr:       ep.BindAddr,
		ConnectAddrs:   ep.ConnectAddrs,
		HighWaterMark:  ep.HighWaterMark,
		ReconnectIntMs: ep.ReconnectIntMs,
	}
	return worker.NewZMQWorker(ep.Ref(), cfg, b.Inbox, b.Stats, b.Logger, b.OutboundQueueSize)
}
