package supervisor

import "github.com/zhxiaoyu/zeromqtt/internal/bridge/model"

// Snapshot is the full configuration the Supervisor diffs against on
// every Start or ApplyConfig: the enabled endpoint set plus the mapping
// set. It mirrors what internal/bridgestore.ConfigStore's ListEnabled
// methods return, bundled for atomic application.
type Snapshot struct {
	MQTTEndpoints []model.MQTTEndpoint
	ZMQEndpoints  []model.ZMQEndpoint
	Mappings      []model.Mapping
}

// endpointSet reduces a Snapshot to the map shape mapping.Build wants:
// endpoint ref to kind, enabled endpoints only.
func (s Snapshot) endpointSet() map[model.EndpointRef]model.EndpointKind {
	out := make(map[model.EndpointRef]model.EndpointKind, len(s.MQTTEndpoints)+len(s.ZMQEndpoints))
	for _, e := range s.MQTTEndpoints {
		if e.Enabled {
			out[e.Ref()] = model.KindMQTT
		}
	}
	for _, e := range s.ZMQEndpoints {
		if e.Enabled {
			out[e.Ref()] = model.KindZMQ
		}
	}
	return out
}

// mqttByRef indexes the enabled MQTT endpoints by ref.
func (s Snapshot) mqttByRef() map[model.EndpointRef]model.MQTTEndpoint {
	out := make(map[model.EndpointRef]model.MQTTEndpoint, len(s.MQTTEndpoints))
	for _, e := range s.MQTTEndpoints {
		if e.Enabled {
			out[e.Ref()] = e
		}
	}
	return out
}

// zmqByRef indexes the enabled ZMQ endpoints by ref.
func (s Snapshot) zmqByRef() map[model.EndpointRef]model.ZMQEndpoint {
	out := make(map[model.EndpointRef]model.ZMQEndpoint, len(s.ZMQEndpoints))
	for _, e := range s.ZMQEndpoints {
		if e.Enabled {
			out[e.Ref()] = e
		}
	}
	return out
}

// mqttUnchanged reports whether two MQTT endpoint records are identical
// aside from Enabled — the attribute set spec §4.6 says a reconfigure
// must NOT trigger a respawn over.
func mqttUnchanged(a, b model.MQTTEndpoint) bool {
	a.Enabled, b.Enabled = false, false
	return a == b
}

// zmqUnchanged reports the same for ZMQ endpoint records. ConnectAddrs
// is a slice so it's compared by content, not identity.
func zmqUnchanged(a, b model.ZMQEndpoint) bool {
	if len(a.ConnectAddrs) != len(b.ConnectAddrs) {
		return false
	}
	for i := range a.ConnectAddrs {
		if a.ConnectAddrs[i] != b.ConnectAddrs[i] {
			return false
		}
	}
	return a.ID == b.ID &&
		a.Name == b.Name &&
		a.Role == b.Role &&
		a.BindAddr == b.BindAddr &&
		a.HighWaterMark == b.HighWaterMark &&
		a.ReconnectIntMs == b.ReconnectIntMs
}
