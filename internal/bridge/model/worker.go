package model

import "time"

// ConnPhase is a worker's connection lifecycle phase.
type ConnPhase int

const (
	PhaseDisconnected ConnPhase = iota
	PhaseConnecting
	PhaseConnected
	PhaseReconnecting
	PhaseErrored
)

func (p ConnPhase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// WorkerState is a point-in-time snapshot of one worker's status, safe to
// copy and hand to callers outside the worker's own goroutine.
type WorkerState struct {
	Endpoint      EndpointRef
	Phase         ConnPhase
	Subscriptions []string
	Generation    uint64
	LastError     string
	LastErrorAt   time.Time
}

// InboundMessage is a message received by a worker, tagged with its
// source endpoint identity and an ingress timestamp used for latency
// accounting in the router.
type InboundMessage struct {
	Source   EndpointRef
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
	Ingress  time.Time
}

// OutboundMessage is a send command dispatched by the router to a
// target worker's egress channel.
type OutboundMessage struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}
