package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/bridgeerr"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
	mqttinfra "github.com/zhxiaoyu/zeromqtt/internal/infrastructure/mqtt"
)

// MQTTConfig carries the per-endpoint connection parameters a MQTT
// worker needs, derived from model.MQTTEndpoint plus the default
// publish QoS spec §6 assigns when a message arrives without a known
// source QoS.
type MQTTConfig struct {
	Conn       mqttinfra.ConnConfig
	DefaultQoS byte
}

// mqttWorker is the Worker variant owning one MQTT broker session.
type mqttWorker struct {
	ref    model.EndpointRef
	cfg    MQTTConfig
	inbox  Inbox
	stats  StatsSink
	logger Logger

	client   *mqttinfra.Client
	clientMu sync.RWMutex

	outbound chan model.OutboundMessage

	subMu         sync.Mutex
	subscriptions map[string]struct{}
	desired       map[string]struct{}
	generation    atomic.Uint64

	phase     atomic.Int32
	lastErrMu sync.Mutex
	lastErr   string
	lastErrAt time.Time

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

var _ Worker = (*mqttWorker)(nil)

// Logger is the minimal logging surface workers consume.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewMQTTWorker constructs an MQTT worker for endpoint ref. Call Start
// to begin connecting.
func NewMQTTWorker(ref model.EndpointRef, cfg MQTTConfig, inbox Inbox, stats StatsSink, logger Logger, outboundQueueSize int) *mqttWorker {
	if outboundQueueSize <= 0 {
		outboundQueueSize = defaultOutboundQueueSize
	}
	w := &mqttWorker{
		ref:           ref,
		cfg:           cfg,
		inbox:         inbox,
		stats:         stats,
		logger:        logger,
		outbound:      make(chan model.OutboundMessage, outboundQueueSize),
		subscriptions: make(map[string]struct{}),
		done:          make(chan struct{}),
	}
	w.phase.Store(int32(model.PhaseDisconnected))
	return w
}

func (w *mqttWorker) Endpoint() model.EndpointRef { return w.ref }

// Start connects to the broker, retrying with capped exponential
// backoff until the initial connection succeeds or ctx is cancelled.
// Once connected, paho's own reconnect loop (configured with the same
// backoff bounds) takes over on subsequent connection loss.
func (w *mqttWorker) Start(ctx context.Context) error {
	w.setPhase(model.PhaseConnecting)

	backoff := newBackoffState()
	for {
		client, err := mqttinfra.Connect(w.cfg.Conn)
		if err == nil {
			w.clientMu.Lock()
			w.client = client
			w.clientMu.Unlock()

			client.SetLogger(loggerAdapter{w.logger})
			client.SetOnConnect(func() {
				w.setPhase(model.PhaseConnected)
				w.applyDesiredSubscriptions()
			})
			client.SetOnDisconnect(func(err error) {
				w.setPhase(model.PhaseReconnecting)
				w.recordError(err)
			})

			w.setPhase(model.PhaseConnected)
			w.applyDesiredSubscriptions()
			w.wg.Add(1)
			go w.sendLoop()
			return nil
		}

		w.recordError(err)
		w.setPhase(model.PhaseReconnecting)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", bridgeerr.Cancelled, ctx.Err())
		case <-w.done:
			return bridgeerr.Cancelled
		case <-time.After(backoff.Next()):
			w.setPhase(model.PhaseConnecting)
		}
	}
}

// sendLoop drains the outbound queue and publishes to the broker. Once
// the worker is shut down it keeps publishing until the queue is empty,
// then exits.
func (w *mqttWorker) sendLoop() {
	defer w.wg.Done()
	for {
		var msg model.OutboundMessage
		select {
		case <-w.done:
			select {
			case msg = <-w.outbound:
			default:
				return
			}
		case msg = <-w.outbound:
		}

		w.clientMu.RLock()
		client := w.client
		w.clientMu.RUnlock()
		if client == nil {
			continue
		}
		if err := client.Publish(msg.Topic, msg.Payload, msg.QoS, msg.Retained); err != nil {
			w.recordError(err)
			if w.stats != nil {
				w.stats.Error(w.ref)
			}
		}
	}
}

// SetSubscriptions records set as the worker's desired subscription set
// and, if a client is already connected, reconciles the broker to it
// immediately. If no client is connected yet, the desired set is kept
// and applied once Start's OnConnect handler fires, so a reconfiguration
// issued while a worker is still connecting is never silently dropped.
func (w *mqttWorker) SetSubscriptions(ctx context.Context, set []string) error {
	want := make(map[string]struct{}, len(set))
	for _, t := range set {
		want[t] = struct{}{}
	}

	w.clientMu.RLock()
	client := w.client
	w.clientMu.RUnlock()

	w.subMu.Lock()
	defer w.subMu.Unlock()
	w.desired = want

	if client == nil {
		return nil
	}
	return w.reconcileLocked(client, want)
}

// applyDesiredSubscriptions reconciles a freshly (re)connected client to
// the last subscription set requested via SetSubscriptions, if any.
// Called from Start on the initial connect and from the client's
// OnConnect handler on every subsequent reconnect.
func (w *mqttWorker) applyDesiredSubscriptions() {
	w.clientMu.RLock()
	client := w.client
	w.clientMu.RUnlock()
	if client == nil {
		return
	}

	w.subMu.Lock()
	defer w.subMu.Unlock()
	if w.desired == nil {
		return
	}
	if err := w.reconcileLocked(client, w.desired); err != nil {
		w.recordError(err)
	}
}

// reconcileLocked diffs want against w.subscriptions and subscribes or
// unsubscribes the difference on client. Callers must hold subMu.
func (w *mqttWorker) reconcileLocked(client *mqttinfra.Client, want map[string]struct{}) error {
	changed := false
	for t := range want {
		if _, ok := w.subscriptions[t]; !ok {
			changed = true
		}
	}
	for t := range w.subscriptions {
		if _, ok := want[t]; !ok {
			changed = true
		}
	}
	if !changed {
		return nil
	}

	for t := range w.subscriptions {
		if _, ok := want[t]; !ok {
			if err := client.Unsubscribe(t); err != nil {
				w.recordError(err)
			}
		}
	}

	for t := range want {
		if _, ok := w.subscriptions[t]; !ok {
			if err := client.Subscribe(t, defaultSubscribeQoS, w.deliver); err != nil {
				w.recordError(err)
				return fmt.Errorf("%w: subscribing %q: %w", bridgeerr.ConnectionFailed, t, err)
			}
		}
	}

	w.subscriptions = want
	w.generation.Add(1)
	return nil
}

// defaultSubscribeQoS is the default MQTT subscription QoS (spec §6).
const defaultSubscribeQoS = 1

// deliver tags an inbound message with this worker's endpoint identity
// and pushes it to the shared inbox. Non-blocking: a full inbox drops
// the message and increments the error counter rather than stalling
// the MQTT client's delivery goroutine.
func (w *mqttWorker) deliver(topic string, payload []byte) error {
	msg := model.InboundMessage{
		Source:  w.ref,
		Topic:   topic,
		Payload: payload,
		QoS:     defaultSubscribeQoS,
		Ingress: time.Now(),
	}

	select {
	case w.inbox <- msg:
	default:
		if w.stats != nil {
			w.stats.Error(w.ref)
		}
	}
	return nil
}

// Publish enqueues msg for asynchronous send. Non-blocking: returns
// bridgeerr.QueueFull if the outbound queue is saturated.
func (w *mqttWorker) Publish(ctx context.Context, msg model.OutboundMessage) error {
	select {
	case w.outbound <- msg:
		return nil
	default:
		if w.stats != nil {
			w.stats.Error(w.ref)
		}
		return bridgeerr.QueueFull
	}
}

func (w *mqttWorker) Status() model.WorkerState {
	w.subMu.Lock()
	subs := make([]string, 0, len(w.subscriptions))
	for t := range w.subscriptions {
		subs = append(subs, t)
	}
	w.subMu.Unlock()

	w.lastErrMu.Lock()
	lastErr, lastErrAt := w.lastErr, w.lastErrAt
	w.lastErrMu.Unlock()

	return model.WorkerState{
		Endpoint:      w.ref,
		Phase:         model.ConnPhase(w.phase.Load()),
		Subscriptions: subs,
		Generation:    w.generation.Load(),
		LastError:     lastErr,
		LastErrorAt:   lastErrAt,
	}
}

// Shutdown disconnects cleanly, draining pending publishes bounded by
// defaultShutdownDeadline. Safe to call more than once.
func (w *mqttWorker) Shutdown(ctx context.Context) error {
	w.doneOnce.Do(func() { close(w.done) })

	deadline := defaultShutdownDeadline
	drainCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-drainCtx.Done():
	}

	w.clientMu.RLock()
	client := w.client
	w.clientMu.RUnlock()
	if client != nil {
		_ = client.Close()
	}

	w.setPhase(model.PhaseDisconnected)
	return nil
}

func (w *mqttWorker) setPhase(p model.ConnPhase) {
	w.phase.Store(int32(p))
}

func (w *mqttWorker) recordError(err error) {
	if err == nil {
		return
	}
	w.lastErrMu.Lock()
	w.lastErr = err.Error()
	w.lastErrAt = time.Now()
	w.lastErrMu.Unlock()
}

// loggerAdapter adapts worker.Logger to mqttinfra.Logger (Error/Warn only).
type loggerAdapter struct{ l Logger }

func (a loggerAdapter) Error(msg string, args ...any) {
	if a.l != nil {
		a.l.Error(msg, args...)
	}
}

func (a loggerAdapter) Warn(msg string, args ...any) {
	if a.l != nil {
		a.l.Warn(msg, args...)
	}
}
