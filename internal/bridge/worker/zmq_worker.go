package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/bridgeerr"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
)

// ZMQConfig carries the socket parameters a ZeroMQ worker needs,
// derived from model.ZMQEndpoint.
type ZMQConfig struct {
	Role           model.ZMQRole
	BindAddr       string
	ConnectAddrs   []string
	HighWaterMark  int
	ReconnectIntMs int
}

// zmqWorker is the Worker variant owning one ZeroMQ socket.
type zmqWorker struct {
	ref    model.EndpointRef
	cfg    ZMQConfig
	inbox  Inbox
	stats  StatsSink
	logger Logger

	sockMu sync.RWMutex
	sock   zmq4.Socket

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

var _ Worker = (*zmqWorker)(nil)

// NewZMQWorker constructs a ZeroMQ worker for endpoint ref. Call Start
// to begin connecting.
func NewZMQWorker(ref model.EndpointRef, cfg ZMQConfig, inbox Inbox, stats StatsSink, logger Logger, outboundQueueSize int) *zmqWorker {
	if outboundQueueSize <= 0 {
		outboundQueueSize = defaultOutboundQueueSize
	}
	w := &zmqWorker{
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

func (w *zmqWorker) Endpoint() model.EndpointRef { return w.ref }

// Start opens the socket for the configured role and binds/connects
// its addresses, retrying with capped exponential backoff until one
// attempt binds and connects every configured address, or until ctx is
// cancelled or the worker is shut down.
func (w *zmqWorker) Start(ctx context.Context) error {
	w.setPhase(model.PhaseConnecting)

	backoff := newBackoffState()
	for {
		sock := w.newSocket(ctx)

		if err := w.attachAddresses(sock); err != nil {
			sock.Close()
			w.recordError(err)
			w.setPhase(model.PhaseReconnecting)

			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", bridgeerr.Cancelled, ctx.Err())
			case <-w.done:
				return bridgeerr.Cancelled
			case <-time.After(backoff.Next()):
				w.setPhase(model.PhaseConnecting)
				continue
			}
		}

		w.sockMu.Lock()
		w.sock = sock
		w.sockMu.Unlock()

		w.setPhase(model.PhaseConnected)
		w.applyDesiredSubscriptions(sock)

		w.wg.Add(1)
		go w.sendLoop()

		if w.cfg.Role == model.RoleSub || w.cfg.Role == model.RoleXSub {
			w.wg.Add(1)
			go w.recvLoop()
		}

		return nil
	}
}

func (w *zmqWorker) newSocket(ctx context.Context) zmq4.Socket {
	switch w.cfg.Role {
	case model.RolePub:
		return zmq4.NewPub(ctx)
	case model.RoleSub:
		return zmq4.NewSub(ctx)
	case model.RoleXPub:
		return zmq4.NewXPub(ctx)
	case model.RoleXSub:
		return zmq4.NewXSub(ctx)
	default:
		return zmq4.NewPub(ctx)
	}
}

// attachAddresses binds and/or connects sock per the endpoint's role
// (spec §4.4: pub/xpub bind and/or connect; sub/xsub connect and/or
// bind), and applies the high-water mark.
func (w *zmqWorker) attachAddresses(sock zmq4.Socket) error {
	if w.cfg.HighWaterMark > 0 {
		_ = sock.SetOption(zmq4.OptionHWM, w.cfg.HighWaterMark)
	}

	if w.cfg.BindAddr != "" {
		if err := sock.Listen(w.cfg.BindAddr); err != nil {
			return fmt.Errorf("%w: bind %s: %w", bridgeerr.ConnectionFailed, w.cfg.BindAddr, err)
		}
	}
	for _, addr := range w.cfg.ConnectAddrs {
		if err := sock.Dial(addr); err != nil {
			return fmt.Errorf("%w: dial %s: %w", bridgeerr.ConnectionFailed, addr, err)
		}
	}
	if w.cfg.BindAddr == "" && len(w.cfg.ConnectAddrs) == 0 {
		return fmt.Errorf("%w: endpoint has neither a bind address nor connect addresses", bridgeerr.ConfigInvalid)
	}
	return nil
}

// sendLoop drains the outbound queue and sends two-frame
// topic+payload messages. Start launches it for every socket role,
// sub/xsub included; a failed send is recorded as an error.
func (w *zmqWorker) sendLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case msg := <-w.outbound:
			w.sockMu.RLock()
			sock := w.sock
			w.sockMu.RUnlock()
			if sock == nil {
				continue
			}

			zmsg := zmq4.NewMsgFrom([]byte(msg.Topic), msg.Payload)
			if err := sock.Send(zmsg); err != nil {
				w.recordError(err)
				if w.stats != nil {
					w.stats.Error(w.ref)
				}
				continue
			}
		}
	}
}

// recvLoop reads frames from a sub/xsub socket, decoding the first
// frame as topic and the rest as payload, and delivers to the shared
// inbox.
func (w *zmqWorker) recvLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.sockMu.RLock()
		sock := w.sock
		w.sockMu.RUnlock()
		if sock == nil {
			return
		}

		zmsg, err := sock.Recv()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.recordError(err)
			if w.stats != nil {
				w.stats.Error(w.ref)
			}
			continue
		}
		if len(zmsg.Frames) == 0 {
			continue
		}

		topic := string(zmsg.Frames[0])
		var payload []byte
		if len(zmsg.Frames) > 1 {
			payload = zmsg.Frames[1]
		}

		msg := model.InboundMessage{
			Source:  w.ref,
			Topic:   topic,
			Payload: payload,
			Ingress: time.Now(),
		}

		select {
		case w.inbox <- msg:
		default:
			if w.stats != nil {
				w.stats.Error(w.ref)
			}
		}
	}
}

// SetSubscriptions records set as the worker's desired subscribed
// byte-prefix filters and, if a socket is already open, reconciles it
// immediately. A no-op for pub/xpub sockets. If no socket is open yet,
// the desired set is kept and applied once Start binds/connects it, so
// a reconfiguration issued while the worker is still connecting is
// never silently dropped.
func (w *zmqWorker) SetSubscriptions(ctx context.Context, set []string) error {
	if w.cfg.Role == model.RolePub || w.cfg.Role == model.RoleXPub {
		return nil
	}

	want := make(map[string]struct{}, len(set))
	for _, p := range set {
		want[p] = struct{}{}
	}

	w.sockMu.RLock()
	sock := w.sock
	w.sockMu.RUnlock()

	w.subMu.Lock()
	defer w.subMu.Unlock()
	w.desired = want

	if sock == nil {
		return nil
	}
	return w.reconcileLocked(sock, want)
}

// applyDesiredSubscriptions reconciles a freshly opened socket to the
// last subscription set requested via SetSubscriptions, if any. Called
// from Start once sock is bound/connected.
func (w *zmqWorker) applyDesiredSubscriptions(sock zmq4.Socket) {
	if w.cfg.Role == model.RolePub || w.cfg.Role == model.RoleXPub {
		return
	}

	w.subMu.Lock()
	defer w.subMu.Unlock()
	if w.desired == nil {
		return
	}
	if err := w.reconcileLocked(sock, w.desired); err != nil {
		w.recordError(err)
	}
}

// reconcileLocked diffs want against w.subscriptions and subscribes or
// unsubscribes the difference on sock. Callers must hold subMu.
func (w *zmqWorker) reconcileLocked(sock zmq4.Socket, want map[string]struct{}) error {
	changed := false
	for p := range want {
		if _, ok := w.subscriptions[p]; !ok {
			changed = true
		}
	}
	for p := range w.subscriptions {
		if _, ok := want[p]; !ok {
			changed = true
		}
	}
	if !changed {
		return nil
	}

	for p := range w.subscriptions {
		if _, ok := want[p]; !ok {
			_ = sock.SetOption(zmq4.OptionUnsubscribe, p)
		}
	}
	for p := range want {
		if _, ok := w.subscriptions[p]; !ok {
			if err := sock.SetOption(zmq4.OptionSubscribe, p); err != nil {
				w.recordError(err)
				return fmt.Errorf("%w: subscribing %q: %w", bridgeerr.ConnectionFailed, p, err)
			}
		}
	}

	w.subscriptions = want
	w.generation.Add(1)
	return nil
}

// Publish enqueues msg for asynchronous send. Non-blocking: returns
// bridgeerr.QueueFull if the outbound queue is saturated (the ZeroMQ
// high-water mark is the socket-level backstop; this is the
// application-level one).
func (w *zmqWorker) Publish(ctx context.Context, msg model.OutboundMessage) error {
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

func (w *zmqWorker) Status() model.WorkerState {
	w.subMu.Lock()
	subs := make([]string, 0, len(w.subscriptions))
	for p := range w.subscriptions {
		subs = append(subs, p)
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

// Shutdown closes the socket, then waits at most defaultShutdownDeadline
// for the send and receive loops to exit. Messages still in the
// outbound queue are discarded, not sent. Safe to call more than once.
func (w *zmqWorker) Shutdown(ctx context.Context) error {
	w.doneOnce.Do(func() { close(w.done) })

	w.sockMu.RLock()
	sock := w.sock
	w.sockMu.RUnlock()
	if sock != nil {
		_ = sock.Close()
	}

	drainCtx, cancel := context.WithTimeout(ctx, defaultShutdownDeadline)
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

	w.setPhase(model.PhaseDisconnected)
	return nil
}

func (w *zmqWorker) setPhase(p model.ConnPhase) {
	w.phase.Store(int32(p))
}

func (w *zmqWorker) recordError(err error) {
	if err == nil {
		return
	}
	w.lastErrMu.Lock()
	w.lastErr = err.Error()
	w.lastErrAt = time.Now()
	w.lastErrMu.Unlock()
}
