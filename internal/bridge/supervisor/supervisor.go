// Package supervisor implements the bridge's Bridge Supervisor and
// Control Facade: the owner of the enabled endpoint set, the worker
// table, and the current Mapping Index, reachable only through a single
// serialized command queue.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/bridgeerr"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/mapping"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/router"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/worker"
)

// restartSettleDelay is the pause between Stop and Start inside a
// Restart command, letting OS-level socket teardown (TIME_WAIT on
// bound ZeroMQ endpoints) clear before rebinding.
const restartSettleDelay = 500 * time.Millisecond

// Logger is the minimal logging surface the Supervisor consumes.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ProtocolSummary is the connection summary for one protocol kind in a
// Status snapshot.
type ProtocolSummary struct {
	Total     int
	Connected int
	Errored   int
}

// Status is a point-in-time read of the Supervisor's observable state
// (spec §6: state, uptime_seconds, per-protocol connection summary,
// error count), plus the build version (restored from the original
// implementation's BridgeStatus.version, see DESIGN.md).
type Status struct {
	Version       string
	State         State
	UptimeSeconds int64
	MQTT          ProtocolSummary
	ZMQ           ProtocolSummary
	ErrorCount    uint64
}

// Supervisor owns the worker table and the Mapping Index, and is the
// sole entity that mutates either. It implements router.WorkerTable
// directly: the Router it drives reads the table through Get.
type Supervisor struct {
	builder Builder
	router  *router.Router
	logger  Logger
	version string

	mu        sync.RWMutex
	state     State
	workers   map[model.EndpointRef]worker.Worker
	current   Snapshot
	startedAt time.Time

	runCtx    context.Context
	runCancel context.CancelFunc
	startWG   sync.WaitGroup

	errCount atomic.Uint64
}

// New constructs a Supervisor. r is the Router it will drive via
// SetIndex/Start/Stop; r's WorkerTable must be this Supervisor.
func New(builder Builder, r *router.Router, logger Logger, version string) *Supervisor {
	return &Supervisor{
		builder: builder,
		router:  r,
		logger:  logger,
		version: version,
		state:   StateStopped,
		workers: make(map[model.EndpointRef]worker.Worker),
	}
}

// SetRouter assigns the Router this Supervisor drives. It exists for
// callers that must break the Supervisor/Router construction cycle: the
// Router's WorkerTable is the Supervisor itself, so the Supervisor must
// exist before the Router can be built. Call it before Run.
func (s *Supervisor) SetRouter(r *router.Router) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.router = r
}

// Get resolves a target endpoint to its live Worker, satisfying
// router.WorkerTable.
func (s *Supervisor) Get(ref model.EndpointRef) (worker.Worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[ref]
	return w, ok
}

// Status returns a copy-safe snapshot of the Supervisor's observable
// state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uptime int64
	if s.state == StateRunning && !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	var mqttSummary, zmqSummary ProtocolSummary
	for ref, w := range s.workers {
		summary := &mqttSummary
		if ref.Kind == model.KindZMQ {
			summary = &zmqSummary
		}
		summary.Total++
		switch w.Status().Phase {
		case model.PhaseConnected:
			summary.Connected++
		case model.PhaseErrored:
			summary.Errored++
		}
	}

	return Status{
		Version:       s.version,
		State:         s.state,
		UptimeSeconds: uptime,
		MQTT:          mqttSummary,
		ZMQ:           zmqSummary,
		ErrorCount:    s.errCount.Load(),
	}
}

// Run drains facade's command queue until ctx is cancelled, dispatching
// each command and publishing its result. Commands are processed one
// at a time: no reconfiguration runs concurrently with another.
func (s *Supervisor) Run(ctx context.Context, facade *Facade) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-facade.commands:
			if !ok {
				return
			}
			cmd.Result <- s.dispatch(ctx, cmd)
		}
	}
}

func (s *Supervisor) dispatch(ctx context.Context, cmd Command) error {
	s.logger.Info("supervisor: dispatching command", "correlation_id", cmd.CorrelationID, "kind", cmd.Kind)

	switch cmd.Kind {
	case CmdStart:
		return s.handleStart(ctx, cmd.Snapshot)
	case CmdStop:
		return s.handleStop(ctx)
	case CmdRestart:
		return s.handleRestart(ctx, cmd.Snapshot)
	case CmdApplyConfig:
		return s.handleApplyConfig(ctx, cmd.Snapshot)
	default:
		return fmt.Errorf("%w: unknown command kind %v", bridgeerr.Internal, cmd.Kind)
	}
}

// handleStart loads the snapshot, builds the Mapping Index, spawns one
// worker per enabled endpoint, computes and applies subscription sets,
// and transitions to Running.
func (s *Supervisor) handleStart(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	switch s.state {
	case StateRunning, StateStarting:
		s.mu.Unlock()
		return nil
	case StateErrored:
		s.mu.Unlock()
		return fmt.Errorf("%w: supervisor is errored, restart required", bridgeerr.Internal)
	}
	s.state = StateStarting
	s.mu.Unlock()

	idx, err := mapping.Build(snap.Mappings, snap.endpointSet())
	if err != nil {
		s.setState(StateStopped)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.workers = make(map[model.EndpointRef]worker.Worker)
	s.runCtx = runCtx
	s.runCancel = cancel
	s.mu.Unlock()

	for _, ep := range snap.mqttByRef() {
		s.spawn(ep.Ref(), s.builder.BuildMQTT(ep))
	}
	for _, ep := range snap.zmqByRef() {
		s.spawn(ep.Ref(), s.builder.BuildZMQ(ep))
	}

	s.router.SetIndex(idx)
	s.router.Start()

	s.applySubscriptions(ctx, idx)

	s.mu.Lock()
	s.current = snap
	s.state = StateRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	return nil
}

// spawn registers w in the worker table and launches its connect loop
// in the background: a single worker's connect failures retry
// indefinitely (bounded only by the worker's own backoff schedule and
// runCtx cancellation) and never block Start's caller.
func (s *Supervisor) spawn(ref model.EndpointRef, w worker.Worker) {
	s.mu.Lock()
	s.workers[ref] = w
	runCtx := s.runCtx
	s.mu.Unlock()

	s.startWG.Add(1)
	go func() {
		defer s.startWG.Done()
		if err := w.Start(runCtx); err != nil && !errors.Is(err, bridgeerr.Cancelled) {
			s.logger.Warn("supervisor: worker failed to start", "endpoint", ref, "error", err)
			s.errCount.Add(1)
		}
	}()
}

// handleStop issues shutdown to every worker in parallel, awaits their
// (individually deadline-bounded) completion, stops the router, and
// transitions to Stopped.
func (s *Supervisor) handleStop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateStopping {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	cancel := s.runCancel
	workers := make(map[model.EndpointRef]worker.Worker, len(s.workers))
	for k, v := range s.workers {
		workers[k] = v
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var g errgroup.Group
	for ref, w := range workers {
		w := w
		ref := ref
		g.Go(func() error {
			if err := w.Shutdown(ctx); err != nil {
				s.logger.Warn("supervisor: worker shutdown error", "endpoint", ref, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.startWG.Wait()
	s.router.Stop()

	s.mu.Lock()
	s.workers = make(map[model.EndpointRef]worker.Worker)
	s.state = StateStopped
	s.mu.Unlock()

	return nil
}

// handleRestart is Stop, a fixed settle delay, then Start — restoring
// a behavior the original implementation had and the distilled
// specification dropped (see DESIGN.md).
func (s *Supervisor) handleRestart(ctx context.Context, snap Snapshot) error {
	if err := s.handleStop(ctx); err != nil {
		return err
	}

	select {
	case <-time.After(restartSettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.handleStart(ctx, snap)
}

// handleApplyConfig diffs snap against the currently-applied snapshot
// and reconciles the worker table and Mapping Index to match it,
// without disturbing workers whose configuration is unchanged.
func (s *Supervisor) handleApplyConfig(ctx context.Context, snap Snapshot) error {
	s.mu.RLock()
	state := s.state
	prev := s.current
	s.mu.RUnlock()

	if state == StateErrored {
		return fmt.Errorf("%w: supervisor is errored, restart required", bridgeerr.Internal)
	}
	if state != StateRunning {
		return s.handleStart(ctx, snap)
	}

	idx, err := mapping.Build(snap.Mappings, snap.endpointSet())
	if err != nil {
		return err
	}

	oldMQTT, newMQTT := prev.mqttByRef(), snap.mqttByRef()
	oldZMQ, newZMQ := prev.zmqByRef(), snap.zmqByRef()

	var toShutdown []model.EndpointRef
	var spawnMQTT []model.MQTTEndpoint
	var spawnZMQ []model.ZMQEndpoint

	for ref, oldEp := range oldMQTT {
		newEp, stillEnabled := newMQTT[ref]
		if !stillEnabled {
			toShutdown = append(toShutdown, ref)
			continue
		}
		if !mqttUnchanged(oldEp, newEp) {
			toShutdown = append(toShutdown, ref)
			spawnMQTT = append(spawnMQTT, newEp)
		}
	}
	for ref, newEp := range newMQTT {
		if _, existed := oldMQTT[ref]; !existed {
			spawnMQTT = append(spawnMQTT, newEp)
		}
	}

	for ref, oldEp := range oldZMQ {
		newEp, stillEnabled := newZMQ[ref]
		if !stillEnabled {
			toShutdown = append(toShutdown, ref)
			continue
		}
		if !zmqUnchanged(oldEp, newEp) {
			toShutdown = append(toShutdown, ref)
			spawnZMQ = append(spawnZMQ, newEp)
		}
	}
	for ref, newEp := range newZMQ {
		if _, existed := oldZMQ[ref]; !existed {
			spawnZMQ = append(spawnZMQ, newEp)
		}
	}

	s.shutdownRefs(ctx, toShutdown)

	for _, ep := range spawnMQTT {
		s.spawn(ep.Ref(), s.builder.BuildMQTT(ep))
	}
	for _, ep := range spawnZMQ {
		s.spawn(ep.Ref(), s.builder.BuildZMQ(ep))
	}

	s.router.SetIndex(idx)
	s.applySubscriptions(ctx, idx)

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	return nil
}

func (s *Supervisor) shutdownRefs(ctx context.Context, refs []model.EndpointRef) {
	if len(refs) == 0 {
		return
	}

	s.mu.Lock()
	targets := make(map[model.EndpointRef]worker.Worker, len(refs))
	for _, ref := range refs {
		if w, ok := s.workers[ref]; ok {
			targets[ref] = w
			delete(s.workers, ref)
		}
	}
	s.mu.Unlock()

	var g errgroup.Group
	for ref, w := range targets {
		w := w
		ref := ref
		g.Go(func() error {
			if err := w.Shutdown(ctx); err != nil {
				s.logger.Warn("supervisor: worker shutdown error", "endpoint", ref, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// applySubscriptions recomputes and applies each live worker's
// subscription set from idx. Worker.SetSubscriptions is itself a no-op
// when the set is unchanged, so this is safe to call unconditionally.
func (s *Supervisor) applySubscriptions(ctx context.Context, idx *mapping.Index) {
	for ref, w := range s.snapshotWorkers() {
		var subs []string
		if ref.Kind == model.KindMQTT {
			subs = idx.Subscriptions(ref)
		} else {
			subs = idx.SubscriptionPrefixes(ref)
		}
		if err := w.SetSubscriptions(ctx, subs); err != nil {
			s.logger.Warn("supervisor: set_subscriptions failed", "endpoint", ref, "error", err)
			s.errCount.Add(1)
		}
	}
}

func (s *Supervisor) snapshotWorkers() map[model.EndpointRef]worker.Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.EndpointRef]worker.Worker, len(s.workers))
	for k, v := range s.workers {
		out[k] = v
	}
	return out
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
