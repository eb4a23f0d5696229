package supervisor

import (
	"context"

	"github.com/google/uuid"
)

// CommandKind enumerates the Control Facade's command-queue message
// kinds (spec §6: Start, Stop, Restart, ApplyConfig).
type CommandKind int

const (
	CmdStart CommandKind = iota
	CmdStop
	CmdRestart
	CmdApplyConfig
)

func (k CommandKind) String() string {
	switch k {
	case CmdStart:
		return "start"
	case CmdStop:
		return "stop"
	case CmdRestart:
		return "restart"
	case CmdApplyConfig:
		return "apply_config"
	default:
		return "unknown"
	}
}

// Command is one entry on the Facade's serialized command queue. Result
// is always non-nil and receives exactly one value once the Supervisor
// finishes processing this command. CorrelationID stamps the command so
// its outcome can be traced through supervisor logs independently of
// any caller-side request ID.
type Command struct {
	Kind          CommandKind
	Snapshot      Snapshot
	CorrelationID string
	Result        chan error
}

// defaultQueueSize bounds the Facade's command channel. The queue is
// meant to hold a handful of in-flight control requests, not act as a
// work queue: enqueueing blocks once full, which is the desired backpressure
// since every reconfiguration must be processed in order.
const defaultQueueSize = 16

// Facade is the bridge's sole externally-callable control surface: a
// buffered channel of Command values that the Supervisor drains one at
// a time, so no two reconfigurations ever race.
//
// The HTTP/REST layer that would sit in front of Facade is out of
// scope; this type is the complete boundary this repository owns.
type Facade struct {
	commands chan Command
}

// NewFacade constructs a Facade. Call Commands to obtain the channel a
// Supervisor's run loop drains.
func NewFacade() *Facade {
	return &Facade{commands: make(chan Command, defaultQueueSize)}
}

// Commands returns the channel the Supervisor's run loop drains.
func (f *Facade) Commands() <-chan Command {
	return f.commands
}

// Start enqueues a Start command and waits for the result.
func (f *Facade) Start(ctx context.Context, snap Snapshot) error {
	return f.send(ctx, Command{Kind: CmdStart, Snapshot: snap})
}

// Stop enqueues a Stop command and waits for the result.
func (f *Facade) Stop(ctx context.Context) error {
	return f.send(ctx, Command{Kind: CmdStop})
}

// Restart enqueues a Restart command (stop, settle, start with snap)
// and waits for the result.
func (f *Facade) Restart(ctx context.Context, snap Snapshot) error {
	return f.send(ctx, Command{Kind: CmdRestart, Snapshot: snap})
}

// ApplyConfig enqueues a diff-apply reconfiguration and waits for the
// result.
func (f *Facade) ApplyConfig(ctx context.Context, snap Snapshot) error {
	return f.send(ctx, Command{Kind: CmdApplyConfig, Snapshot: snap})
}

func (f *Facade) send(ctx context.Context, cmd Command) error {
	cmd.Result = make(chan error, 1)
	cmd.CorrelationID = uuid.NewString()

	select {
	case f.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.Result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
