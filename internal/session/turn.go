package session

import (
	"context"

	"github.com/qmuntal/stateless"

	"github.com/comigor/chatgpt-local/internal/logger"
)

// TurnState is the state of the request/reply exchange.
type TurnState stateless.State

var (
	TurnIdle      TurnState = "Idle"
	TurnStreaming TurnState = "Streaming"
)

type turnTrigger stateless.Trigger

var (
	triggerSubmit turnTrigger = "Submit"
	triggerFinish turnTrigger = "Finish"
	triggerFail   turnTrigger = "Fail"
	triggerReset  turnTrigger = "Reset"
)

// Turn tracks whether a completion is in flight. Submitting while streaming
// re-enters Streaming: the new request supersedes the old one.
type Turn struct {
	fsm *stateless.StateMachine
}

func NewTurn() *Turn {
	fsm := stateless.NewStateMachine(TurnIdle)

	fsm.Configure(TurnIdle).
		Permit(triggerSubmit, TurnStreaming).
		Ignore(triggerFinish).
		Ignore(triggerFail).
		Ignore(triggerReset).
		OnEntryFrom(triggerFail, func(_ context.Context, args ...any) error {
			logger.L.Debug("turn failed", "args", args)
			return nil
		})

	fsm.Configure(TurnStreaming).
		PermitReentry(triggerSubmit).
		Permit(triggerFinish, TurnIdle).
		Permit(triggerFail, TurnIdle).
		Permit(triggerReset, TurnIdle)

	return &Turn{fsm: fsm}
}

func (t *Turn) fire(trigger turnTrigger, args ...any) {
	if err := t.fsm.Fire(trigger, args...); err != nil {
		logger.L.Error("turn transition rejected", "trigger", trigger, "state", t.State(), "error", err)
	}
}

func (t *Turn) Submit() { t.fire(triggerSubmit) }

// Finish ends a streaming turn. It reports whether a turn was in flight.
func (t *Turn) Finish() bool {
	was := t.Streaming()
	t.fire(triggerFinish)
	return was
}

func (t *Turn) Fail(err error) { t.fire(triggerFail, err) }

func (t *Turn) Reset() { t.fire(triggerReset) }

func (t *Turn) State() TurnState { return t.fsm.MustState().(TurnState) }

func (t *Turn) Streaming() bool { return t.State() == TurnStreaming }
