package events

const (
	// KindTurnStarted identifies the start of a turn.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnCompleted identifies a turn that finished normally.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnFailed identifies a turn that ended with an error.
	KindTurnFailed Kind = "turn_state.failed"
	// KindTurnCancelled identifies turn cancellation.
	KindTurnCancelled Kind = "turn_state.cancelled"
)

// TurnStarted marks the start of the turn with the given epoch.
type TurnStarted struct {
	Base
	Epoch uint64
}

// NewTurnStarted creates a turn started event.
func NewTurnStarted(epoch uint64) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted), Epoch: epoch}
}

// TurnCompleted marks a turn whose response finished normally.
type TurnCompleted struct {
	Base
	Epoch uint64
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(epoch uint64) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), Epoch: epoch}
}

// TurnFailed marks a turn that ended with an error.
type TurnFailed struct {
	Base
	Epoch uint64
	Err   error
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(epoch uint64, err error) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), Epoch: epoch, Err: err}
}

// TurnCancelled marks cancellation of the current turn.
type TurnCancelled struct {
	Base
	Epoch uint64
}

// NewTurnCancelled creates a turn cancelled event.
func NewTurnCancelled(epoch uint64) TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled), Epoch: epoch}
}
