package conversation

import "fmt"

var allowedTransitions = map[Status][]Status{
	StatusPending:          {StatusInProgress, StatusFailed, StatusCancelled},
	StatusInProgress:       {StatusAwaitingResponse, StatusCompleted, StatusFailed, StatusCancelled},
	StatusAwaitingResponse: {StatusAwaitingResponse, StatusCompleted, StatusFailed, StatusCancelled},
}

// TransitionError reports a status change the state machine rejects.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("conversation: illegal transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves c to the target status or returns a *TransitionError,
// leaving c untouched.
func (c *Conversation) Transition(to Status) error {
	if !CanTransition(c.Status, to) {
		return &TransitionError{From: c.Status, To: to}
	}
	c.Status = to
	return nil
}
