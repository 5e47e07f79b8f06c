package conversation

// ActionKind is the outcome of evaluating a conversation after a vendor reply.
type ActionKind string

const (
	ActionFinalizeComplete ActionKind = "finalize_complete"
	ActionSendFollowUp     ActionKind = "send_followup"
	ActionFinalizeFailed   ActionKind = "finalize_failed"
)

// Decision carries the action and, for follow-ups, the questions to re-ask.
type Decision struct {
	Kind      ActionKind
	Questions []Question
}

// Decide applies the follow-up policy. Completion wins over the attempt
// budget: a reply that answers everything on the last attempt completes.
func Decide(pendingRequired []Question, attemptCount, maxAttempts int) Decision {
	if len(pendingRequired) == 0 {
		return Decision{Kind: ActionFinalizeComplete}
	}
	if attemptCount >= maxAttempts {
		return Decision{Kind: ActionFinalizeFailed}
	}
	qs := make([]Question, len(pendingRequired))
	copy(qs, pendingRequired)
	return Decision{Kind: ActionSendFollowUp, Questions: qs}
}
