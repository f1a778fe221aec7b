package workflow

import (
	"fmt"

	"miniapp-server/internal/domain"
)

// Event drives the session state machine. Transitions happen only in
// response to a user action or the outcome of the single external call
// that action triggered.
type Event string

const (
	EventSubmitPrompt        Event = "submit_prompt"
	EventGenerationSucceeded Event = "generation_succeeded"
	EventGenerationFailed    Event = "generation_failed"
	EventRequestPayment      Event = "request_payment"
	EventPaymentVerified     Event = "payment_verified"
	EventPaymentFailed       Event = "payment_failed"
	EventVerificationFailed  Event = "verification_failed"
	EventDelivered           Event = "delivered"
)

// Next computes the state a session moves to when an event arrives. The
// failed stage distinguishes which Failed variants an event may leave:
// resubmitting a prompt recovers a generation failure, requesting payment
// recovers a payment or verification failure. An illegal pair returns an
// error and the caller must leave the session untouched.
func Next(state domain.SessionState, stage domain.FailStage, ev Event) (domain.SessionState, error) {
	switch ev {
	case EventSubmitPrompt:
		if state == domain.StateIdle || (state == domain.StateFailed && stage == domain.StageGeneration) {
			return domain.StateGenerating, nil
		}
	case EventGenerationSucceeded:
		if state == domain.StateGenerating {
			return domain.StateGenerated, nil
		}
	case EventGenerationFailed:
		if state == domain.StateGenerating {
			return domain.StateFailed, nil
		}
	case EventRequestPayment:
		if state == domain.StateGenerated {
			return domain.StateAwaitingPayment, nil
		}
		if state == domain.StateFailed && (stage == domain.StagePayment || stage == domain.StageVerification) {
			return domain.StateAwaitingPayment, nil
		}
	case EventPaymentVerified:
		if state == domain.StateAwaitingPayment {
			return domain.StatePaymentVerified, nil
		}
	case EventPaymentFailed, EventVerificationFailed:
		if state == domain.StateAwaitingPayment {
			return domain.StateFailed, nil
		}
	case EventDelivered:
		if state == domain.StatePaymentVerified || state == domain.StateDelivered {
			return domain.StateDelivered, nil
		}
	}
	return state, fmt.Errorf("workflow: %s not allowed in state %s", ev, state)
}
