package domain

import "time"

// SessionState enumerates the stages of the generate → pay → unlock flow.
type SessionState string

const (
	StateIdle            SessionState = "idle"
	StateGenerating      SessionState = "generating"
	StateGenerated       SessionState = "generated"
	StateAwaitingPayment SessionState = "awaiting_payment"
	StatePaymentVerified SessionState = "payment_verified"
	StateDelivered       SessionState = "delivered"
	StateFailed          SessionState = "failed"
)

// FailStage names the stage a session failed in, so retry can re-enter the
// right part of the flow.
type FailStage string

const (
	StageNone         FailStage = ""
	StageGeneration   FailStage = "generation"
	StagePayment      FailStage = "payment"
	StageVerification FailStage = "verification"
)

// Session owns the workflow state for one user's generate/pay/unlock run.
// Each session is independent; there is no cross-session sharing.
type Session struct {
	ID        string
	State     SessionState
	Prompt    string
	VideoID   string
	FailStage FailStage
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}
