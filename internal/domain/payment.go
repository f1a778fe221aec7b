package domain

import (
	"math/big"
	"time"
)

// Receipt is proof of an executed on-chain payment. It is produced by the
// payment service and consumed exactly once by the verifier.
type Receipt struct {
	TxHash    string
	AmountWei *big.Int
	Payer     string
}

// Verification is the server-confirmed payment state for one video. Only an
// explicit verifier success response may create one with Verified=true; it
// gates every download and share action.
type Verification struct {
	VideoID    string
	TxHash     string
	AmountWei  *big.Int
	Payer      string
	Verified   bool
	VerifiedAt time.Time
}
