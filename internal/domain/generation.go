package domain

import "fmt"

// FrameCounts lists the frame lengths the inference backend accepts.
var FrameCounts = []int{17, 25, 33, 41}

const (
	MinInferenceSteps = 4
	MaxInferenceSteps = 10
)

// GenerationRequest captures a user's request to produce a video. It is
// immutable once dispatched.
type GenerationRequest struct {
	Prompt         string
	NumFrames      int
	InferenceSteps int
	Seed           int64 // optional, positive when set
}

// Validate rejects requests before any network dispatch. Frame count and
// step count are restricted to the values the backend enumerates.
func (r GenerationRequest) Validate() error {
	if r.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	if !validFrameCount(r.NumFrames) {
		return fmt.Errorf("%w: num_frames must be one of %v", ErrValidation, FrameCounts)
	}
	if r.InferenceSteps < MinInferenceSteps || r.InferenceSteps > MaxInferenceSteps {
		return fmt.Errorf("%w: num_inference_steps must be between %d and %d", ErrValidation, MinInferenceSteps, MaxInferenceSteps)
	}
	if r.Seed < 0 {
		return fmt.Errorf("%w: seed must be positive", ErrValidation)
	}
	return nil
}

func validFrameCount(n int) bool {
	for _, v := range FrameCounts {
		if n == v {
			return true
		}
	}
	return false
}

// GenerationResult is the backend's output for a request: the binary video
// plus the server-assigned opaque identifier. It lives for the session and
// is discarded when the session goes away.
type GenerationResult struct {
	VideoID string
	Data    []byte
	MIME    string
}
