package access

import (
	"errors"
	"fmt"
)

// ErrNoImage indicates the request carried no usable image. No remote call
// has been made when this is returned.
var ErrNoImage = errors.New("no image provided")

// ErrNoFaceDetected indicates detection succeeded but found zero faces.
// The decision returned alongside it is already audited as NO_MATCH.
var ErrNoFaceDetected = errors.New("no face detected")

// ErrActuatorUnavailable indicates the door channel is not connected
var ErrActuatorUnavailable = errors.New("door controller not connected")

// LivenessError is a policy rejection, not a failure: the selected face
// carried a liveness score below the configured threshold.
type LivenessError struct {
	Score     float64
	Threshold float64
}

func (e *LivenessError) Error() string {
	return fmt.Sprintf("liveness check failed: score %.3f below threshold %.3f", e.Score, e.Threshold)
}

// StepError tags an upstream failure with the pipeline step it occurred in
// and, when available, the provider's raw error payload.
type StepError struct {
	Step    string
	Payload string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// WrapStep tags err with a step name, carrying payload through when the
// underlying error exposes one.
func WrapStep(step string, err error) error {
	if err == nil {
		return nil
	}
	payload := ""
	var pe interface{ RawPayload() string }
	if errors.As(err, &pe) {
		payload = pe.RawPayload()
	}
	return &StepError{Step: step, Payload: payload, Err: err}
}
