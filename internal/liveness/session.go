// Package liveness drives the active proof-of-life sequence a capture
// client runs before the final identification call. It is a plain state
// machine over an injected oracle; all timing and abandonment is the
// caller's concern.
package liveness

import (
	"context"
	"errors"

	access "github.com/bryanwahyu/facegate/internal/domain/access"
)

// StepStatus of the current challenge step
type StepStatus string

const (
	StatusWaiting    StepStatus = "waiting"
	StatusProcessing StepStatus = "processing"
	StatusSuccess    StepStatus = "success"
	StatusFailed     StepStatus = "failed"
)

var (
	ErrNotStarted     = errors.New("session not started")
	ErrAlreadyStarted = errors.New("session already started")
	ErrCompleted      = errors.New("session already completed")
)

// Oracle answers challenge probes. Probe returns the detected face (nil when
// none was found); Identify runs the real identification.
type Oracle interface {
	Probe(ctx context.Context, img access.CapturedImage) (*access.DetectedFace, error)
	Identify(ctx context.Context, img access.CapturedImage) (*access.Decision, error)
}

// Challenge is one interactive step with its pass predicate over the
// provider's attribute bag.
type Challenge struct {
	ID          string
	Instruction string
	Passes      func(a access.FaceAttributes) bool
}

const yawThreshold = 10.0

// DefaultChallenges returns the standard smile / turn-left / turn-right
// sequence. Both turn challenges test |yaw| against the same threshold:
// direction is not actually distinguished, only that the head moved.
func DefaultChallenges() []Challenge {
	return []Challenge{
		{
			ID:          "smile",
			Instruction: "Show a happy expression",
			Passes: func(a access.FaceAttributes) bool {
				return a.Emotions["happy"] >= 0.5
			},
		},
		{
			ID:          "turn_left",
			Instruction: "Rotate head slightly to your left",
			Passes:      yawExceeds,
		},
		{
			ID:          "turn_right",
			Instruction: "Rotate head slightly to your right",
			Passes:      yawExceeds,
		},
	}
}

func yawExceeds(a access.FaceAttributes) bool {
	if a.HeadPose == nil {
		return false
	}
	yaw := a.HeadPose.Yaw
	if yaw < 0 {
		yaw = -yaw
	}
	return yaw > yawThreshold
}

// StepResult reports what one Submit did
type StepResult struct {
	Step        int              `json:"step"`
	ChallengeID string           `json:"challengeId,omitempty"`
	Passed      bool             `json:"passed"`
	Final       bool             `json:"final"`
	Completed   bool             `json:"completed"`
	Decision    *access.Decision `json:"decision,omitempty"`
}

// Session is one capture client's challenge run. Step 0 is idle, 1..N are
// active challenges, N+1 is the final identification. A session is owned by
// a single capture flow and is not safe for concurrent use.
type Session struct {
	oracle     Oracle
	challenges []Challenge

	step      int
	status    StepStatus
	completed bool
	decision  *access.Decision
}

func NewSession(oracle Oracle, challenges []Challenge) *Session {
	if len(challenges) == 0 {
		challenges = DefaultChallenges()
	}
	return &Session{oracle: oracle, challenges: challenges}
}

// Start moves Idle → Step 1. Only an explicit start leaves idle.
func (s *Session) Start() error {
	if s.step != 0 {
		return ErrAlreadyStarted
	}
	s.step = 1
	s.status = StatusWaiting
	return nil
}

// Reset returns to idle from any state (retake)
func (s *Session) Reset() {
	s.step = 0
	s.status = ""
	s.completed = false
	s.decision = nil
}

// Step returns the current position: 0 idle, 1..N challenges, N+1 final
func (s *Session) Step() int { return s.step }

// Status of the current step
func (s *Session) Status() StepStatus { return s.status }

// Completed reports whether the final identification has run
func (s *Session) Completed() bool { return s.completed }

// Decision is the final identification outcome, nil until completed
func (s *Session) Decision() *access.Decision { return s.decision }

// Current returns the active challenge, or ok=false when idle or final
func (s *Session) Current() (Challenge, bool) {
	if s.step < 1 || s.step > len(s.challenges) {
		return Challenge{}, false
	}
	return s.challenges[s.step-1], true
}

// Submit evaluates one captured frame against the current step.
//
// On an active challenge step it probes the oracle and applies the step's
// predicate: pass advances (the last pass moves straight to final), fail
// leaves the session on the same step with status failed — there is no retry
// limit, the user retries until they pass or abandon. On the final step it
// issues exactly one identification call; its failure resets the session.
func (s *Session) Submit(ctx context.Context, img access.CapturedImage) (*StepResult, error) {
	switch {
	case s.completed:
		return nil, ErrCompleted
	case s.step == 0:
		return nil, ErrNotStarted
	case s.step > len(s.challenges):
		return s.finalize(ctx, img)
	}

	ch := s.challenges[s.step-1]
	res := &StepResult{Step: s.step, ChallengeID: ch.ID}

	s.status = StatusProcessing
	face, err := s.oracle.Probe(ctx, img)
	if err != nil {
		s.status = StatusFailed
		return nil, err
	}
	if face == nil || !ch.Passes(face.Attributes) {
		s.status = StatusFailed
		return res, nil
	}

	s.status = StatusSuccess
	res.Passed = true
	s.step++
	if s.step > len(s.challenges) {
		s.status = StatusWaiting
		res.Final = true
	} else {
		s.status = StatusWaiting
	}
	return res, nil
}

func (s *Session) finalize(ctx context.Context, img access.CapturedImage) (*StepResult, error) {
	dec, err := s.oracle.Identify(ctx, img)
	if err != nil {
		s.Reset()
		return nil, err
	}
	s.completed = true
	s.status = StatusSuccess
	s.decision = dec
	return &StepResult{
		Step:      s.step,
		Passed:    true,
		Final:     true,
		Completed: true,
		Decision:  dec,
	}, nil
}
