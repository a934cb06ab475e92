package access

import (
	"context"
	"errors"

	domain "github.com/bryanwahyu/facegate/internal/domain/access"
)

// PipelineOracle adapts the decision pipeline to a challenge session's
// oracle. Probe runs the same chain a real identification would, but the
// caller only reads the detected face's attribute bag; the match result is
// thrown away. Identify is the one call whose candidate result counts.
type PipelineOracle struct {
	Svc  *Service
	Opts domain.DecideOptions
}

func (o PipelineOracle) Probe(ctx context.Context, img domain.CapturedImage) (*domain.DetectedFace, error) {
	dec, err := o.Svc.Decide(ctx, img, o.Opts)
	if err != nil {
		if errors.Is(err, domain.ErrNoFaceDetected) {
			return nil, nil
		}
		// A liveness rejection still carries the face and its attributes,
		// which is all a probe needs.
		var lerr *domain.LivenessError
		if errors.As(err, &lerr) && dec != nil {
			return dec.Face, nil
		}
		return nil, err
	}
	return dec.Face, nil
}

func (o PipelineOracle) Identify(ctx context.Context, img domain.CapturedImage) (*domain.Decision, error) {
	return o.Svc.Decide(ctx, img, o.Opts)
}
