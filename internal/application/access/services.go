package access

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	domain "github.com/bryanwahyu/facegate/internal/domain/access"
)

// verifyMatchThreshold is the fixed 1:1 decision boundary on the provider's
// average confidence.
const verifyMatchThreshold = 0.7

// DefaultUnlockDuration is how long the relay keeps the door open
const DefaultUnlockDuration = 5 * time.Second

// Service implements the access use-cases. All collaborators are injected;
// the service never constructs its own clients. Safe for concurrent use:
// each call runs its own sequential chain over shared stateless ports.
type Service struct {
	Recog  domain.Recognizer
	Assets domain.AssetStore
	Audit  domain.AuditLog
	Door   domain.Actuator
	Clock  Clock

	// Selection policies; nil means provider order (the default policy).
	SelectFace      domain.FaceSelector
	SelectCandidate domain.CandidateSelector

	// HTTPClient is used to re-fetch enrollment photos by URL
	HTTPClient *http.Client

	UnlockDuration time.Duration
}

// Clock abstraction supaya gampang ditest
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

//
// ==== USE CASES ====
//

// EnrollCommand registers a new identity in the provider registry
type EnrollCommand struct {
	DetectionID string
	Name        string
	Meta        map[string]any
	ImageURL    string
}

// VerifyOutcome is the result of a 1:1 comparison of two captures
type VerifyOutcome struct {
	Match      bool                 `json:"match"`
	Confidence float64              `json:"confidence"`
	Image1URL  string               `json:"image1Url"`
	Image2URL  string               `json:"image2Url"`
	Face1      *domain.DetectedFace `json:"face1"`
	Face2      *domain.DetectedFace `json:"face2"`
}

// Decide runs the full chain: upload → detect → liveness gate → search →
// decide → actuate → audit. Every step is a potential early exit; audit and
// actuation failures degrade the result instead of failing it.
//
// On ErrNoFaceDetected and LivenessError the returned decision is still
// populated (and audited) so callers can surface the image URL and log id.
func (s *Service) Decide(ctx context.Context, img domain.CapturedImage, opts domain.DecideOptions) (*domain.Decision, error) {
	if len(img.Data) == 0 {
		return nil, domain.ErrNoImage
	}

	url, err := s.Assets.Put(ctx, img)
	if err != nil {
		return nil, domain.WrapStep("upload", err)
	}

	faces, err := s.Recog.Detect(ctx, img)
	if err != nil {
		return nil, domain.WrapStep("detect", err)
	}
	if len(faces) == 0 {
		dec := &domain.Decision{Status: domain.StatusNoMatch, ImageURL: url}
		dec.LogID = s.writeAudit(ctx, dec, map[string]any{"error": "no face detected"})
		return dec, domain.ErrNoFaceDetected
	}

	face := s.selectFace(faces)
	dec := &domain.Decision{
		Status:      domain.StatusNoMatch,
		ImageURL:    url,
		DetectionID: face.ID,
		Face:        face,
	}

	// Liveness gate: skip-if-absent. The provider only attaches a score when
	// liveness extraction is enabled, and its absence is not a failure.
	if face.Attributes.Liveness != nil && *face.Attributes.Liveness < opts.LivenessThreshold {
		lerr := &domain.LivenessError{Score: *face.Attributes.Liveness, Threshold: opts.LivenessThreshold}
		dec.Status = domain.StatusError
		dec.LogID = s.writeAudit(ctx, dec, map[string]any{
			"error": "liveness check failed",
			"score": lerr.Score,
		})
		return dec, lerr
	}

	cands, err := s.Recog.Search(ctx, face.ID, domain.SearchOptions{
		Limit:     opts.MaxCandidates,
		Threshold: opts.SimilarityThreshold,
	})
	if err != nil {
		return nil, domain.WrapStep("search", err)
	}

	dec.Matches = cands
	dec.BestMatch = s.selectCandidate(cands)
	if dec.BestMatch != nil {
		dec.Status = domain.StatusMatch
	}

	meta := map[string]any{"matches_count": len(cands)}
	if dec.Status == domain.StatusMatch {
		best := dec.BestMatch
		dec.DoorOpened = s.Door.OpenDoor(ctx, domain.OpenCommand{
			Duration: s.unlockDuration(),
			UserID:   best.Card.ID,
			UserName: best.Card.Name,
		})
		if !dec.DoorOpened {
			log.Printf("door open command not delivered for card=%s", best.Card.ID)
		}
		meta["best_match"] = map[string]any{"card_id": best.Card.ID, "name": best.Card.Name}
		meta["door_opened"] = dec.DoorOpened
	}
	dec.LogID = s.writeAudit(ctx, dec, meta)

	return dec, nil
}

// Detect uploads the capture and returns the provider's detections without
// running the rest of the chain. Used by capture clients that only need the
// attribute bag or a fresh detection id for enrollment.
func (s *Service) Detect(ctx context.Context, img domain.CapturedImage) (string, []domain.DetectedFace, error) {
	if len(img.Data) == 0 {
		return "", nil, domain.ErrNoImage
	}
	url, err := s.Assets.Put(ctx, img)
	if err != nil {
		return "", nil, domain.WrapStep("upload", err)
	}
	faces, err := s.Recog.Detect(ctx, img)
	if err != nil {
		return "", nil, domain.WrapStep("detect", err)
	}
	return url, faces, nil
}

// Enroll creates a card in the provider registry and, when a detection id is
// supplied, attaches the most recent detection to it. A supplied image URL
// that cannot be re-fetched degrades to a warning, not an error.
func (s *Service) Enroll(ctx context.Context, cmd EnrollCommand) (*domain.Card, error) {
	if cmd.Name == "" {
		return nil, fmt.Errorf("enroll: name is required")
	}

	galleries, err := s.Recog.ListGalleries(ctx)
	if err != nil {
		return nil, domain.WrapStep("galleries", err)
	}
	if len(galleries) == 0 {
		return nil, domain.WrapStep("galleries", fmt.Errorf("provider has no galleries configured"))
	}

	card, err := s.Recog.CreateCard(ctx, domain.CreateCardRequest{
		Name:      cmd.Name,
		Meta:      cmd.Meta,
		GalleryID: galleries[0].ID,
	})
	if err != nil {
		return nil, domain.WrapStep("enroll", err)
	}

	if cmd.DetectionID != "" {
		if err := s.Recog.AttachDetection(ctx, card.ID, cmd.DetectionID); err != nil {
			return nil, domain.WrapStep("enroll", err)
		}
	}

	if cmd.ImageURL != "" {
		if img, err := s.fetchImage(ctx, cmd.ImageURL); err != nil {
			log.Printf("enroll: could not re-fetch %s, continuing without photo: %v", cmd.ImageURL, err)
		} else if err := s.Recog.AttachPhoto(ctx, card.ID, img); err != nil {
			log.Printf("enroll: could not attach photo to card %s: %v", card.ID, err)
		}
	}

	return card, nil
}

// Verify uploads and detects both captures, then runs a 1:1 comparison.
// Match is decided on the provider's average confidence.
func (s *Service) Verify(ctx context.Context, img1, img2 domain.CapturedImage) (*VerifyOutcome, error) {
	if len(img1.Data) == 0 || len(img2.Data) == 0 {
		return nil, domain.ErrNoImage
	}

	url1, err := s.Assets.Put(ctx, img1)
	if err != nil {
		return nil, domain.WrapStep("upload", err)
	}
	url2, err := s.Assets.Put(ctx, img2)
	if err != nil {
		return nil, domain.WrapStep("upload", err)
	}

	faces1, err := s.Recog.Detect(ctx, img1)
	if err != nil {
		return nil, domain.WrapStep("detect", err)
	}
	if len(faces1) == 0 {
		return nil, domain.ErrNoFaceDetected
	}
	faces2, err := s.Recog.Detect(ctx, img2)
	if err != nil {
		return nil, domain.WrapStep("detect", err)
	}
	if len(faces2) == 0 {
		return nil, domain.ErrNoFaceDetected
	}

	f1 := s.selectFace(faces1)
	f2 := s.selectFace(faces2)

	res, err := s.Recog.Verify(ctx, f1.ID, f2.ID)
	if err != nil {
		return nil, domain.WrapStep("verify", err)
	}

	return &VerifyOutcome{
		Match:      res.AverageConfidence >= verifyMatchThreshold,
		Confidence: res.AverageConfidence,
		Image1URL:  url1,
		Image2URL:  url2,
		Face1:      f1,
		Face2:      f2,
	}, nil
}

// OpenDoor publishes a manual unlock command
func (s *Service) OpenDoor(ctx context.Context, duration time.Duration, userName string) bool {
	if duration <= 0 {
		duration = s.unlockDuration()
	}
	return s.Door.OpenDoor(ctx, domain.OpenCommand{Duration: duration, UserName: userName})
}

// RecentActivity exposes the audit read side
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]*domain.AuditRecord, error) {
	return s.Audit.Latest(ctx, limit)
}

// ActivitySummary counts decisions per status over the last N days
func (s *Service) ActivitySummary(ctx context.Context, sinceDays int) (map[domain.Status]int, error) {
	return s.Audit.Summary(ctx, sinceDays)
}

// writeAudit appends one record and swallows failure: a lost audit row must
// never alter the already-computed decision. Returns nil on failure.
func (s *Service) writeAudit(ctx context.Context, dec *domain.Decision, meta map[string]any) *string {
	rec := &domain.AuditRecord{
		CreatedAt:   s.now(),
		ImageURL:    dec.ImageURL,
		DetectionID: dec.DetectionID,
		Status:      dec.Status,
		Metadata:    meta,
	}
	if dec.BestMatch != nil {
		id := dec.BestMatch.Card.ID
		conf := dec.BestMatch.Similarity
		rec.MatchedCardID = &id
		rec.Confidence = &conf
	}
	logID, err := s.Audit.Append(ctx, rec)
	if err != nil {
		log.Printf("audit append failed (decision stands): %v", err)
		return nil
	}
	return &logID
}

func (s *Service) fetchImage(ctx context.Context, url string) (domain.CapturedImage, error) {
	httpc := s.HTTPClient
	if httpc == nil {
		httpc = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.CapturedImage{}, err
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return domain.CapturedImage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.CapturedImage{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.CapturedImage{}, err
	}
	return domain.CapturedImage{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    "enroll.jpg",
	}, nil
}

func (s *Service) selectFace(faces []domain.DetectedFace) *domain.DetectedFace {
	if s.SelectFace != nil {
		return s.SelectFace(faces)
	}
	return domain.FirstByProviderOrder(faces)
}

func (s *Service) selectCandidate(cands []domain.MatchCandidate) *domain.MatchCandidate {
	if s.SelectCandidate != nil {
		return s.SelectCandidate(cands)
	}
	return domain.FirstCandidate(cands)
}

func (s *Service) unlockDuration() time.Duration {
	if s.UnlockDuration > 0 {
		return s.UnlockDuration
	}
	return DefaultUnlockDuration
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now()
	}
	return time.Now()
}
