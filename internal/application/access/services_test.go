package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/facegate/internal/domain/access"
)

type fakeRecognizer struct {
	detectFaces []domain.DetectedFace
	detectErr   error
	searchRes   []domain.MatchCandidate
	searchErr   error
	verifyRes   domain.VerifyResult
	verifyErr   error
	galleries   []domain.Gallery
	card        *domain.Card
	createErr   error

	detectCalls   int
	searchCalls   int
	searchOpts    domain.SearchOptions
	attachedDet   string
	attachedPhoto int
	attachErr     error
	photoErr      error
}

func (f *fakeRecognizer) Detect(ctx context.Context, img domain.CapturedImage) ([]domain.DetectedFace, error) {
	f.detectCalls++
	return f.detectFaces, f.detectErr
}

func (f *fakeRecognizer) Search(ctx context.Context, detectionID string, opts domain.SearchOptions) ([]domain.MatchCandidate, error) {
	f.searchCalls++
	f.searchOpts = opts
	return f.searchRes, f.searchErr
}

func (f *fakeRecognizer) Verify(ctx context.Context, d1, d2 string) (domain.VerifyResult, error) {
	return f.verifyRes, f.verifyErr
}

func (f *fakeRecognizer) ListGalleries(ctx context.Context) ([]domain.Gallery, error) {
	return f.galleries, nil
}

func (f *fakeRecognizer) CreateCard(ctx context.Context, req domain.CreateCardRequest) (*domain.Card, error) {
	return f.card, f.createErr
}

func (f *fakeRecognizer) AttachDetection(ctx context.Context, cardID, detectionID string) error {
	f.attachedDet = detectionID
	return f.attachErr
}

func (f *fakeRecognizer) AttachPhoto(ctx context.Context, cardID string, img domain.CapturedImage) error {
	f.attachedPhoto++
	return f.photoErr
}

type fakeStore struct {
	url  string
	err  error
	puts int
}

func (f *fakeStore) Put(ctx context.Context, img domain.CapturedImage) (string, error) {
	f.puts++
	return f.url, f.err
}

type fakeAudit struct {
	id      string
	err     error
	records []*domain.AuditRecord
}

func (f *fakeAudit) Append(ctx context.Context, rec *domain.AuditRecord) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.records = append(f.records, rec)
	return f.id, nil
}

func (f *fakeAudit) Latest(ctx context.Context, limit int) ([]*domain.AuditRecord, error) {
	return f.records, nil
}

func (f *fakeAudit) Summary(ctx context.Context, sinceDays int) (map[domain.Status]int, error) {
	return map[domain.Status]int{}, nil
}

type fakeDoor struct {
	result bool
	cmds   []domain.OpenCommand
}

func (f *fakeDoor) OpenDoor(ctx context.Context, cmd domain.OpenCommand) bool {
	f.cmds = append(f.cmds, cmd)
	return f.result
}

func (f *fakeDoor) Connected() bool { return f.result }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func f64(v float64) *float64 { return &v }

func testImage() domain.CapturedImage {
	return domain.CapturedImage{Data: []byte("jpegbytes"), ContentType: "image/jpeg", Filename: "frame.jpg"}
}

func newTestService(recog *fakeRecognizer, store *fakeStore, audit *fakeAudit, door *fakeDoor) *Service {
	return &Service{
		Recog:  recog,
		Assets: store,
		Audit:  audit,
		Door:   door,
		Clock:  fixedClock{t: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)},
	}
}

func defaultOpts() domain.DecideOptions {
	return domain.DecideOptions{SimilarityThreshold: 0.75, MaxCandidates: 10, LivenessThreshold: 0.7}
}

func TestDecideRejectsEmptyImage(t *testing.T) {
	recog := &fakeRecognizer{}
	svc := newTestService(recog, &fakeStore{url: "http://x"}, &fakeAudit{id: "log-1"}, &fakeDoor{})

	dec, err := svc.Decide(context.Background(), domain.CapturedImage{}, defaultOpts())

	require.ErrorIs(t, err, domain.ErrNoImage)
	assert.Nil(t, dec)
	assert.Equal(t, 0, recog.detectCalls)
}

func TestDecideNoFaceSkipsSearch(t *testing.T) {
	recog := &fakeRecognizer{detectFaces: nil}
	audit := &fakeAudit{id: "log-1"}
	door := &fakeDoor{result: true}
	svc := newTestService(recog, &fakeStore{url: "http://assets/a.jpg"}, audit, door)

	dec, err := svc.Decide(context.Background(), testImage(), defaultOpts())

	require.ErrorIs(t, err, domain.ErrNoFaceDetected)
	require.NotNil(t, dec)
	assert.Equal(t, domain.StatusNoMatch, dec.Status)
	assert.Equal(t, "http://assets/a.jpg", dec.ImageURL)
	assert.Equal(t, 0, recog.searchCalls)
	assert.Empty(t, door.cmds)

	// the outcome is still audited
	require.NotNil(t, dec.LogID)
	assert.Equal(t, "log-1", *dec.LogID)
	require.Len(t, audit.records, 1)
	assert.Equal(t, domain.StatusNoMatch, audit.records[0].Status)
}

func TestDecideLivenessBelowThresholdSkipsSearch(t *testing.T) {
	recog := &fakeRecognizer{detectFaces: []domain.DetectedFace{
		{ID: "det-1", Attributes: domain.FaceAttributes{Liveness: f64(0.2)}},
	}}
	audit := &fakeAudit{id: "log-2"}
	door := &fakeDoor{result: true}
	svc := newTestService(recog, &fakeStore{url: "http://assets/a.jpg"}, audit, door)

	dec, err := svc.Decide(context.Background(), testImage(), defaultOpts())

	var lerr *domain.LivenessError
	require.ErrorAs(t, err, &lerr)
	assert.InDelta(t, 0.2, lerr.Score, 1e-9)
	assert.InDelta(t, 0.7, lerr.Threshold, 1e-9)

	require.NotNil(t, dec)
	assert.Equal(t, domain.StatusError, dec.Status)
	assert.Equal(t, 0, recog.searchCalls)
	assert.Empty(t, door.cmds)
	require.NotNil(t, dec.LogID)
}

func TestDecideLivenessAbsentProceeds(t *testing.T) {
	recog := &fakeRecognizer{
		detectFaces: []domain.DetectedFace{{ID: "det-1"}},
		searchRes:   nil,
	}
	svc := newTestService(recog, &fakeStore{url: "http://x"}, &fakeAudit{id: "log-3"}, &fakeDoor{})

	dec, err := svc.Decide(context.Background(), testImage(), defaultOpts())

	require.NoError(t, err)
	assert.Equal(t, 1, recog.searchCalls)
	assert.Equal(t, domain.StatusNoMatch, dec.Status)
}

func TestDecideMatchOpensDoor(t *testing.T) {
	recog := &fakeRecognizer{
		detectFaces: []domain.DetectedFace{{ID: "det-1", Attributes: domain.FaceAttributes{Liveness: f64(0.93)}}},
		searchRes: []domain.MatchCandidate{
			{Card: domain.Card{ID: "C1", Name: "Ana"}, Similarity: 0.82},
		},
	}
	audit := &fakeAudit{id: "log-4"}
	door := &fakeDoor{result: true}
	svc := newTestService(recog, &fakeStore{url: "http://assets/ana.jpg"}, audit, door)

	dec, err := svc.Decide(context.Background(), testImage(), defaultOpts())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusMatch, dec.Status)
	assert.True(t, dec.DoorOpened)
	require.NotNil(t, dec.BestMatch)
	assert.Equal(t, "Ana", dec.BestMatch.Card.Name)

	require.Len(t, door.cmds, 1)
	assert.Equal(t, "C1", door.cmds[0].UserID)
	assert.Equal(t, "Ana", door.cmds[0].UserName)
	assert.Equal(t, DefaultUnlockDuration, door.cmds[0].Duration)

	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	require.NotNil(t, rec.MatchedCardID)
	assert.Equal(t, "C1", *rec.MatchedCardID)
	require.NotNil(t, rec.Confidence)
	assert.InDelta(t, 0.82, *rec.Confidence, 1e-9)
	assert.Equal(t, 1, rec.Metadata["matches_count"])
	assert.Equal(t, true, rec.Metadata["door_opened"])

	// the caller's thresholds reach the provider as-is
	assert.InDelta(t, 0.75, recog.searchOpts.Threshold, 1e-9)
	assert.Equal(t, 10, recog.searchOpts.Limit)
}

func TestDecideEmptySearchIsNoMatch(t *testing.T) {
	recog := &fakeRecognizer{
		detectFaces: []domain.DetectedFace{{ID: "det-1"}},
		searchRes:   []domain.MatchCandidate{},
	}
	audit := &fakeAudit{id: "log-5"}
	door := &fakeDoor{result: true}
	svc := newTestService(recog, &fakeStore{url: "http://x"}, audit, door)

	dec, err := svc.Decide(context.Background(), testImage(), defaultOpts())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusNoMatch, dec.Status)
	assert.False(t, dec.DoorOpened)
	assert.Empty(t, door.cmds)
	require.Len(t, audit.records, 1)
	assert.Equal(t, 0, audit.records[0].Metadata["matches_count"])
}

func TestDecideDoorOnlyOpensOnMatch(t *testing.T) {
	// run the same frame twice, once matching and once not
	door := &fakeDoor{result: true}
	recog := &fakeRecognizer{detectFaces: []domain.DetectedFace{{ID: "det-1"}}}
	svc := newTestService(recog, &fakeStore{url: "http://x"}, &fakeAudit{id: "l"}, door)

	_, err := svc.Decide(context.Background(), testImage(), defaultOpts())
	require.NoError(t, err)
	assert.Empty(t, door.cmds)

	recog.searchRes = []domain.MatchCandidate{{Card: domain.Card{ID: "C2", Name: "Bo"}, Similarity: 0.9}}
	_, err = svc.Decide(context.Background(), testImage(), defaultOpts())
	require.NoError(t, err)
	assert.Len(t, door.cmds, 1)
}

func TestDecideAuditFailureDegradesToNilLogID(t *testing.T) {
	recog := &fakeRecognizer{
		detectFaces: []domain.DetectedFace{{ID: "det-1"}},
		searchRes:   []domain.MatchCandidate{{Card: domain.Card{ID: "C1", Name: "Ana"}, Similarity: 0.88}},
	}
	audit := &fakeAudit{err: errors.New("db gone")}
	door := &fakeDoor{result: true}
	svc := newTestService(recog, &fakeStore{url: "http://x"}, audit, door)

	dec, err := svc.Decide(context.Background(), testImage(), defaultOpts())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusMatch, dec.Status)
	assert.True(t, dec.DoorOpened)
	assert.Nil(t, dec.LogID)
}

func TestDecideActuatorFailureDoesNotFlipStatus(t *testing.T) {
	recog := &fakeRecognizer{
		detectFaces: []domain.DetectedFace{{ID: "det-1"}},
		searchRes:   []domain.MatchCandidate{{Card: domain.Card{ID: "C1", Name: "Ana"}, Similarity: 0.88}},
	}
	door := &fakeDoor{result: false}
	svc := newTestService(recog, &fakeStore{url: "http://x"}, &fakeAudit{id: "l"}, door)

	dec, err := svc.Decide(context.Background(), testImage(), defaultOpts())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusMatch, dec.Status)
	assert.False(t, dec.DoorOpened)
	require.NotNil(t, dec.LogID)
}

func TestDecideUploadFailureIsTagged(t *testing.T) {
	store := &fakeStore{err: errors.New("bucket unreachable")}
	recog := &fakeRecognizer{}
	svc := newTestService(recog, store, &fakeAudit{}, &fakeDoor{})

	_, err := svc.Decide(context.Background(), testImage(), defaultOpts())

	var serr *domain.StepError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "upload", serr.Step)
	assert.Equal(t, 0, recog.detectCalls)
}

func TestDecideIsRepeatable(t *testing.T) {
	recog := &fakeRecognizer{
		detectFaces: []domain.DetectedFace{{ID: "det-1"}},
		searchRes:   []domain.MatchCandidate{{Card: domain.Card{ID: "C1", Name: "Ana"}, Similarity: 0.9}},
	}
	store := &fakeStore{url: "http://x"}
	audit := &fakeAudit{id: "l"}
	svc := newTestService(recog, store, audit, &fakeDoor{result: true})

	d1, err := svc.Decide(context.Background(), testImage(), defaultOpts())
	require.NoError(t, err)
	d2, err := svc.Decide(context.Background(), testImage(), defaultOpts())
	require.NoError(t, err)

	assert.Equal(t, d1.Status, d2.Status)
	assert.Equal(t, d1.BestMatch.Card.ID, d2.BestMatch.Card.ID)
	assert.Equal(t, 2, store.puts)
	assert.Len(t, audit.records, 2)
}

func TestVerifyMatchThreshold(t *testing.T) {
	recog := &fakeRecognizer{
		detectFaces: []domain.DetectedFace{{ID: "det-1"}},
		verifyRes:   domain.VerifyResult{AverageConfidence: 0.81},
	}
	svc := newTestService(recog, &fakeStore{url: "http://x"}, &fakeAudit{}, &fakeDoor{})

	out, err := svc.Verify(context.Background(), testImage(), testImage())
	require.NoError(t, err)
	assert.True(t, out.Match)
	assert.InDelta(t, 0.81, out.Confidence, 1e-9)

	recog.verifyRes = domain.VerifyResult{AverageConfidence: 0.42}
	out, err = svc.Verify(context.Background(), testImage(), testImage())
	require.NoError(t, err)
	assert.False(t, out.Match)
}

func TestVerifyNoFace(t *testing.T) {
	recog := &fakeRecognizer{detectFaces: nil}
	svc := newTestService(recog, &fakeStore{url: "http://x"}, &fakeAudit{}, &fakeDoor{})

	_, err := svc.Verify(context.Background(), testImage(), testImage())
	require.ErrorIs(t, err, domain.ErrNoFaceDetected)
}

func TestEnrollAttachesDetection(t *testing.T) {
	recog := &fakeRecognizer{
		galleries: []domain.Gallery{{ID: 3, Name: "staff"}},
		card:      &domain.Card{ID: "C9", Name: "Ana"},
	}
	svc := newTestService(recog, &fakeStore{}, &fakeAudit{}, &fakeDoor{})

	card, err := svc.Enroll(context.Background(), EnrollCommand{Name: "Ana", DetectionID: "det-7"})

	require.NoError(t, err)
	assert.Equal(t, "C9", card.ID)
	assert.Equal(t, "det-7", recog.attachedDet)
}

func TestEnrollPhotoRefetchFailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	recog := &fakeRecognizer{
		galleries: []domain.Gallery{{ID: 1, Name: "staff"}},
		card:      &domain.Card{ID: "C9", Name: "Ana"},
	}
	svc := newTestService(recog, &fakeStore{}, &fakeAudit{}, &fakeDoor{})
	svc.HTTPClient = srv.Client()

	card, err := svc.Enroll(context.Background(), EnrollCommand{Name: "Ana", ImageURL: srv.URL + "/gone.jpg"})

	require.NoError(t, err)
	assert.Equal(t, "C9", card.ID)
	assert.Equal(t, 0, recog.attachedPhoto)
}

func TestEnrollRequiresName(t *testing.T) {
	svc := newTestService(&fakeRecognizer{}, &fakeStore{}, &fakeAudit{}, &fakeDoor{})
	_, err := svc.Enroll(context.Background(), EnrollCommand{})
	require.Error(t, err)
}

func TestOpenDoorUsesDefaultDuration(t *testing.T) {
	door := &fakeDoor{result: true}
	svc := newTestService(&fakeRecognizer{}, &fakeStore{}, &fakeAudit{}, door)

	sent := svc.OpenDoor(context.Background(), 0, "guard")

	assert.True(t, sent)
	require.Len(t, door.cmds, 1)
	assert.Equal(t, DefaultUnlockDuration, door.cmds[0].Duration)
	assert.Equal(t, "guard", door.cmds[0].UserName)
}

func TestLargestAreaSelector(t *testing.T) {
	recog := &fakeRecognizer{
		detectFaces: []domain.DetectedFace{
			{ID: "small", BBox: domain.BoundingBox{Left: 0, Top: 0, Right: 10, Bottom: 10}},
			{ID: "big", BBox: domain.BoundingBox{Left: 0, Top: 0, Right: 100, Bottom: 100}},
		},
	}
	svc := newTestService(recog, &fakeStore{url: "http://x"}, &fakeAudit{id: "l"}, &fakeDoor{})
	svc.SelectFace = domain.LargestArea

	dec, err := svc.Decide(context.Background(), testImage(), defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, "big", dec.DetectionID)
}
