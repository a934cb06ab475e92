package access

import "context"

// SearchOptions for a 1:N registry search
type SearchOptions struct {
	Limit     int
	Threshold float64
}

// Gallery is a provider registry partition; cards live inside one
type Gallery struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreateCardRequest for enrolling a new identity
type CreateCardRequest struct {
	Name      string
	Meta      map[string]any
	GalleryID int64
}

// Recognizer port (interface to the remote face provider)
type Recognizer interface {
	Detect(ctx context.Context, img CapturedImage) ([]DetectedFace, error)
	Search(ctx context.Context, detectionID string, opts SearchOptions) ([]MatchCandidate, error)
	Verify(ctx context.Context, detectionID1, detectionID2 string) (VerifyResult, error)

	ListGalleries(ctx context.Context) ([]Gallery, error)
	CreateCard(ctx context.Context, req CreateCardRequest) (*Card, error)
	AttachDetection(ctx context.Context, cardID, detectionID string) error
	AttachPhoto(ctx context.Context, cardID string, img CapturedImage) error
}

// AssetStore port (interface for durable image storage)
type AssetStore interface {
	// Put uploads the image under a unique name and returns a public URL.
	// Existing objects are never overwritten.
	Put(ctx context.Context, img CapturedImage) (string, error)
}

// AuditLog port (interface for the append-only access log)
type AuditLog interface {
	// Append persists the record and returns its id. Callers treat failure
	// as a degraded side effect, never as a pipeline error.
	Append(ctx context.Context, rec *AuditRecord) (string, error)
	Latest(ctx context.Context, limit int) ([]*AuditRecord, error)
	Summary(ctx context.Context, sinceDays int) (map[Status]int, error)
}

// Actuator port (interface to the door controller channel). OpenDoor is
// best-effort: it reports false instead of blocking or queueing when the
// channel is down, and must tolerate concurrent calls.
type Actuator interface {
	OpenDoor(ctx context.Context, cmd OpenCommand) bool
	Connected() bool
}
