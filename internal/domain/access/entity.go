package access

import (
	"time"
)

// Status enum for an access decision
type Status string

const (
	StatusMatch   Status = "MATCH"
	StatusNoMatch Status = "NO_MATCH"
	StatusError   Status = "ERROR"
)

// CapturedImage is one submitted frame. It lives only for the duration of
// the request that carries it; the asset store keeps the durable copy.
type CapturedImage struct {
	Data        []byte
	ContentType string
	Filename    string
}

// BoundingBox as reported by the provider (pixel coordinates)
type BoundingBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Area in square pixels
func (b BoundingBox) Area() int {
	w := b.Right - b.Left
	h := b.Bottom - b.Top
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

// HeadPose angles in degrees
type HeadPose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// FaceAttributes is the optional attribute bag attached to a detection.
// Every field is provider- and configuration-dependent; callers must treat
// all of them as possibly absent.
type FaceAttributes struct {
	Emotions map[string]float64 `json:"emotions,omitempty"`
	HeadPose *HeadPose          `json:"headpose,omitempty"`
	Liveness *float64           `json:"liveness,omitempty"`
}

// DetectedFace is one located face within an image. The ID is opaque,
// provider-scoped and short-lived; it must be consumed within the same
// logical request and never persisted as a long-term key.
type DetectedFace struct {
	ID         string         `json:"id"`
	BBox       BoundingBox    `json:"bbox"`
	Attributes FaceAttributes `json:"attributes"`
}

// Card is an enrolled identity in the provider registry
type Card struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Meta map[string]any `json:"meta,omitempty"`
}

// MatchCandidate pairs a registry card with its similarity score in [0,1].
// Higher means more similar; the exact scale is provider-defined.
type MatchCandidate struct {
	Card       Card    `json:"card"`
	Similarity float64 `json:"similarity"`
}

// Decision is the composite outcome of one pipeline run
type Decision struct {
	Status      Status           `json:"status"`
	ImageURL    string           `json:"imageUrl"`
	DetectionID string           `json:"detectionId,omitempty"`
	Face        *DetectedFace    `json:"detectedFace,omitempty"`
	BestMatch   *MatchCandidate  `json:"bestMatch,omitempty"`
	Matches     []MatchCandidate `json:"matches,omitempty"`
	DoorOpened  bool             `json:"doorOpened"`
	LogID       *string          `json:"logId"`
}

// DecideOptions tunes one pipeline run
type DecideOptions struct {
	SimilarityThreshold float64
	MaxCandidates       int
	LivenessThreshold   float64
}

// AuditRecord is one row in the access log. Immutable once written.
type AuditRecord struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	ImageURL      string         `json:"image_url"`
	DetectionID   string         `json:"detection_id"`
	MatchedCardID *string        `json:"matched_card_id"`
	Confidence    *float64       `json:"confidence"`
	Status        Status         `json:"status"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// VerifyResult is the provider's 1:1 comparison output
type VerifyResult struct {
	AverageConfidence float64 `json:"average_conf"`
}

// OpenCommand is what gets published to the door controller
type OpenCommand struct {
	Duration time.Duration
	UserID   string
	UserName string
}
