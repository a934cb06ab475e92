// Package ntech is the HTTP adapter for the FindFace-style recognition
// provider. Detection ids it hands out are short-lived; callers use them
// within the same request only.
package ntech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	access "github.com/bryanwahyu/facegate/internal/domain/access"
)

// DefaultTimeout bounds every provider call so one slow dependency cannot
// stall a caller indefinitely.
const DefaultTimeout = 30 * time.Second

// requested attribute extractors; liveness only shows up in the response
// when the provider is licensed for it
const detectAttributes = "emotions,headpose,liveness"

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// ProviderError carries the provider's raw error body for diagnostics
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// RawPayload implements the payload hook picked up by access.WrapStep
func (e *ProviderError) RawPayload() string { return e.Body }

//
// ==== wire types ====
//

type faceJSON struct {
	ID         string                `json:"id"`
	BBox       access.BoundingBox    `json:"bbox"`
	Attributes access.FaceAttributes `json:"attributes"`
}

type detectResponse struct {
	Objects struct {
		Face []faceJSON `json:"face"`
	} `json:"objects"`
}

type cardJSON struct {
	ID                  json.Number    `json:"id"`
	Name                string         `json:"name"`
	Meta                map[string]any `json:"meta"`
	LooksLikeConfidence float64        `json:"looks_like_confidence"`
}

type searchResponse struct {
	Results []cardJSON `json:"results"`
}

type verifyResponse struct {
	Confidence access.VerifyResult `json:"confidence"`
}

type galleriesResponse struct {
	Results []access.Gallery `json:"results"`
}

//
// ==== operations ====
//

// Detect uploads the raw capture and returns the located faces in provider
// order, attribute extraction enabled.
func (c *Client) Detect(ctx context.Context, img access.CapturedImage) ([]access.DetectedFace, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("photo", img.Filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, err
	}
	if err := mw.WriteField("attributes", detectAttributes); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out detectResponse
	if err := c.do(ctx, http.MethodPost, "/detect", body, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}

	faces := make([]access.DetectedFace, 0, len(out.Objects.Face))
	for _, f := range out.Objects.Face {
		faces = append(faces, access.DetectedFace{ID: f.ID, BBox: f.BBox, Attributes: f.Attributes})
	}
	return faces, nil
}

// Search runs a 1:N registry lookup against a fresh detection id. The
// provider returns candidates pre-ordered by descending similarity.
func (c *Client) Search(ctx context.Context, detectionID string, opts access.SearchOptions) ([]access.MatchCandidate, error) {
	q := url.Values{}
	q.Set("looks_like", "detection:"+detectionID)
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Threshold > 0 {
		q.Set("threshold", strconv.FormatFloat(opts.Threshold, 'f', -1, 64))
	}

	var out searchResponse
	if err := c.do(ctx, http.MethodGet, "/cards/humans/?"+q.Encode(), nil, "", &out); err != nil {
		return nil, err
	}

	cands := make([]access.MatchCandidate, 0, len(out.Results))
	for _, r := range out.Results {
		cands = append(cands, access.MatchCandidate{
			Card:       access.Card{ID: r.ID.String(), Name: r.Name, Meta: r.Meta},
			Similarity: r.LooksLikeConfidence,
		})
	}
	return cands, nil
}

// Verify compares two detections 1:1
func (c *Client) Verify(ctx context.Context, detectionID1, detectionID2 string) (access.VerifyResult, error) {
	payload := map[string]string{
		"face1": "detection:" + detectionID1,
		"face2": "detection:" + detectionID2,
	}
	var out verifyResponse
	if err := c.postJSON(ctx, "/verify", payload, &out); err != nil {
		return access.VerifyResult{}, err
	}
	return out.Confidence, nil
}

// ListGalleries returns the registry partitions cards can be created in
func (c *Client) ListGalleries(ctx context.Context) ([]access.Gallery, error) {
	var out galleriesResponse
	if err := c.do(ctx, http.MethodGet, "/galleries/", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// CreateCard registers a new identity
func (c *Client) CreateCard(ctx context.Context, req access.CreateCardRequest) (*access.Card, error) {
	payload := map[string]any{
		"active":    true,
		"name":      req.Name,
		"meta":      req.Meta,
		"galleries": []int64{req.GalleryID},
	}
	var out cardJSON
	if err := c.postJSON(ctx, "/cards/humans/", payload, &out); err != nil {
		return nil, err
	}
	return &access.Card{ID: out.ID.String(), Name: out.Name, Meta: out.Meta}, nil
}

// AttachDetection links a recent detection to a card
func (c *Client) AttachDetection(ctx context.Context, cardID, detectionID string) error {
	payload := map[string]string{
		"card":         cardID,
		"detection_id": detectionID,
	}
	return c.postJSON(ctx, "/cards/humans/save_detection/", payload, nil)
}

// AttachPhoto uploads a face photo object for a card
func (c *Client) AttachPhoto(ctx context.Context, cardID string, img access.CapturedImage) error {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := mw.WriteField("card", cardID); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("source_photo", img.Filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(img.Data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/objects/faces/", body, mw.FormDataContentType(), nil)
}

//
// ==== transport ====
//

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(data), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("could not unmarshal response: %w", err)
	}
	return nil
}
