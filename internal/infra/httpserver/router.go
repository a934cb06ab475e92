package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appaccess "github.com/bryanwahyu/facegate/internal/application/access"
	appai "github.com/bryanwahyu/facegate/internal/application/ai"
	domain "github.com/bryanwahyu/facegate/internal/domain/access"
	domai "github.com/bryanwahyu/facegate/internal/domain/ai"
	"github.com/bryanwahyu/facegate/internal/middleware"
)

type Router struct {
	accessSvc *appaccess.Service
	aiSvc     *appai.Service
	defaults  domain.DecideOptions
}

// NewRouter mounts the access API. Operator endpoints (manual door open,
// logs, summary, AI review) sit behind the API key when one is configured;
// the capture endpoints stay open, their users are authenticated upstream.
func NewRouter(accessSvc *appaccess.Service, aiSvc *appai.Service, defaults domain.DecideOptions, apiKey string) http.Handler {
	r := &Router{accessSvc: accessSvc, aiSvc: aiSvc, defaults: defaults}
	mux := chi.NewRouter()

	mux.Route("/api", func(rt chi.Router) {
		rt.Post("/detect", r.wrap(r.handleDetect))
		rt.Post("/search", r.wrap(r.handleSearch))
		rt.Post("/verify", r.wrap(r.handleVerify))
		rt.Post("/enroll", r.wrap(r.handleEnroll))

		rt.Group(func(op chi.Router) {
			if apiKey != "" {
				op.Use(middleware.APIKeyAuth(apiKey))
			}
			op.Post("/door/open", r.wrap(r.handleDoorOpen))
			op.Get("/logs/latest", r.wrap(r.handleLogs))
			op.Get("/summary", r.wrap(r.handleSummary))
			op.Post("/ai/review", r.wrap(r.handleAIReview))
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// httpError carries an explicit status for input problems
type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &httpError{code: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var he *httpError
		var lerr *domain.LivenessError
		var serr *domain.StepError
		switch {
		case errors.As(err, &he):
			writeJSON(w, he.code, map[string]any{"error": he.msg})
		case errors.Is(err, domain.ErrNoImage):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No image provided"})
		case errors.As(err, &lerr):
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error": "liveness check failed",
				"score": lerr.Score,
			})
		case errors.Is(err, domain.ErrNoFaceDetected):
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "No faces detected in the image"})
		case errors.Is(err, domain.ErrActuatorUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		case errors.Is(err, domai.ErrQuotaExceeded):
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "ai quota exceeded"})
		case errors.As(err, &serr):
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   serr.Err.Error(),
				"step":    serr.Step,
				"details": serr.Payload,
			})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		}
	}
}

// POST /api/detect  (multipart: image)
func (r *Router) handleDetect(w http.ResponseWriter, req *http.Request) error {
	img, err := readImage(req, "image")
	if err != nil {
		return err
	}

	url, faces, err := r.accessSvc.Detect(req.Context(), img)
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, map[string]any{
		"imageUrl": url,
		"faces":    faces,
	})
}

// POST /api/search  (multipart: image, optional limit/threshold fields)
// Runs the full decision pipeline for one capture.
func (r *Router) handleSearch(w http.ResponseWriter, req *http.Request) error {
	img, err := readImage(req, "image")
	if err != nil {
		return err
	}

	opts, err := r.decideOptions(req)
	if err != nil {
		return err
	}

	middleware.IncrementDecisions()
	dec, err := r.accessSvc.Decide(req.Context(), img, opts)
	if err != nil {
		var lerr *domain.LivenessError
		switch {
		case errors.Is(err, domain.ErrNoFaceDetected):
			middleware.IncrementDenied()
			// dec is populated and audited; surface the URL and log id
			return writeJSON(w, http.StatusNotFound, map[string]any{
				"error":    "No faces detected in the image",
				"imageUrl": dec.ImageURL,
				"logId":    dec.LogID,
			})
		case errors.As(err, &lerr):
			middleware.IncrementErrors()
			return writeJSON(w, http.StatusForbidden, map[string]any{
				"error": "liveness check failed",
				"score": lerr.Score,
				"logId": dec.LogID,
			})
		default:
			return err
		}
	}

	if dec.Status == domain.StatusMatch {
		middleware.IncrementGranted()
		if dec.DoorOpened {
			middleware.IncrementDoorCommands()
		}
	} else {
		middleware.IncrementDenied()
	}

	return writeJSON(w, http.StatusOK, map[string]any{
		"status":       dec.Status,
		"imageUrl":     dec.ImageURL,
		"detectedFace": dec.Face,
		"bestMatch":    dec.BestMatch,
		"matches":      dec.Matches,
		"totalMatches": len(dec.Matches),
		"doorOpened":   dec.DoorOpened,
		"logId":        dec.LogID,
	})
}

// POST /api/verify  (multipart: image1, image2)
func (r *Router) handleVerify(w http.ResponseWriter, req *http.Request) error {
	img1, err := readImage(req, "image1")
	if err != nil {
		return badRequest("Both images are required")
	}
	img2, err := readImage(req, "image2")
	if err != nil {
		return badRequest("Both images are required")
	}

	out, err := r.accessSvc.Verify(req.Context(), img1, img2)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, out)
}

// POST /api/enroll  (json: detectionId, name, meta, imageUrl)
func (r *Router) handleEnroll(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		DetectionID string         `json:"detectionId"`
		Name        string         `json:"name"`
		Meta        map[string]any `json:"meta"`
		ImageURL    string         `json:"imageUrl"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	if err := middleware.ValidateEnrollName(body.Name); err != nil {
		return badRequest("%v", err)
	}

	card, err := r.accessSvc.Enroll(req.Context(), appaccess.EnrollCommand{
		DetectionID: body.DetectionID,
		Name:        body.Name,
		Meta:        body.Meta,
		ImageURL:    body.ImageURL,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, card)
}

// POST /api/door/open  (json, optional: duration ms, userName)
func (r *Router) handleDoorOpen(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Duration int64  `json:"duration"`
		UserName string `json:"userName"`
	}
	if req.Body != nil {
		// body is optional; decode errors on an empty body are fine
		dec := json.NewDecoder(req.Body)
		if err := dec.Decode(&body); err != nil && err != io.EOF {
			return badRequest("invalid JSON body: %v", err)
		}
	}

	sent := r.accessSvc.OpenDoor(req.Context(), time.Duration(body.Duration)*time.Millisecond, body.UserName)
	if !sent {
		return domain.ErrActuatorUnavailable
	}
	middleware.IncrementDoorCommands()
	return writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

// GET /api/logs/latest?limit=20
func (r *Router) handleLogs(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	list, err := r.accessSvc.RecentActivity(req.Context(), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /api/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))
	summary, err := r.accessSvc.ActivitySummary(req.Context(), days)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, summary)
}

// POST /api/ai/review?limit=50
func (r *Router) handleAIReview(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		return &httpError{code: http.StatusServiceUnavailable, msg: "ai review not configured"}
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	review, err := r.aiSvc.ReviewActivity(req.Context(), limit)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write([]byte(review))
	return err
}

func (r *Router) decideOptions(req *http.Request) (domain.DecideOptions, error) {
	opts := r.defaults

	if v := formOrQuery(req, "threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, badRequest("invalid threshold: %s", v)
		}
		if err := middleware.ValidateThreshold(t); err != nil {
			return opts, badRequest("%v", err)
		}
		opts.SimilarityThreshold = t
	}
	if v := formOrQuery(req, "limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, badRequest("invalid limit: %s", v)
		}
		if err := middleware.ValidateLimit(n); err != nil {
			return opts, badRequest("%v", err)
		}
		opts.MaxCandidates = n
	}
	return opts, nil
}

func formOrQuery(req *http.Request, key string) string {
	if v := req.FormValue(key); v != "" {
		return v
	}
	return req.URL.Query().Get(key)
}

func readImage(req *http.Request, field string) (domain.CapturedImage, error) {
	if err := req.ParseMultipartForm(middleware.MaxImageBytes); err != nil {
		return domain.CapturedImage{}, domain.ErrNoImage
	}
	file, hdr, err := req.FormFile(field)
	if err != nil {
		return domain.CapturedImage{}, domain.ErrNoImage
	}
	defer file.Close()

	contentType := partContentType(hdr)
	if err := middleware.ValidateImage(hdr.Size, contentType); err != nil {
		return domain.CapturedImage{}, badRequest("%v", err)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.CapturedImage{}, err
	}
	if len(data) == 0 {
		return domain.CapturedImage{}, domain.ErrNoImage
	}

	return domain.CapturedImage{
		Data:        data,
		ContentType: contentType,
		Filename:    hdr.Filename,
	}, nil
}

func partContentType(hdr *multipart.FileHeader) string {
	if hdr == nil {
		return ""
	}
	return hdr.Header.Get("Content-Type")
}

func writeJSON(w http.ResponseWriter, code int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(body)
}
