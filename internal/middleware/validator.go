package middleware

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Input validation and sanitization utilities

// MaxImageBytes caps a single capture upload
const MaxImageBytes = 10 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"":           true, // some capture clients omit the part content type
}

// ValidateImage checks a submitted capture before any remote call is made
func ValidateImage(size int64, contentType string) error {
	if size <= 0 {
		return fmt.Errorf("image is empty")
	}
	if size > MaxImageBytes {
		return fmt.Errorf("image exceeds %d bytes", int64(MaxImageBytes))
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if !allowedImageTypes[ct] {
		return fmt.Errorf("unsupported image type: %s (allowed: jpeg, png, webp)", contentType)
	}
	return nil
}

// ValidateEnrollName checks an identity display name
func ValidateEnrollName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > 120 {
		return fmt.Errorf("name too long (max 120 characters)")
	}
	for _, r := range name {
		if r < 0x20 {
			return fmt.Errorf("name contains control characters")
		}
	}
	return nil
}

// ValidateThreshold checks a similarity or liveness threshold
func ValidateThreshold(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("threshold must be within [0,1], got %g", v)
	}
	return nil
}

// ValidateLimit checks a candidate limit
func ValidateLimit(n int) error {
	if n < 0 || n > 100 {
		return fmt.Errorf("limit must be within [0,100], got %d", n)
	}
	return nil
}
