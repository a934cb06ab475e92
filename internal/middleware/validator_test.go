package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateImage(t *testing.T) {
	assert.NoError(t, ValidateImage(1024, "image/jpeg"))
	assert.NoError(t, ValidateImage(1024, "image/png"))
	assert.NoError(t, ValidateImage(1024, "IMAGE/JPEG; charset=binary"))
	// some capture clients omit the part content type entirely
	assert.NoError(t, ValidateImage(1024, ""))

	assert.Error(t, ValidateImage(0, "image/jpeg"))
	assert.Error(t, ValidateImage(MaxImageBytes+1, "image/jpeg"))
	assert.Error(t, ValidateImage(1024, "application/pdf"))
}

func TestValidateEnrollName(t *testing.T) {
	assert.NoError(t, ValidateEnrollName("Ana Widjaja"))
	assert.Error(t, ValidateEnrollName(""))
	assert.Error(t, ValidateEnrollName("   "))
	assert.Error(t, ValidateEnrollName("bad\x00name"))
}

func TestValidateThreshold(t *testing.T) {
	assert.NoError(t, ValidateThreshold(0))
	assert.NoError(t, ValidateThreshold(0.75))
	assert.NoError(t, ValidateThreshold(1))
	assert.Error(t, ValidateThreshold(-0.1))
	assert.Error(t, ValidateThreshold(1.5))
}

func TestValidateLimit(t *testing.T) {
	assert.NoError(t, ValidateLimit(10))
	assert.Error(t, ValidateLimit(-1))
	assert.Error(t, ValidateLimit(500))
}

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(2, 1)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}
