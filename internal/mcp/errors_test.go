package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"shutting down", serrors.New(serrors.ErrCodeShuttingDown, "stopping", nil), ErrCodeShuttingDown},
		{"index build", serrors.New(serrors.ErrCodeIndexBuild, "build failed", nil), ErrCodeIndexUnavailable},
		{"search failed", serrors.New(serrors.ErrCodeSearchFailed, "all legs failed", nil), ErrCodeSearchFailed},
		{"search timeout", serrors.New(serrors.ErrCodeSearchTimeout, "slow", nil), ErrCodeTimeout},
		{"empty query", serrors.New(serrors.ErrCodeQueryEmpty, "empty", nil), ErrCodeInvalidParams},
		{"invalid mode", serrors.New(serrors.ErrCodeInvalidMode, "mode", nil), ErrCodeInvalidParams},
		{"wrapped strato", fmt.Errorf("outer: %w", serrors.New(serrors.ErrCodeInvalidMode, "mode", nil)), ErrCodeInvalidParams},
		{"internal", serrors.InternalError("oops", nil), ErrCodeInternalError},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"foreign", errors.New("disk on fire"), ErrCodeInternalError},
		{"already mapped", NewInvalidParamsError("bad"), ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, MapError(tt.err).Code)
		})
	}
	assert.Nil(t, MapError(nil))
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := serrors.New(serrors.ErrCodeIndexBuild, "index build failed.", nil).
		WithSuggestion("Check the history file.")

	me := MapError(err)

	assert.Equal(t, "index build failed. Check the history file.", me.Message)
	assert.Contains(t, me.Error(), "MCP error -32001")
}

func TestMimeTypeForPath(t *testing.T) {
	assert.Equal(t, "application/pdf", MimeTypeForPath("/docs/a.PDF"))
	assert.Equal(t, "text/markdown", MimeTypeForPath("notes.md"))
	assert.Equal(t, "image/heic", MimeTypeForPath("IMG_001.heic"))
	assert.Equal(t, "application/octet-stream", MimeTypeForPath("Makefile"))
	assert.Equal(t, "application/octet-stream", MimeTypeForPath("blob.zzzunknown"))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 1, 100))
	assert.Equal(t, 10, clampLimit(-3, 10, 1, 100))
	assert.Equal(t, 42, clampLimit(42, 10, 1, 100))
	assert.Equal(t, 100, clampLimit(1000, 10, 1, 100))
}
