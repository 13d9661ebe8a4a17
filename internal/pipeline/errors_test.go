package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"resume-screener-go/internal/ingest"
	"resume-screener-go/internal/scorer"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"invalid format", ingest.NewInvalidFormatError("a.docx", "docx"), CategoryValidationError},
		{"too large", ingest.NewTooLargeError("big.pdf", "exceeds limit"), CategoryValidationError},
		{"unparseable", ingest.NewUnparseableError("a.pdf", "empty"), CategoryExtractionError},
		{"decode timeout", ingest.NewDecodeTimeoutError("a.pdf", "30s elapsed"), CategoryExtractionError},
		{"bad requirement", fmt.Errorf("权重之和不为1: %w", scorer.ErrInvalidRequirement), CategoryConfigurationError},
		{"store failed", NewStoreError("fp", "connection refused"), CategorySystemError},
		{"timeout", NewPipelineTimeoutError("fp", "EXTRACTING"), CategorySystemError},
		{"cancelled", NewCancelledError("fp", "SCORING"), CategorySystemError},
		{"unknown", errors.New("boom"), CategoryInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "INVALID_FORMAT", ErrorCode(ingest.NewInvalidFormatError("a.docx", "docx")))
	assert.Equal(t, "TOO_LARGE", ErrorCode(ingest.NewTooLargeError("big.pdf", "exceeds limit")))
	assert.Equal(t, "UNPARSEABLE", ErrorCode(ingest.NewUnparseableError("a.pdf", "empty")))
	assert.Equal(t, "DECODE_TIMEOUT", ErrorCode(ingest.NewDecodeTimeoutError("a.pdf", "30s elapsed")))
	assert.Equal(t, "INVALID_REQUIREMENT", ErrorCode(scorer.ErrInvalidRequirement))
	assert.Equal(t, "PIPELINE_TIMEOUT", ErrorCode(NewPipelineTimeoutError("fp", "EXTRACTING")))
	assert.Equal(t, "CANCELLED", ErrorCode(NewCancelledError("fp", "SCORING")))
	assert.Equal(t, "INTERNAL", ErrorCode(errors.New("boom")))
}

func TestPipelineErrorUnwrap(t *testing.T) {
	err := NewStoreError("fingerprintvalue1234", "disk full")
	assert.True(t, errors.Is(err, ErrStoreFailed))

	var pe *PipelineError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "persist", pe.Stage)
	assert.Contains(t, err.Error(), "disk full")
}
