package storage

import (
	"testing"

	"resume-screener-go/internal/constants"
	"resume-screener-go/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestEscapeLike(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"resume", "resume"},
		{"100%", `100\%`},
		{"a_b", `a\_b`},
		{`c:\files`, `c:\\files`},
		{"%_", `\%\_`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, escapeLike(tc.in), "input: %s", tc.in)
	}
}

func TestNewAnalysisCompletedEvent(t *testing.T) {
	result := &types.AnalysisResult{
		ID:           "0190a1b2-0000-7000-8000-000000000003",
		Fingerprint:  "deadbeef",
		FileName:     "candidate.pdf",
		OverallScore: 87,
		Shortlisted:  true,
	}

	event := NewAnalysisCompletedEvent(result)
	assert.Equal(t, constants.EventAnalysisCompleted, event.EventType)
	assert.Equal(t, result.ID, event.AnalysisID)
	assert.Equal(t, result.Fingerprint, event.Fingerprint)
	assert.Equal(t, 87, event.OverallScore)
	assert.True(t, event.Shortlisted)
	assert.False(t, event.CompletedAt.IsZero())
}
