package scorer

import (
	"errors"
	"testing"

	"resume-screener-go/internal/constants"
	"resume-screener-go/internal/types"
	"resume-screener-go/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultRequirement() *types.JobRequirement {
	return &types.JobRequirement{
		RequiredSkills:        []string{"JavaScript", "React", "TypeScript", "Node.js", "AWS", "Kubernetes", "Docker"},
		CriticalSkills:        []string{"React"},
		TargetExperienceYears: 5,
		CategoryWeights: map[string]float64{
			constants.CategoryTechnicalSkills: 0.4,
			constants.CategoryExperience:      0.3,
			constants.CategoryEducation:       0.2,
			constants.CategoryCommunication:   0.1,
		},
		ShortlistThreshold: 70,
	}
}

func TestScoreFrontendCandidateEndToEnd(t *testing.T) {
	s := NewScorer()

	profile := &types.CandidateProfile{
		Skills:          []string{"JavaScript", "TypeScript", "React", "Node.js", "Docker"},
		ExperienceYears: utils.Float64Ptr(6),
		ExperienceLevel: constants.LevelSenior,
		Education:       &types.Education{Degree: "Bachelor", Field: "computer science"},
		Communication: types.CommunicationSignals{
			WordCount:    400,
			SectionCount: 3,
			BulletCount:  4,
			KeywordHits:  7,
		},
	}

	outcome, err := s.Score(profile, defaultRequirement())
	require.NoError(t, err)

	// 5/7 命中 -> 71，6年对目标5年封顶100，命中学位100，启发式沟通84
	wantBreakdown := []types.CategoryScore{
		{Category: constants.CategoryTechnicalSkills, Score: 71},
		{Category: constants.CategoryExperience, Score: 100},
		{Category: constants.CategoryEducation, Score: 100},
		{Category: constants.CategoryCommunication, Score: 84},
	}
	assert.Equal(t, wantBreakdown, outcome.Breakdown)

	// 0.4*71 + 0.3*100 + 0.2*100 + 0.1*84 = 86.8 -> 87
	assert.Equal(t, 87, outcome.OverallScore)
	assert.True(t, outcome.Shortlisted)
	assert.Equal(t, []string{"JavaScript", "React", "TypeScript", "Node.js", "Docker"}, outcome.MatchedSkills)
	assert.Equal(t, []string{"AWS", "Kubernetes"}, outcome.MissingSkills)
}

func TestScoreEmptyProfile(t *testing.T) {
	s := NewScorer(WithCommunicationScorer(FixedCommunicationScorer{Score: 0}))

	outcome, err := s.Score(&types.CandidateProfile{}, defaultRequirement())
	require.NoError(t, err)

	// 空画像不报错：技术0，经验取保底30，教育0，总分落在低区
	assert.Equal(t, 0, outcome.Breakdown[0].Score)
	assert.Equal(t, constants.DefaultUnknownExperienceBaseline, outcome.Breakdown[1].Score)
	assert.Equal(t, 0, outcome.Breakdown[2].Score)
	assert.Equal(t, 9, outcome.OverallScore) // 0.3*30
	assert.False(t, outcome.Shortlisted)
	assert.Empty(t, outcome.MatchedSkills)
	assert.Len(t, outcome.MissingSkills, 7)
}

func TestScoreSkillMatchingIsCaseInsensitive(t *testing.T) {
	s := NewScorer()

	profile := &types.CandidateProfile{Skills: []string{"javascript", "REACT"}}
	outcome, err := s.Score(profile, defaultRequirement())
	require.NoError(t, err)

	assert.Equal(t, []string{"JavaScript", "React"}, outcome.MatchedSkills)
	assert.Equal(t, 29, outcome.Breakdown[0].Score) // round(200/7)
}

func TestScoreExperience(t *testing.T) {
	s := NewScorer()

	testCases := []struct {
		name   string
		years  *float64
		target float64
		want   int
	}{
		{"与目标成正比", utils.Float64Ptr(2.5), 5, 50},
		{"超过目标封顶", utils.Float64Ptr(12), 5, 100},
		{"恰好达标", utils.Float64Ptr(5), 5, 100},
		{"年限缺失取保底", nil, 5, constants.DefaultUnknownExperienceBaseline},
		{"目标为0不限经验", nil, 0, 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.scoreExperience(tc.years, tc.target))
		})
	}
}

func TestScoreEducation(t *testing.T) {
	s := NewScorer()

	// 命中学位即满分，专业与否不再影响
	assert.Equal(t, 100, s.scoreEducation(&types.Education{Degree: "Master", Field: "data science"}))
	assert.Equal(t, 100, s.scoreEducation(&types.Education{Degree: "Bachelor"}))
	// 只有专业没有学位给部分分
	assert.Equal(t, constants.DefaultEducationPartialCredit, s.scoreEducation(&types.Education{Field: "computer science"}))
	assert.Equal(t, 0, s.scoreEducation(&types.Education{Institution: "Tsinghua University"}))
	assert.Equal(t, 0, s.scoreEducation(nil))
}

func TestShortlistRequiresCriticalSkills(t *testing.T) {
	s := NewScorer()

	req := defaultRequirement()
	req.CriticalSkills = []string{"AWS"}

	// 总分足够但缺少关键技能AWS，不得入围
	profile := &types.CandidateProfile{
		Skills:          []string{"JavaScript", "TypeScript", "React", "Node.js", "Docker", "Kubernetes"},
		ExperienceYears: utils.Float64Ptr(8),
		Education:       &types.Education{Degree: "Master", Field: "computer science"},
		Communication:   types.CommunicationSignals{WordCount: 600, SectionCount: 4, BulletCount: 8, KeywordHits: 10},
	}

	outcome, err := s.Score(profile, req)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, float64(outcome.OverallScore), req.ShortlistThreshold)
	assert.False(t, outcome.Shortlisted)
}

func TestValidateRequirement(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*types.JobRequirement)
	}{
		{"空必需技能", func(r *types.JobRequirement) { r.RequiredSkills = nil }},
		{"权重之和不为1", func(r *types.JobRequirement) { r.CategoryWeights[constants.CategoryEducation] = 0.5 }},
		{"负权重", func(r *types.JobRequirement) {
			r.CategoryWeights[constants.CategoryExperience] = -0.3
			r.CategoryWeights[constants.CategoryTechnicalSkills] = 1.0
		}},
		{"缺少类别权重", func(r *types.JobRequirement) { delete(r.CategoryWeights, constants.CategoryCommunication) }},
		{"阈值越界", func(r *types.JobRequirement) { r.ShortlistThreshold = 120 }},
		{"负目标年限", func(r *types.JobRequirement) { r.TargetExperienceYears = -1 }},
		{"关键技能不在必需技能中", func(r *types.JobRequirement) { r.CriticalSkills = []string{"Rust"} }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := defaultRequirement()
			tc.mutate(req)
			err := ValidateRequirement(req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequirement))

			// 不合法的要求必须在计分前被拒绝
			_, err = NewScorer().Score(&types.CandidateProfile{}, req)
			assert.Error(t, err)
		})
	}

	assert.NoError(t, ValidateRequirement(defaultRequirement()))
}

func TestScoreIsDeterministic(t *testing.T) {
	s := NewScorer()
	profile := &types.CandidateProfile{
		Skills:          []string{"JavaScript", "Docker"},
		ExperienceYears: utils.Float64Ptr(4),
	}

	first, err := s.Score(profile, defaultRequirement())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := s.Score(profile, defaultRequirement())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCommunicationStrategies(t *testing.T) {
	t.Run("启发式策略", func(t *testing.T) {
		h := HeuristicCommunicationScorer{}
		assert.Equal(t, 30, h.ScoreCommunication(types.CommunicationSignals{}))
		assert.Equal(t, 100, h.ScoreCommunication(types.CommunicationSignals{
			WordCount: 10000, SectionCount: 10, BulletCount: 20, KeywordHits: 50,
		}))
	})

	t.Run("固定分策略", func(t *testing.T) {
		assert.Equal(t, 55, FixedCommunicationScorer{Score: 55}.ScoreCommunication(types.CommunicationSignals{}))
		assert.Equal(t, 100, FixedCommunicationScorer{Score: 130}.ScoreCommunication(types.CommunicationSignals{}))
	})

	t.Run("按策略名构造", func(t *testing.T) {
		assert.IsType(t, FixedCommunicationScorer{}, NewCommunicationScorer("fixed", 50))
		assert.IsType(t, HeuristicCommunicationScorer{}, NewCommunicationScorer("heuristic", 0))
		assert.IsType(t, HeuristicCommunicationScorer{}, NewCommunicationScorer("", 0))
	})
}
