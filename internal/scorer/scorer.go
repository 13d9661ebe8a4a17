package scorer

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"resume-screener-go/internal/constants"
	"resume-screener-go/internal/types"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequirement 岗位要求不合法（空技能表、权重不归一、阈值越界等）
var ErrInvalidRequirement = errors.New("岗位要求不合法")

var validate = validator.New()

// Outcome 一次计分的完整输出
type Outcome struct {
	Breakdown     []types.CategoryScore
	OverallScore  int
	Shortlisted   bool
	MatchedSkills []string
	MissingSkills []string
}

// Scorer 计分引擎：纯函数式，不做任何 I/O
// 同样的画像加同样的要求必须得到同样的分数
type Scorer struct {
	comm                      CommunicationScorer
	unknownExperienceBaseline int
	educationPartialCredit    int
}

// ScorerOption 计分引擎配置选项
type ScorerOption func(*Scorer)

// WithCommunicationScorer 替换沟通项的计分策略
func WithCommunicationScorer(c CommunicationScorer) ScorerOption {
	return func(s *Scorer) {
		if c != nil {
			s.comm = c
		}
	}
}

// WithUnknownExperienceBaseline 年限缺失时经验项的保底分
func WithUnknownExperienceBaseline(v int) ScorerOption {
	return func(s *Scorer) {
		if v >= 0 && v <= 100 {
			s.unknownExperienceBaseline = v
		}
	}
}

// WithEducationPartialCredit 只有相关专业没有学位时教育项的分数
func WithEducationPartialCredit(v int) ScorerOption {
	return func(s *Scorer) {
		if v >= 0 && v <= 100 {
			s.educationPartialCredit = v
		}
	}
}

// NewScorer 创建计分引擎
func NewScorer(options ...ScorerOption) *Scorer {
	s := &Scorer{
		comm:                      &HeuristicCommunicationScorer{},
		unknownExperienceBaseline: constants.DefaultUnknownExperienceBaseline,
		educationPartialCredit:    constants.DefaultEducationPartialCredit,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// ValidateRequirement 校验岗位要求的结构与语义
// 所有违例都包裹 ErrInvalidRequirement 以便上层统一归类
func ValidateRequirement(req *types.JobRequirement) error {
	if req == nil {
		return fmt.Errorf("%w: 要求为空", ErrInvalidRequirement)
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequirement, err)
	}
	if req.TargetExperienceYears < 0 {
		return fmt.Errorf("%w: 目标年限不能为负", ErrInvalidRequirement)
	}
	if req.ShortlistThreshold < 0 || req.ShortlistThreshold > 100 {
		return fmt.Errorf("%w: 入围阈值必须在 [0,100] 内", ErrInvalidRequirement)
	}

	var sum float64
	for _, category := range constants.ScoreCategories {
		w, ok := req.CategoryWeights[category]
		if !ok {
			return fmt.Errorf("%w: 缺少类别 %q 的权重", ErrInvalidRequirement, category)
		}
		if w < 0 {
			return fmt.Errorf("%w: 类别 %q 的权重不能为负", ErrInvalidRequirement, category)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("%w: 权重之和必须为 1.0，实际 %.6f", ErrInvalidRequirement, sum)
	}

	required := make(map[string]bool, len(req.RequiredSkills))
	for _, skill := range req.RequiredSkills {
		required[normalizeSkill(skill)] = true
	}
	for _, critical := range req.CriticalSkills {
		if !required[normalizeSkill(critical)] {
			return fmt.Errorf("%w: 关键技能 %q 不在必需技能列表中", ErrInvalidRequirement, critical)
		}
	}
	return nil
}

// Score 对候选人画像计分
// 调用方应先通过 ValidateRequirement，这里仍会兜底校验一次
func (s *Scorer) Score(profile *types.CandidateProfile, req *types.JobRequirement) (*Outcome, error) {
	if err := ValidateRequirement(req); err != nil {
		return nil, err
	}
	if profile == nil {
		profile = &types.CandidateProfile{}
	}

	matched, missing := matchSkills(profile.Skills, req.RequiredSkills)

	breakdown := []types.CategoryScore{
		{Category: constants.CategoryTechnicalSkills, Score: scoreTechnical(len(matched), len(req.RequiredSkills))},
		{Category: constants.CategoryExperience, Score: s.scoreExperience(profile.ExperienceYears, req.TargetExperienceYears)},
		{Category: constants.CategoryEducation, Score: s.scoreEducation(profile.Education)},
		{Category: constants.CategoryCommunication, Score: s.comm.ScoreCommunication(profile.Communication)},
	}

	var weighted float64
	for _, cs := range breakdown {
		weighted += req.CategoryWeights[cs.Category] * float64(cs.Score)
	}
	overall := int(math.Round(weighted))

	return &Outcome{
		Breakdown:     breakdown,
		OverallScore:  overall,
		Shortlisted:   float64(overall) >= req.ShortlistThreshold && criticalCovered(matched, req.CriticalSkills),
		MatchedSkills: matched,
		MissingSkills: missing,
	}, nil
}

// scoreTechnical 技术项 = 100 * 命中数 / 必需技能数
func scoreTechnical(matchedCount, requiredCount int) int {
	if requiredCount == 0 {
		return 0
	}
	return int(math.Round(100 * float64(matchedCount) / float64(requiredCount)))
}

// scoreExperience 经验项与目标年限成正比，封顶100
// 目标年限为0表示不限经验，年限缺失取保底分
func (s *Scorer) scoreExperience(years *float64, target float64) int {
	if target <= 0 {
		return 100
	}
	if years == nil {
		return s.unknownExperienceBaseline
	}
	score := math.Round(100 * *years / target)
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return int(score)
}

// scoreEducation 命中学位满分，只有相关专业没有学位给部分分，什么都没有给0
func (s *Scorer) scoreEducation(edu *types.Education) int {
	if edu == nil {
		return 0
	}
	if edu.Degree != "" {
		return 100
	}
	if edu.Field != "" {
		return s.educationPartialCredit
	}
	return 0
}

// matchSkills 按必需技能的顺序返回命中与缺失列表，匹配不区分大小写
func matchSkills(candidateSkills, requiredSkills []string) (matched, missing []string) {
	owned := make(map[string]bool, len(candidateSkills))
	for _, skill := range candidateSkills {
		owned[normalizeSkill(skill)] = true
	}

	matched = make([]string, 0, len(requiredSkills))
	missing = make([]string, 0)
	for _, skill := range requiredSkills {
		if owned[normalizeSkill(skill)] {
			matched = append(matched, skill)
		} else {
			missing = append(missing, skill)
		}
	}
	return matched, missing
}

// criticalCovered 关键技能必须全部命中才能入围
func criticalCovered(matched, critical []string) bool {
	got := make(map[string]bool, len(matched))
	for _, skill := range matched {
		got[normalizeSkill(skill)] = true
	}
	for _, skill := range critical {
		if !got[normalizeSkill(skill)] {
			return false
		}
	}
	return true
}

func normalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
