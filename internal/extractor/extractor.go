package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"resume-screener-go/internal/constants"
	"resume-screener-go/internal/types"
)

// 经验年限匹配，如 "5 years" / "3+ yrs" / "2.5 years"
var yearsPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*\+?\s*(?:years?|yrs?)`)

// 中文简历的年限写法，如 "5年经验"
var yearsPatternCN = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*年`)

// FeatureExtractor 特征提取器：从纯文本中提取确定性的候选人画像
// 不做任何推断，只做词表匹配，同样的输入永远得到同样的输出
type FeatureExtractor struct {
	tax        *Taxonomy
	skillOrder []string
	skillKeys  map[string]string
	keywordSet map[string]struct{}
	sectionSet map[string]struct{}
	degreeRank []string
}

// NewFeatureExtractor 创建特征提取器，tax 为 nil 时使用内置默认词表
func NewFeatureExtractor(tax *Taxonomy) *FeatureExtractor {
	if tax == nil {
		tax = DefaultTaxonomy()
	}

	fe := &FeatureExtractor{
		tax:        tax,
		skillKeys:  make(map[string]string),
		keywordSet: make(map[string]struct{}),
		sectionSet: make(map[string]struct{}),
		degreeRank: []string{"PhD", "Master", "Bachelor"},
	}

	for _, entry := range tax.Skills {
		fe.skillOrder = append(fe.skillOrder, entry.Name)
		fe.skillKeys[normalizeKey(entry.Name)] = entry.Name
		for _, syn := range entry.Synonyms {
			fe.skillKeys[normalizeKey(syn)] = entry.Name
		}
	}
	for _, kw := range tax.CommunicationKeywords {
		fe.keywordSet[normalizeKey(kw)] = struct{}{}
	}
	for _, h := range tax.SectionHeaders {
		fe.sectionSet[strings.ToLower(h)] = struct{}{}
	}

	return fe
}

// Extract 从简历文本提取候选人画像
// 匹配不到就留空：技能可以是空集，年限和学历可以缺失
func (fe *FeatureExtractor) Extract(text string) *types.CandidateProfile {
	tokens := tokenize(text)
	joined := " " + strings.Join(tokens, " ") + " "

	profile := &types.CandidateProfile{
		Skills:          fe.extractSkills(joined),
		ExperienceYears: extractExperienceYears(text),
		Education:       fe.extractEducation(text, joined),
		Communication:   fe.extractCommunicationSignals(text, tokens),
	}
	profile.ExperienceLevel = experienceLevel(profile.ExperienceYears)

	return profile
}

// extractSkills 按词表顺序返回命中的规范技能名，同义词归并到规范名且不重复
func (fe *FeatureExtractor) extractSkills(joined string) []string {
	matched := make(map[string]bool)
	for key, canonical := range fe.skillKeys {
		if strings.Contains(joined, " "+key+" ") {
			matched[canonical] = true
		}
	}

	skills := make([]string, 0, len(matched))
	for _, name := range fe.skillOrder {
		if matched[name] {
			skills = append(skills, name)
		}
	}
	return skills
}

// extractExperienceYears 取文本中所有年限表述的最大值，没有则返回 nil
func extractExperienceYears(text string) *float64 {
	var best *float64
	consider := func(raw string) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return
		}
		if best == nil || v > *best {
			best = &v
		}
	}
	for _, m := range yearsPattern.FindAllStringSubmatch(text, -1) {
		consider(m[1])
	}
	for _, m := range yearsPatternCN.FindAllStringSubmatch(text, -1) {
		consider(m[1])
	}
	return best
}

// experienceLevel 按年限划分级别，年限缺失时为 Unknown
func experienceLevel(years *float64) string {
	if years == nil {
		return constants.LevelUnknown
	}
	switch {
	case *years < 2:
		return constants.LevelJunior
	case *years < 5:
		return constants.LevelMid
	default:
		return constants.LevelSenior
	}
}

// extractEducation 提取最高学位、专业与院校。
// 没有学位但命中专业或院校时仍返回部分画像，三者都缺失才返回 nil
func (fe *FeatureExtractor) extractEducation(text, joined string) *types.Education {
	found := make(map[string]bool)
	for key, canonical := range fe.tax.Degrees {
		if strings.Contains(joined, " "+key+" ") {
			found[canonical] = true
		}
	}

	edu := &types.Education{}
	for _, rank := range fe.degreeRank {
		if found[rank] {
			edu.Degree = rank
			break
		}
	}

	for _, field := range fe.tax.Fields {
		if strings.Contains(joined, " "+normalizeKey(field)+" ") {
			edu.Field = field
			break
		}
	}

	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		for _, marker := range fe.tax.InstitutionMarkers {
			if strings.Contains(lower, marker) {
				edu.Institution = strings.TrimSpace(line)
				break
			}
		}
		if edu.Institution != "" {
			break
		}
	}

	if edu.Degree == "" && edu.Field == "" && edu.Institution == "" {
		return nil
	}
	return edu
}

// extractCommunicationSignals 统计沟通相关的结构化信号，供计分策略使用
func (fe *FeatureExtractor) extractCommunicationSignals(text string, tokens []string) types.CommunicationSignals {
	signals := types.CommunicationSignals{
		WordCount: len(strings.Fields(text)),
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") ||
			strings.HasPrefix(trimmed, "•") || strings.HasPrefix(trimmed, "·") {
			signals.BulletCount++
			continue
		}
		header := strings.ToLower(strings.TrimSuffix(trimmed, ":"))
		if _, ok := fe.sectionSet[header]; ok {
			signals.SectionCount++
		}
	}

	for _, tok := range tokens {
		if _, ok := fe.keywordSet[tok]; ok {
			signals.KeywordHits++
		}
	}

	return signals
}

// normalizeKey 归一化词表键：小写并折叠多余空白
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenize 切词：保留 + # . - 以正确匹配 c++、c#、node.js、cross-functional 之类的词
func tokenize(text string) []string {
	raw := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		switch r {
		case '+', '#', '.', '-':
			return false
		}
		return true
	})

	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		// 去掉句末标点，但保留词内部的点与连字符
		t = strings.Trim(t, ".-")
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
