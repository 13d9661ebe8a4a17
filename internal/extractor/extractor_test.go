package extractor

import (
	"testing"

	"resume-screener-go/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResume = `John Doe
Senior Frontend Engineer

Summary:
Engineer with 6 years experience building web applications.
Led a cross-functional team and collaborated with stakeholders.

Skills:
- JavaScript, TypeScript, React
- node, k8s, Docker
- C++ and C#

Experience:
- Built dashboards in react.js over 3 years
- Presented quarterly reviews and mentored juniors

Education:
Bachelor of Science in Computer Science
Tsinghua University, 2016
`

func TestExtractSkills(t *testing.T) {
	fe := NewFeatureExtractor(nil)

	profile := fe.Extract(sampleResume)

	// 同义词归并到规范名，且按词表顺序去重输出
	assert.Equal(t,
		[]string{"JavaScript", "TypeScript", "React", "Node.js", "C++", "C#", "Docker", "Kubernetes"},
		profile.Skills)
}

func TestExtractSkillsEmptyWhenNoMatch(t *testing.T) {
	fe := NewFeatureExtractor(nil)

	profile := fe.Extract("I enjoy gardening and long walks.")
	assert.Empty(t, profile.Skills)
}

func TestExtractExperienceTakesMaxValue(t *testing.T) {
	fe := NewFeatureExtractor(nil)

	testCases := []struct {
		name      string
		text      string
		wantYears float64
		wantLevel string
	}{
		{"取多个年限中的最大值", "2 years at A, then 6 years at B", 6, constants.LevelSenior},
		{"支持加号写法", "8+ years of backend work", 8, constants.LevelSenior},
		{"支持小数", "2.5 years experience", 2.5, constants.LevelMid},
		{"支持缩写", "10 yrs in ops", 10, constants.LevelSenior},
		{"支持中文年限", "拥有5年开发经验", 5, constants.LevelSenior},
		{"不满2年为初级", "1.5 years as intern", 1.5, constants.LevelJunior},
		{"恰好2年为中级", "2 years of experience", 2, constants.LevelMid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			profile := fe.Extract(tc.text)
			require.NotNil(t, profile.ExperienceYears)
			assert.Equal(t, tc.wantYears, *profile.ExperienceYears)
			assert.Equal(t, tc.wantLevel, profile.ExperienceLevel)
		})
	}
}

func TestExtractExperienceMissing(t *testing.T) {
	fe := NewFeatureExtractor(nil)

	profile := fe.Extract("just some text without any duration")
	assert.Nil(t, profile.ExperienceYears)
	assert.Equal(t, constants.LevelUnknown, profile.ExperienceLevel)
}

func TestExtractEducation(t *testing.T) {
	fe := NewFeatureExtractor(nil)

	t.Run("学位加专业加院校", func(t *testing.T) {
		profile := fe.Extract(sampleResume)
		require.NotNil(t, profile.Education)
		assert.Equal(t, "Bachelor", profile.Education.Degree)
		assert.Equal(t, "computer science", profile.Education.Field)
		assert.Equal(t, "Tsinghua University, 2016", profile.Education.Institution)
	})

	t.Run("取最高学位", func(t *testing.T) {
		profile := fe.Extract("Bachelor in 2012, Master of Engineering in 2015")
		require.NotNil(t, profile.Education)
		assert.Equal(t, "Master", profile.Education.Degree)
	})

	t.Run("无学位但命中专业时保留专业", func(t *testing.T) {
		profile := fe.Extract("studied computer science through online courses")
		require.NotNil(t, profile.Education)
		assert.Empty(t, profile.Education.Degree)
		assert.Equal(t, "computer science", profile.Education.Field)
	})

	t.Run("无任何学历信号时整体缺失", func(t *testing.T) {
		profile := fe.Extract("self taught developer")
		assert.Nil(t, profile.Education)
	})
}

func TestExtractCommunicationSignals(t *testing.T) {
	fe := NewFeatureExtractor(nil)

	profile := fe.Extract(sampleResume)
	signals := profile.Communication

	assert.Equal(t, 4, signals.SectionCount) // Summary / Skills / Experience / Education
	assert.Equal(t, 5, signals.BulletCount)
	// led, cross-functional, team, collaborated, stakeholders, presented, mentored
	assert.Equal(t, 7, signals.KeywordHits)
	assert.Greater(t, signals.WordCount, 40)
}

func TestExtractIsDeterministic(t *testing.T) {
	fe := NewFeatureExtractor(nil)

	first := fe.Extract(sampleResume)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, fe.Extract(sampleResume))
	}
}

func TestCustomTaxonomy(t *testing.T) {
	tax := &Taxonomy{
		Skills: []SkillEntry{
			{Name: "Rust", Synonyms: []string{"rustlang"}},
		},
		Degrees: map[string]string{"bachelor": "Bachelor"},
	}
	fe := NewFeatureExtractor(tax)

	profile := fe.Extract("rustlang enthusiast, also knows JavaScript")
	// 自定义词表整体替换内置词表
	assert.Equal(t, []string{"Rust"}, profile.Skills)
}
