package types // 定义了简历筛选流水线的核心领域类型

import (
	"time"
)

// ResumeDocument 上传时创建的不可变文档值对象。
// 原始字节仅在提取阶段使用，之后即被丢弃，不做原样持久化。
type ResumeDocument struct {
	RawBytes    []byte    // 原始文件内容
	MediaType   string    // 声明的媒体类型 (application/pdf 或 text/plain)
	FileName    string    // 上传时的文件名
	Size        int64     // 字节大小
	Fingerprint string    // 内容指纹 (原始字节的SHA-256十六进制)
	UploadedAt  time.Time // 上传时间
}

// Education 教育背景，三个字段均为尽力提取的结果
type Education struct {
	Degree      string `json:"degree"`      // 学位描述，例如 "Bachelor's in Computer Science"
	Field       string `json:"field"`       // 专业领域关键词，例如 "computer science"
	Institution string `json:"institution"` // 院校名称
}

// CommunicationSignals 沟通能力的确定性信号，由特征提取器计算，
// 供可插拔的Communication评分策略使用
type CommunicationSignals struct {
	WordCount    int `json:"word_count"`    // 总词数
	SectionCount int `json:"section_count"` // 识别出的章节标题数量
	BulletCount  int `json:"bullet_count"`  // 项目符号行数量
	KeywordHits  int `json:"keyword_hits"`  // 沟通相关关键词命中次数
}

// CandidateProfile 从简历文本派生的候选人画像。
// 所有字段均可缺失；全部unknown的画像也是合法的（尽力提取，本身永不报错）。
type CandidateProfile struct {
	Skills          []string             `json:"skills"`           // 规范化技能名集合，保留首次出现顺序
	ExperienceYears *float64             `json:"experience_years"` // 工作年限，nil表示未知
	ExperienceLevel string               `json:"experience_level"` // Junior/Mid/Senior/Unknown
	Education       *Education           `json:"education"`        // 教育背景，nil表示未知
	Communication   CommunicationSignals `json:"communication"`    // 沟通信号
}

// JobRequirement 岗位要求配置。
// CriticalSkills 必须是 RequiredSkills 的子集；CategoryWeights 之和必须为1。
type JobRequirement struct {
	RequiredSkills        []string           `json:"required_skills" yaml:"required_skills" validate:"required,min=1,dive,required"`
	CriticalSkills        []string           `json:"critical_skills" yaml:"critical_skills" validate:"dive,required"`
	TargetExperienceYears float64            `json:"target_experience_years" yaml:"target_experience_years" validate:"gte=0"`
	CategoryWeights       map[string]float64 `json:"category_weights" yaml:"category_weights" validate:"required"`
	ShortlistThreshold    float64            `json:"shortlist_threshold" yaml:"shortlist_threshold" validate:"gte=0,lte=100"`
}

// CategoryScore 评分明细中的一项，类别顺序固定
type CategoryScore struct {
	Category string `json:"category"`
	Score    int    `json:"score"` // 0-100
}

// AnalysisResult 流水线的终态产物。
// 每个指纹只创建一次，创建后不可变；结果存储是只追加的。
type AnalysisResult struct {
	ID            string           `json:"id"`             // UUIDv7
	Fingerprint   string           `json:"fingerprint"`    // 内容指纹，唯一
	FileName      string           `json:"file_name"`      // 首次上传时的文件名
	UploadedAt    time.Time        `json:"uploaded_at"`    // 首次上传时间
	Profile       CandidateProfile `json:"profile"`        // 候选人画像
	Breakdown     []CategoryScore  `json:"breakdown"`      // 按固定类别顺序的评分明细
	OverallScore  int              `json:"overall_score"`  // 加权汇总并取整后的总分 0-100
	Shortlisted   bool             `json:"shortlisted"`    // 是否推荐进入下一轮
	MatchedSkills []string         `json:"matched_skills"` // 命中的必备技能
	MissingSkills []string         `json:"missing_skills"` // 缺失的必备技能
}

// ProgressUpdate 进度通道上发出的单条进度事件
type ProgressUpdate struct {
	Percent int    `json:"percent"` // 0-100，单调不减
	Stage   string `json:"stage"`   // 当前阶段名称
}

// SkillsView / ExperienceView / EducationView 是对外输出结构的嵌套部分
type SkillsView struct {
	Matched []string `json:"matched"`
	Missing []string `json:"missing"`
}

type ExperienceView struct {
	Years *float64 `json:"years"` // null 表示未知
	Level string   `json:"level"`
}

type EducationView struct {
	Degree      *string `json:"degree"`      // null 表示未知
	Institution *string `json:"institution"` // null 表示未知
}

// CategoryScoreView 评分明细的对外形态，分数带档位
type CategoryScoreView struct {
	Category string `json:"category"`
	Score    int    `json:"score"`
	Tier     string `json:"tier"`
}

// AnalysisResponse 面向UI/历史视图的对外结构化记录（对应外部接口约定的输出边界）
type AnalysisResponse struct {
	ID             string              `json:"id"`
	Fingerprint    string              `json:"fingerprint"`
	FileName       string              `json:"fileName"`
	UploadedAt     time.Time           `json:"uploadedAt"`
	OverallScore   int                 `json:"overallScore"`
	OverallTier    string              `json:"overallTier"`
	Shortlisted    bool                `json:"shortlisted"`
	Skills         SkillsView          `json:"skills"`
	Experience     ExperienceView      `json:"experience"`
	Education      EducationView       `json:"education"`
	ScoreBreakdown []CategoryScoreView `json:"scoreBreakdown"`
}

// ToResponse 将内部结果转换为对外输出结构
func (r *AnalysisResult) ToResponse() *AnalysisResponse {
	breakdown := make([]CategoryScoreView, 0, len(r.Breakdown))
	for _, cs := range r.Breakdown {
		breakdown = append(breakdown, CategoryScoreView{
			Category: cs.Category,
			Score:    cs.Score,
			Tier:     Tier(cs.Score),
		})
	}

	resp := &AnalysisResponse{
		ID:           r.ID,
		Fingerprint:  r.Fingerprint,
		FileName:     r.FileName,
		UploadedAt:   r.UploadedAt,
		OverallScore: r.OverallScore,
		OverallTier:  Tier(r.OverallScore),
		Shortlisted:  r.Shortlisted,
		Skills: SkillsView{
			Matched: emptyIfNil(r.MatchedSkills),
			Missing: emptyIfNil(r.MissingSkills),
		},
		Experience: ExperienceView{
			Years: r.Profile.ExperienceYears,
			Level: r.Profile.ExperienceLevel,
		},
		ScoreBreakdown: breakdown,
	}
	if r.Profile.Education != nil {
		if r.Profile.Education.Degree != "" {
			d := r.Profile.Education.Degree
			resp.Education.Degree = &d
		}
		if r.Profile.Education.Institution != "" {
			i := r.Profile.Education.Institution
			resp.Education.Institution = &i
		}
	}
	return resp
}

// AnalysisStats 历史视图的统计卡片数据
type AnalysisStats struct {
	Total        int64   `json:"total"`
	Shortlisted  int64   `json:"shortlisted"`
	AverageScore float64 `json:"average_score"`
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
