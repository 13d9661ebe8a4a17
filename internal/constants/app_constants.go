package constants

import "time"

// 文件校验相关常量
const (
	// MaxResumeFileSize 允许上传的简历文件最大字节数 (10 MiB)
	MaxResumeFileSize = 10 * 1024 * 1024

	// MediaTypePDF / MediaTypePlainText 允许的声明媒体类型
	MediaTypePDF       = "application/pdf"
	MediaTypePlainText = "text/plain"
)

// 流水线阶段名称，既作为状态机状态也作为进度上报的stage字段
const (
	StageIdle       = "IDLE"
	StageValidating = "VALIDATING"
	StageExtracting = "EXTRACTING"
	StageScoring    = "SCORING"
	StageCompleted  = "COMPLETED"
	StageFailed     = "FAILED"
)

// 各阶段边界上报的进度百分比，单调不减，100只在COMPLETED时发出
const (
	ProgressIdle       = 0
	ProgressValidating = 25
	ProgressExtracting = 60
	ProgressScoring    = 90
	ProgressCompleted  = 100
)

// 评分类别，顺序即ScoreBreakdown的固定输出顺序
const (
	CategoryTechnicalSkills = "TechnicalSkills"
	CategoryExperience      = "Experience"
	CategoryEducation       = "Education"
	CategoryCommunication   = "Communication"
)

// ScoreCategories 按固定顺序列出所有评分类别
var ScoreCategories = []string{
	CategoryTechnicalSkills,
	CategoryExperience,
	CategoryEducation,
	CategoryCommunication,
}

// 经验级别
const (
	LevelJunior  = "Junior"
	LevelMid     = "Mid"
	LevelSenior  = "Senior"
	LevelUnknown = "Unknown"
)

// 流水线默认配置值
const (
	// DefaultPipelineTimeout 单次分析的全局超时
	DefaultPipelineTimeout = 60 * time.Second
	// DefaultExtractRetries 提取阶段的最大重试次数（不含首次尝试）
	DefaultExtractRetries = 2
	// DefaultExtractBackoff 提取重试的初始退避间隔，每次翻倍
	DefaultExtractBackoff = 500 * time.Millisecond
	// DefaultMaxConcurrentRuns 不同指纹并发分析的上限
	DefaultMaxConcurrentRuns = 8
	// DefaultFingerprintLockTTL 指纹分布式锁的过期时间
	DefaultFingerprintLockTTL = 2 * time.Minute
)

// 计分默认值
const (
	// DefaultUnknownExperienceBaseline 年限缺失时经验项的保底分
	DefaultUnknownExperienceBaseline = 30
	// DefaultEducationPartialCredit 只有相关专业没有学位时教育项的分数
	DefaultEducationPartialCredit = 60
	// DefaultShortlistThreshold 入围的总分阈值
	DefaultShortlistThreshold = 70
)

// 事件类型（经由outbox发布到RabbitMQ）
const (
	EventAnalysisCompleted = "analysis.completed"
)
