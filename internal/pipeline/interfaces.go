package pipeline

import (
	"context"
	"time"

	"resume-screener-go/internal/scorer"
	"resume-screener-go/internal/types"
)

//
// 编排器的依赖接口，便于测试时注入Mock
//

// DocumentIngestor 文档接收：校验、指纹计算与文本提取
type DocumentIngestor interface {
	// Ingest 校验原始字节并构建带指纹的文档，校验失败同步返回
	Ingest(rawBytes []byte, mediaType, fileName string) (*types.ResumeDocument, error)

	// ExtractText 提取纯文本，失败归入提取类错误
	ExtractText(ctx context.Context, doc *types.ResumeDocument) (string, error)
}

// ProfileExtractor 特征提取：纯文本到候选人画像，尽力提取且本身永不报错
type ProfileExtractor interface {
	Extract(text string) *types.CandidateProfile
}

// ResultScorer 计分：画像加岗位要求到完整计分结果
type ResultScorer interface {
	Score(profile *types.CandidateProfile, req *types.JobRequirement) (*scorer.Outcome, error)
}

// ResultStore 结果存储：只追加，每个指纹至多一条
type ResultStore interface {
	// SaveResult 持久化分析结果
	// 指纹已存在时不覆盖，返回已有记录以保证幂等
	SaveResult(ctx context.Context, result *types.AnalysisResult) (*types.AnalysisResult, error)

	// GetResultByFingerprint 按指纹查询，不存在时返回 (nil, nil)
	GetResultByFingerprint(ctx context.Context, fingerprint string) (*types.AnalysisResult, error)
}

// FingerprintLocker 指纹级分布式锁，多实例部署时防止同一份简历被重复分析
type FingerprintLocker interface {
	// AcquireLock 尝试获取锁，返回是否成功
	AcquireLock(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error)

	// ReleaseLock 释放自己持有的锁
	ReleaseLock(ctx context.Context, fingerprint string) error
}

// TextArchiver 解析文本归档，尽力而为，失败不影响流水线结果
type TextArchiver interface {
	StoreParsedText(ctx context.Context, analysisID string, text string) (string, error)
}

// FingerprintIndexer 指纹锁的可选能力：维护指纹到分析ID的快速索引，
// 供多实例部署时跨实例感知已完成的分析
type FingerprintIndexer interface {
	// RecordFingerprint 记录指纹与分析ID的映射
	RecordFingerprint(ctx context.Context, fingerprint, analysisID string) error

	// LookupFingerprint 按指纹查分析ID，未命中返回空串
	LookupFingerprint(ctx context.Context, fingerprint string) (string, error)
}

// ParsedTextPathRecorder 结果存储的可选能力：回填归档文本的对象键
type ParsedTextPathRecorder interface {
	RecordParsedTextPath(ctx context.Context, analysisID string, path string) error
}
