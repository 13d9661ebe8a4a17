package storage

import (
	"time"

	"resume-screener-go/internal/constants"
	"resume-screener-go/internal/types"
)

// AnalysisCompletedEvent 分析完成后经发件箱发布到RabbitMQ的事件。
// 下游消费者（通知、报表等）只依赖这里的字段，不回查数据库。
type AnalysisCompletedEvent struct {
	EventType    string    `json:"event_type"`
	AnalysisID   string    `json:"analysis_id"`
	Fingerprint  string    `json:"fingerprint"`
	FileName     string    `json:"file_name"`
	OverallScore int       `json:"overall_score"`
	Shortlisted  bool      `json:"shortlisted"`
	CompletedAt  time.Time `json:"completed_at"`
}

// NewAnalysisCompletedEvent 从分析结果构建完成事件
func NewAnalysisCompletedEvent(result *types.AnalysisResult) *AnalysisCompletedEvent {
	return &AnalysisCompletedEvent{
		EventType:    constants.EventAnalysisCompleted,
		AnalysisID:   result.ID,
		Fingerprint:  result.Fingerprint,
		FileName:     result.FileName,
		OverallScore: result.OverallScore,
		Shortlisted:  result.Shortlisted,
		CompletedAt:  time.Now(),
	}
}
