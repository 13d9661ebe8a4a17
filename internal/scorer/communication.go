package scorer

import (
	"resume-screener-go/internal/types"
)

// CommunicationScorer 沟通项计分策略
// 策略只依赖提取阶段产出的结构化信号，自身必须是确定性的
type CommunicationScorer interface {
	ScoreCommunication(signals types.CommunicationSignals) int
}

// HeuristicCommunicationScorer 默认策略：从文本结构信号估计沟通表达能力
// 保底30分，其余按字数、章节、条目与关键词四项累加
type HeuristicCommunicationScorer struct{}

func (HeuristicCommunicationScorer) ScoreCommunication(s types.CommunicationSignals) int {
	score := 30
	score += min(20, s.WordCount/25)
	score += min(12, s.SectionCount*4)
	score += min(18, s.BulletCount*3)
	score += min(20, s.KeywordHits*2)

	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// FixedCommunicationScorer 固定分策略，用于不想让沟通项参与区分的场景
type FixedCommunicationScorer struct {
	Score int
}

func (f FixedCommunicationScorer) ScoreCommunication(types.CommunicationSignals) int {
	if f.Score > 100 {
		return 100
	}
	if f.Score < 0 {
		return 0
	}
	return f.Score
}

// NewCommunicationScorer 按配置的策略名创建计分策略，未知名称回退到启发式
func NewCommunicationScorer(strategy string, fixedScore int) CommunicationScorer {
	switch strategy {
	case "fixed":
		return FixedCommunicationScorer{Score: fixedScore}
	default:
		return HeuristicCommunicationScorer{}
	}
}
