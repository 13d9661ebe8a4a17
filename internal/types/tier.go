package types

// 分数档位，前端用它决定展示颜色
const (
	TierGood    = "good"
	TierWarning = "warning"
	TierPoor    = "poor"
)

// Tier 把0到100的分数映射到档位
// 所有展示分数的地方共用这一个函数，保证档位口径一致
func Tier(score int) string {
	switch {
	case score >= 80:
		return TierGood
	case score >= 60:
		return TierWarning
	default:
		return TierPoor
	}
}
