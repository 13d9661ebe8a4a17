package models

import (
	"encoding/json"
	"fmt"
	"time"

	"resume-screener-go/internal/types"
	"resume-screener-go/pkg/utils"

	"gorm.io/datatypes"
)

// AnalysisRecord 分析结果表。
// 指纹唯一，记录创建后不再更新，表是只追加的。
type AnalysisRecord struct {
	AnalysisID        string         `gorm:"type:char(36);primaryKey"`
	Fingerprint       string         `gorm:"type:char(64);not null;uniqueIndex:idx_ar_fingerprint_unique"`
	FileName          string         `gorm:"type:varchar(255);not null;index:idx_ar_file_name"`
	UploadedAt        time.Time      `gorm:"type:datetime(6);not null;index:idx_ar_uploaded_at"`
	ProfileJSON       datatypes.JSON `gorm:"type:json;not null"`
	BreakdownJSON     datatypes.JSON `gorm:"type:json;not null"`
	OverallScore      int            `gorm:"not null;index:idx_ar_overall_score"`
	Shortlisted       bool           `gorm:"not null;index:idx_ar_shortlisted"`
	MatchedSkillsJSON datatypes.JSON `gorm:"type:json"`
	MissingSkillsJSON datatypes.JSON `gorm:"type:json"`
	ParsedTextPathOSS string         `gorm:"type:varchar(1024)"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_results"
}

// NewAnalysisRecord 把领域结果转换为数据库记录
func NewAnalysisRecord(result *types.AnalysisResult) (*AnalysisRecord, error) {
	profileJSON, err := json.Marshal(result.Profile)
	if err != nil {
		return nil, fmt.Errorf("序列化候选人画像失败: %w", err)
	}
	breakdownJSON, err := json.Marshal(result.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("序列化评分明细失败: %w", err)
	}
	return &AnalysisRecord{
		AnalysisID:        result.ID,
		Fingerprint:       result.Fingerprint,
		FileName:          result.FileName,
		UploadedAt:        result.UploadedAt,
		ProfileJSON:       profileJSON,
		BreakdownJSON:     breakdownJSON,
		OverallScore:      result.OverallScore,
		Shortlisted:       result.Shortlisted,
		MatchedSkillsJSON: utils.ConvertArrayToJSON(result.MatchedSkills),
		MissingSkillsJSON: utils.ConvertArrayToJSON(result.MissingSkills),
	}, nil
}

// ToDomain 把数据库记录转换回领域结果
func (r *AnalysisRecord) ToDomain() (*types.AnalysisResult, error) {
	result := &types.AnalysisResult{
		ID:           r.AnalysisID,
		Fingerprint:  r.Fingerprint,
		FileName:     r.FileName,
		UploadedAt:   r.UploadedAt,
		OverallScore: r.OverallScore,
		Shortlisted:  r.Shortlisted,
	}

	if len(r.ProfileJSON) > 0 {
		if err := json.Unmarshal(r.ProfileJSON, &result.Profile); err != nil {
			return nil, fmt.Errorf("反序列化候选人画像失败: %w", err)
		}
	}
	if len(r.BreakdownJSON) > 0 {
		if err := json.Unmarshal(r.BreakdownJSON, &result.Breakdown); err != nil {
			return nil, fmt.Errorf("反序列化评分明细失败: %w", err)
		}
	}
	if len(r.MatchedSkillsJSON) > 0 {
		if err := json.Unmarshal(r.MatchedSkillsJSON, &result.MatchedSkills); err != nil {
			return nil, fmt.Errorf("反序列化命中技能失败: %w", err)
		}
	}
	if len(r.MissingSkillsJSON) > 0 {
		if err := json.Unmarshal(r.MissingSkillsJSON, &result.MissingSkills); err != nil {
			return nil, fmt.Errorf("反序列化缺失技能失败: %w", err)
		}
	}

	return result, nil
}
