package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"resume-screener-go/internal/config"
	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/pipeline"
	"resume-screener-go/internal/scorer"
	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/types"
)

// 上传响应状态
const (
	StatusProcessing   = "PROCESSING"
	StatusFromCache    = "COMPLETED_FROM_CACHE"
	reportURLValidity  = 15 * time.Minute
	defaultListLimit   = 20
	maxListLimit       = 100
)

// AnalysisHandler 简历分析接口处理器
type AnalysisHandler struct {
	cfg          *config.Config
	storage      *storage.Storage
	orchestrator *pipeline.Orchestrator
}

// NewAnalysisHandler 创建分析处理器
func NewAnalysisHandler(cfg *config.Config, storage *storage.Storage, orchestrator *pipeline.Orchestrator) *AnalysisHandler {
	return &AnalysisHandler{
		cfg:          cfg,
		storage:      storage,
		orchestrator: orchestrator,
	}
}

// AnalysisUploadResponse 上传接口响应
type AnalysisUploadResponse struct {
	AnalysisID  string `json:"analysis_id"`
	Fingerprint string `json:"fingerprint"`
	Status      string `json:"status"`

	// 幂等命中时直接返回已有结果
	Result *types.AnalysisResponse `json:"result,omitempty"`
}

// AnalysisListResponse 列表接口响应
type AnalysisListResponse struct {
	Items  []*types.AnalysisResponse `json:"items"`
	Total  int64                     `json:"total"`
	Limit  int                       `json:"limit"`
	Offset int                       `json:"offset"`
}

// HandleAnalysisUpload 接收上传内容并启动分析流水线。
// requirementJSON为空时使用服务默认的岗位要求。
func (h *AnalysisHandler) HandleAnalysisUpload(ctx context.Context, fileBytes []byte, mediaType, fileName, requirementJSON string) (*AnalysisUploadResponse, error) {
	var req *types.JobRequirement
	if requirementJSON != "" {
		req = &types.JobRequirement{}
		if err := json.Unmarshal([]byte(requirementJSON), req); err != nil {
			return nil, fmt.Errorf("解析岗位要求JSON失败: %w", scorer.ErrInvalidRequirement)
		}
	}

	run, err := h.orchestrator.Analyze(ctx, fileBytes, mediaType, fileName, req)
	if err != nil {
		return nil, err
	}

	resp := &AnalysisUploadResponse{
		AnalysisID:  run.ID,
		Fingerprint: run.Fingerprint,
		Status:      StatusProcessing,
	}
	if run.FromCache() {
		result, _ := run.Result()
		resp.Status = StatusFromCache
		resp.Result = result.ToResponse()
	}

	logger.Info().
		Str("analysis_id", run.ID).
		Str("filename", fileName).
		Str("status", resp.Status).
		Msg("接收简历上传")
	return resp, nil
}

// GetAnalysis 按ID查询分析结果，未找到返回(nil, nil)
func (h *AnalysisHandler) GetAnalysis(ctx context.Context, id string) (*types.AnalysisResponse, error) {
	result, err := h.storage.MySQL.GetResultByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.ToResponse(), nil
}

// ListAnalyses 查询分析结果列表，过滤与排序在存储层完成
func (h *AnalysisHandler) ListAnalyses(ctx context.Context, search, order string, limit, offset int) (*AnalysisListResponse, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	results, total, err := h.storage.MySQL.ListAnalyses(ctx, storage.ListOptions{
		Search: search,
		Order:  order,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}

	items := make([]*types.AnalysisResponse, 0, len(results))
	for _, r := range results {
		items = append(items, r.ToResponse())
	}
	return &AnalysisListResponse{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// GetStats 查询分析汇总统计
func (h *AnalysisHandler) GetStats(ctx context.Context) (*types.AnalysisStats, error) {
	return h.storage.MySQL.GetAnalysisStats(ctx)
}

// GetReportURL 生成分析报告的预签名下载URL。
// 报告对象按需生成，首次请求时从已落库的结果导出。
func (h *AnalysisHandler) GetReportURL(ctx context.Context, id string) (string, error) {
	if h.storage.MinIO == nil {
		return "", fmt.Errorf("对象存储未配置，报告导出不可用")
	}

	result, err := h.storage.MySQL.GetResultByID(ctx, id)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}

	exists, err := h.storage.MinIO.ReportExists(ctx, id)
	if err != nil {
		return "", err
	}
	if !exists {
		if _, err := h.storage.MinIO.StoreAnalysisReport(ctx, result); err != nil {
			return "", err
		}
	}
	return h.storage.MinIO.GetReportURL(ctx, id, reportURLValidity)
}

// GetRun 按Run ID查询进行中的分析
func (h *AnalysisHandler) GetRun(id string) (*pipeline.Run, bool) {
	return h.orchestrator.GetRun(id)
}

// HealthStatus 健康检查结果
type HealthStatus struct {
	Status   string   `json:"status"`
	Degraded []string `json:"degraded,omitempty"`
}

// Health 返回服务健康状态，部分组件降级时status为degraded
func (h *AnalysisHandler) Health() *HealthStatus {
	status := &HealthStatus{Status: "ok"}
	if d := h.storage.Degraded(); len(d) > 0 {
		status.Status = "degraded"
		status.Degraded = d
	}
	return status
}
