package router

import (
	"context"
	"encoding/json"
	"io"
	"strconv"

	"resume-screener-go/internal/api/handler"
	"resume-screener-go/internal/pipeline"
	"resume-screener-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/sse"
	"go.opentelemetry.io/otel/trace"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, analysisHandler *handler.AnalysisHandler) {
	api := h.Group("/api/v1")

	api.POST("/analysis/upload", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		fileBytes, err := io.ReadAll(file)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "读取文件内容失败"})
			return
		}

		// 声明的媒体类型取自multipart分片头
		mediaType := fileHeader.Header.Get("Content-Type")
		requirementJSON := ctx.PostForm("requirement")

		resp, err := analysisHandler.HandleAnalysisUpload(c, fileBytes, mediaType, fileHeader.Filename, requirementJSON)
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.GET("/analysis", func(c context.Context, ctx *app.RequestContext) {
		limit, _ := strconv.Atoi(ctx.Query("limit"))
		offset, _ := strconv.Atoi(ctx.Query("offset"))

		resp, err := analysisHandler.ListAnalyses(c, ctx.Query("search"), ctx.Query("order"), limit, offset)
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.GET("/analysis/stats", func(c context.Context, ctx *app.RequestContext) {
		stats, err := analysisHandler.GetStats(c)
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, stats)
	})

	api.GET("/analysis/:id", func(c context.Context, ctx *app.RequestContext) {
		result, err := analysisHandler.GetAnalysis(c, ctx.Param("id"))
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		if result == nil {
			ctx.JSON(consts.StatusNotFound, utils.H{"error": "分析结果不存在"})
			return
		}
		ctx.JSON(consts.StatusOK, result)
	})

	api.GET("/analysis/:id/report", func(c context.Context, ctx *app.RequestContext) {
		url, err := analysisHandler.GetReportURL(c, ctx.Param("id"))
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		if url == "" {
			ctx.JSON(consts.StatusNotFound, utils.H{"error": "分析结果不存在"})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"url": url})
	})

	// SSE进度流：首条为当前进度快照，Run终结后发送terminal事件并结束
	api.GET("/analysis/runs/:id/progress", func(c context.Context, ctx *app.RequestContext) {
		run, ok := analysisHandler.GetRun(ctx.Param("id"))
		if !ok {
			ctx.JSON(consts.StatusNotFound, utils.H{"error": "Run不存在或已过期"})
			return
		}

		updates, unsubscribe := run.Subscribe()
		defer unsubscribe()

		ctx.SetStatusCode(consts.StatusOK)
		stream := sse.NewStream(ctx)

		for {
			select {
			case <-c.Done():
				return
			case update, open := <-updates:
				if !open {
					publishTerminal(stream, run)
					return
				}
				data, _ := json.Marshal(update)
				if err := stream.Publish(&sse.Event{Event: "progress", Data: data}); err != nil {
					return
				}
			}
		}
	})

	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, analysisHandler.Health())
	})
}

// publishTerminal 发送终态事件，失败时携带错误大类与错误码
func publishTerminal(stream *sse.Stream, run *pipeline.Run) {
	_, err := run.Result()
	payload := map[string]interface{}{
		"progress": run.Progress(),
	}
	if err != nil {
		payload["category"] = pipeline.Classify(err)
		payload["code"] = pipeline.ErrorCode(err)
		payload["error"] = err.Error()
	} else {
		payload["analysis_id"] = run.ID
	}
	data, _ := json.Marshal(payload)
	_ = stream.Publish(&sse.Event{Event: "terminal", Data: data})
}

// writeError 把流水线错误映射为HTTP状态码与结构化错误体，并记录到当前请求span
func writeError(c context.Context, ctx *app.RequestContext, err error) {
	category := pipeline.Classify(err)

	var status int
	switch category {
	case pipeline.CategoryValidationError:
		status = consts.StatusBadRequest
	case pipeline.CategoryConfigurationError, pipeline.CategoryExtractionError:
		status = consts.StatusUnprocessableEntity
	case pipeline.CategorySystemError:
		status = consts.StatusServiceUnavailable
	default:
		status = consts.StatusInternalServerError
	}

	tracing.RecordHTTPError(trace.SpanFromContext(c), err, status)
	ctx.JSON(status, utils.H{
		"error":    err.Error(),
		"category": category,
		"code":     pipeline.ErrorCode(err),
	})
}
