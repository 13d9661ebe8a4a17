package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"resume-screener-go/internal/api/handler"
	"resume-screener-go/internal/api/router"
	"resume-screener-go/internal/config"
	"resume-screener-go/internal/extractor"
	"resume-screener-go/internal/ingest"
	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/outbox"
	"resume-screener-go/internal/pipeline"
	"resume-screener-go/internal/scorer"
	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzlogger "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "配置文件路径，留空时按默认位置查找")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Init(logger.Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		logger.Fatal().Err(err).Msg("加载配置文件失败")
	}
	initLogger(cfg)

	ctx := context.Background()

	// 链路追踪
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracerProvider(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.SamplingRate)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化链路追踪失败，继续无追踪运行")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					logger.Warn().Err(err).Msg("关闭链路追踪失败")
				}
			}()
		}
	}

	// 存储管理器
	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储管理器失败")
	}
	defer storageManager.Close()

	// 流水线编排器
	orchestrator, err := buildOrchestrator(ctx, cfg, storageManager)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化流水线失败")
	}

	// outbox消息中继，MySQL与RabbitMQ都就绪时才启动
	if storageManager.RabbitMQ != nil {
		interval := config.GetDuration(cfg.RabbitMQ.RetryInterval, 5*time.Second)
		relay := outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ,
			outbox.WithPollingInterval(interval))
		relay.Start()
		defer relay.Stop()
	} else {
		logger.Warn().Msg("RabbitMQ不可用，outbox中继未启动，完成事件将滞留在发件箱")
	}

	// HTTP服务器
	hertzTracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.Default(
		server.WithHostPorts(cfg.Server.Address),
		hertzTracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	analysisHandler := handler.NewAnalysisHandler(cfg, storageManager, orchestrator)
	router.RegisterRoutes(h, analysisHandler)

	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()
	logger.Info().Str("address", cfg.Server.Address).Msg("简历筛选服务已启动")

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}

	logger.Info().Msg("优雅退出完成")
}

func initLogger(cfg *config.Config) {
	logConfig := logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	}
	logger.Init(logConfig)

	logger.Logger = logger.Logger.With().
		Str("app", "resume-screener").
		Logger()

	// hertz内部日志也经由zerolog输出
	hlog.SetLogger(hertzlogger.From(logger.Logger))
}

// buildOrchestrator 按配置装配接收、提取、计分与编排组件
func buildOrchestrator(ctx context.Context, cfg *config.Config, storageManager *storage.Storage) (*pipeline.Orchestrator, error) {
	pdfExtractor, err := ingest.NewEinoPDFTextExtractor(ctx)
	if err != nil {
		return nil, err
	}
	ingestor := ingest.NewIngestor(pdfExtractor)

	featureExtractor := extractor.NewFeatureExtractor(buildTaxonomy(&cfg.Taxonomy))

	scorerOpts := []scorer.ScorerOption{
		scorer.WithCommunicationScorer(scorer.NewCommunicationScorer(cfg.Scoring.CommunicationStrategy, cfg.Scoring.CommunicationFixedScore)),
	}
	if cfg.Scoring.UnknownExperienceBaseline > 0 {
		scorerOpts = append(scorerOpts, scorer.WithUnknownExperienceBaseline(cfg.Scoring.UnknownExperienceBaseline))
	}
	if cfg.Scoring.EducationPartialCredit > 0 {
		scorerOpts = append(scorerOpts, scorer.WithEducationPartialCredit(cfg.Scoring.EducationPartialCredit))
	}
	scoring := scorer.NewScorer(scorerOpts...)

	orchOpts := []pipeline.OrchestratorOption{
		pipeline.WithDefaultRequirement(&cfg.DefaultRequirement),
	}
	if cfg.Pipeline.TimeoutSeconds > 0 {
		orchOpts = append(orchOpts, pipeline.WithTimeout(cfg.PipelineTimeout()))
	}
	if cfg.Pipeline.ExtractRetries > 0 || cfg.Pipeline.ExtractBackoffMS > 0 {
		orchOpts = append(orchOpts, pipeline.WithExtractRetry(cfg.Pipeline.ExtractRetries, cfg.ExtractBackoff()))
	}
	if cfg.Pipeline.MaxConcurrentRuns > 0 {
		orchOpts = append(orchOpts, pipeline.WithMaxConcurrentRuns(int64(cfg.Pipeline.MaxConcurrentRuns)))
	}
	if cfg.Pipeline.LockTTLSeconds > 0 {
		orchOpts = append(orchOpts, pipeline.WithLockTTL(cfg.FingerprintLockTTL()))
	}
	if storageManager.Redis != nil {
		orchOpts = append(orchOpts, pipeline.WithLocker(storageManager.Redis))
	}
	if storageManager.MinIO != nil {
		orchOpts = append(orchOpts, pipeline.WithArchiver(storageManager.MinIO))
	}

	return pipeline.NewOrchestrator(ingestor, featureExtractor, scoring, storageManager.MySQL, orchOpts...), nil
}

// buildTaxonomy 把配置词表叠加在内置默认词表上，配置为空的部分保留默认值
func buildTaxonomy(tc *config.TaxonomyConfig) *extractor.Taxonomy {
	tax := extractor.DefaultTaxonomy()

	if len(tc.Skills) > 0 {
		skills := make([]extractor.SkillEntry, 0, len(tc.Skills))
		for _, s := range tc.Skills {
			skills = append(skills, extractor.SkillEntry{Name: s.Name, Synonyms: s.Synonyms})
		}
		tax.Skills = skills
	}
	if len(tc.Degrees) > 0 {
		degrees := make(map[string]string, len(tc.Degrees))
		for _, d := range tc.Degrees {
			degrees[strings.ToLower(d)] = d
		}
		tax.Degrees = degrees
	}
	if len(tc.Fields) > 0 {
		tax.Fields = tc.Fields
	}
	if len(tc.Institutions) > 0 {
		tax.InstitutionMarkers = tc.Institutions
	}
	if len(tc.CommunicationKeywords) > 0 {
		tax.CommunicationKeywords = tc.CommunicationKeywords
	}
	return tax
}
