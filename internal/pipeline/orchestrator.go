package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"resume-screener-go/internal/constants"
	"resume-screener-go/internal/ingest"
	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/scorer"
	"resume-screener-go/internal/tracing"
	"resume-screener-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("resume-screener-go/internal/pipeline")

// Orchestrator 流水线编排器：驱动校验、提取、计分、持久化四个阶段，
// 维护按指纹索引的进行中Run注册表，保证同一内容至多分析一次。
type Orchestrator struct {
	ingestor DocumentIngestor
	features ProfileExtractor
	scoring  ResultScorer
	store    ResultStore
	locker   FingerprintLocker
	archiver TextArchiver

	timeout        time.Duration
	extractRetries int
	extractBackoff time.Duration
	lockTTL        time.Duration
	retain         time.Duration
	defaultReq     *types.JobRequirement

	sem *semaphore.Weighted

	mu   sync.Mutex
	byFP map[string]*Run
	byID map[string]*Run
}

// OrchestratorOption 编排器配置选项
type OrchestratorOption func(*Orchestrator)

// WithLocker 启用指纹级分布式锁（多实例部署时使用）
func WithLocker(l FingerprintLocker) OrchestratorOption {
	return func(o *Orchestrator) { o.locker = l }
}

// WithArchiver 启用解析文本归档
func WithArchiver(a TextArchiver) OrchestratorOption {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithTimeout 覆盖单次分析的全局超时
func WithTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithExtractRetry 覆盖提取阶段的重试次数与初始退避间隔
func WithExtractRetry(retries int, backoff time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if retries >= 0 {
			o.extractRetries = retries
		}
		if backoff > 0 {
			o.extractBackoff = backoff
		}
	}
}

// WithMaxConcurrentRuns 覆盖并发分析数上限
func WithMaxConcurrentRuns(n int64) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithLockTTL 覆盖分布式锁的过期时间
func WithLockTTL(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.lockTTL = d
		}
	}
}

// WithDefaultRequirement 设置未显式传入岗位要求时使用的默认要求
func WithDefaultRequirement(req *types.JobRequirement) OrchestratorOption {
	return func(o *Orchestrator) {
		if req != nil {
			o.defaultReq = req
		}
	}
}

// WithRunRetention 覆盖已结束Run在注册表中的保留时间（供进度查询）
func WithRunRetention(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.retain = d
		}
	}
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	ingestor DocumentIngestor,
	features ProfileExtractor,
	scoring ResultScorer,
	store ResultStore,
	options ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		ingestor:       ingestor,
		features:       features,
		scoring:        scoring,
		store:          store,
		timeout:        constants.DefaultPipelineTimeout,
		extractRetries: constants.DefaultExtractRetries,
		extractBackoff: constants.DefaultExtractBackoff,
		lockTTL:        constants.DefaultFingerprintLockTTL,
		retain:         5 * time.Minute,
		sem:            semaphore.NewWeighted(constants.DefaultMaxConcurrentRuns),
		byFP:           make(map[string]*Run),
		byID:           make(map[string]*Run),
	}
	for _, option := range options {
		option(o)
	}
	return o
}

// Analyze 提交一份简历进行分析。
// 校验错误和岗位要求错误同步返回；其余工作在后台Run中异步进行。
// 同一指纹的结果已存在时直接返回已完成的Run（幂等），
// 同一指纹正在分析时附着到进行中的Run（合并并发）。
func (o *Orchestrator) Analyze(ctx context.Context, rawBytes []byte, mediaType, fileName string, req *types.JobRequirement) (*Run, error) {
	if req == nil {
		req = o.defaultReq
	}
	// 配置错误必须在进入流水线之前同步拒绝
	if err := scorer.ValidateRequirement(req); err != nil {
		return nil, err
	}

	doc, err := o.ingestor.Ingest(rawBytes, mediaType, fileName)
	if err != nil {
		return nil, err
	}

	// 幂等短路：同一内容只分析一次
	existing, err := o.store.GetResultByFingerprint(ctx, doc.Fingerprint)
	if err != nil {
		return nil, NewStoreError(doc.Fingerprint, err.Error())
	}
	if existing != nil {
		logger.Debug().Str("fingerprint", shortFP(doc.Fingerprint)).Msg("指纹命中已有结果，跳过流水线")
		return newCachedRun(existing), nil
	}

	o.mu.Lock()
	if active, ok := o.byFP[doc.Fingerprint]; ok {
		o.mu.Unlock()
		logger.Debug().Str("fingerprint", shortFP(doc.Fingerprint)).Msg("附着到进行中的分析")
		return active, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	run := newRun(id.String(), doc.Fingerprint, fileName)
	runCtx, cancel := context.WithTimeout(context.Background(), o.timeout)
	run.cancel = cancel
	o.byFP[doc.Fingerprint] = run
	o.byID[run.ID] = run
	o.mu.Unlock()

	go o.execute(runCtx, run, doc, req)

	return run, nil
}

// GetRun 按Run ID查询进行中或刚结束不久的Run
func (o *Orchestrator) GetRun(id string) (*Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.byID[id]
	return run, ok
}

// execute 在后台执行流水线的各个阶段，每个阶段边界检查一次取消与超时
func (o *Orchestrator) execute(ctx context.Context, run *Run, doc *types.ResumeDocument, req *types.JobRequirement) {
	ctx, span := tracer.Start(ctx, "pipeline.analyze")
	span.SetAttributes(
		attribute.String("resume.fingerprint", shortFP(doc.Fingerprint)),
		attribute.String("resume.file_name", doc.FileName),
		attribute.Int64("resume.size", doc.Size),
	)

	var (
		result   *types.AnalysisResult
		finalErr error
	)
	defer func() {
		if finalErr != nil {
			tracing.RecordError(span, finalErr, tracing.ErrorTypePipeline)
			logger.Warn().Err(finalErr).
				Str("fingerprint", shortFP(doc.Fingerprint)).
				Str("category", Classify(finalErr)).
				Msg("分析失败")
		} else {
			logger.Info().
				Str("analysis_id", result.ID).
				Str("fingerprint", shortFP(doc.Fingerprint)).
				Int("overall_score", result.OverallScore).
				Bool("shortlisted", result.Shortlisted).
				Msg("分析完成")
		}
		span.End()
		o.finish(run, doc.Fingerprint, result, finalErr)
	}()

	// 并发额度：满载时在这里排队，排队同样受全局超时约束
	if err := o.sem.Acquire(ctx, 1); err != nil {
		finalErr = o.abortError(ctx, doc.Fingerprint, constants.StageIdle)
		return
	}
	defer o.sem.Release(1)

	// 分布式锁只是多实例间的去重优化，进程内注册表已保证单实例正确性，
	// 因此锁服务故障时降级为继续执行
	if o.locker != nil {
		acquired, err := o.locker.AcquireLock(ctx, doc.Fingerprint, o.lockTTL)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("fingerprint", shortFP(doc.Fingerprint)).Msg("获取指纹锁失败，降级为本地执行")
		case !acquired:
			// 其他实例正在分析同一指纹，轮询等它的结果
			result, finalErr = o.awaitRemoteResult(ctx, doc.Fingerprint)
			return
		default:
			defer func() {
				releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer releaseCancel()
				if err := o.locker.ReleaseLock(releaseCtx, doc.Fingerprint); err != nil {
					logger.Warn().Err(err).Str("fingerprint", shortFP(doc.Fingerprint)).Msg("释放指纹锁失败")
				}
			}()
		}
	}

	run.publish(constants.ProgressValidating, constants.StageValidating)
	if finalErr = o.abortIfDone(ctx, doc.Fingerprint, constants.StageValidating); finalErr != nil {
		return
	}

	text, err := o.extractTextWithRetry(ctx, doc)
	if err != nil {
		finalErr = err
		return
	}
	span.SetAttributes(attribute.String("resume.text_preview", tracing.SafeResumeText(text)))
	run.publish(constants.ProgressExtracting, constants.StageExtracting)
	if finalErr = o.abortIfDone(ctx, doc.Fingerprint, constants.StageExtracting); finalErr != nil {
		return
	}

	profile := o.features.Extract(text)
	outcome, err := o.scoring.Score(profile, req)
	if err != nil {
		finalErr = err
		return
	}
	run.publish(constants.ProgressScoring, constants.StageScoring)
	if finalErr = o.abortIfDone(ctx, doc.Fingerprint, constants.StageScoring); finalErr != nil {
		return
	}

	candidate := &types.AnalysisResult{
		ID:            run.ID,
		Fingerprint:   doc.Fingerprint,
		FileName:      doc.FileName,
		UploadedAt:    doc.UploadedAt,
		Profile:       *profile,
		Breakdown:     outcome.Breakdown,
		OverallScore:  outcome.OverallScore,
		Shortlisted:   outcome.Shortlisted,
		MatchedSkills: outcome.MatchedSkills,
		MissingSkills: outcome.MissingSkills,
	}

	saved, err := o.store.SaveResult(ctx, candidate)
	if err != nil {
		finalErr = NewStoreError(doc.Fingerprint, err.Error())
		return
	}
	result = saved

	// 指纹索引与归档都是尽力而为，失败不影响已落库的结果
	if indexer, ok := o.locker.(FingerprintIndexer); ok {
		if err := indexer.RecordFingerprint(ctx, doc.Fingerprint, saved.ID); err != nil {
			logger.Warn().Err(err).Str("fingerprint", shortFP(doc.Fingerprint)).Msg("记录指纹索引失败")
		}
	}
	if o.archiver != nil {
		path, err := o.archiver.StoreParsedText(ctx, saved.ID, text)
		if err != nil {
			logger.Warn().Err(err).Str("analysis_id", saved.ID).Msg("解析文本归档失败")
		} else if recorder, ok := o.store.(ParsedTextPathRecorder); ok {
			if err := recorder.RecordParsedTextPath(ctx, saved.ID, path); err != nil {
				logger.Warn().Err(err).Str("analysis_id", saved.ID).Msg("回填归档路径失败")
			}
		}
	}
}

// finish 终结Run并维护注册表：按指纹的条目立即移除，
// 按ID的条目保留一段时间供进度查询，然后清理
func (o *Orchestrator) finish(run *Run, fingerprint string, result *types.AnalysisResult, err error) {
	run.complete(result, err)
	run.cancel()

	o.mu.Lock()
	delete(o.byFP, fingerprint)
	o.mu.Unlock()

	time.AfterFunc(o.retain, func() {
		o.mu.Lock()
		delete(o.byID, run.ID)
		o.mu.Unlock()
	})
}

// extractTextWithRetry 提取文本，提取类错误按指数退避重试，其他错误立即失败
func (o *Orchestrator) extractTextWithRetry(ctx context.Context, doc *types.ResumeDocument) (string, error) {
	backoff := o.extractBackoff
	var lastErr error

	for attempt := 0; attempt <= o.extractRetries; attempt++ {
		if attempt > 0 {
			logger.Warn().Err(lastErr).
				Str("fingerprint", shortFP(doc.Fingerprint)).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("文本提取重试")
			select {
			case <-ctx.Done():
				return "", o.abortError(ctx, doc.Fingerprint, constants.StageExtracting)
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		text, err := o.ingestor.ExtractText(ctx, doc)
		if err == nil {
			return text, nil
		}
		// 全局超时或取消优先于错误重试
		if abortErr := o.abortIfDone(ctx, doc.Fingerprint, constants.StageExtracting); abortErr != nil {
			return "", abortErr
		}
		if !ingest.IsExtractionError(err) {
			return "", err
		}
		lastErr = err
	}

	return "", lastErr
}

// awaitRemoteResult 另一实例持有指纹锁时，轮询结果存储直到它完成。
// 锁服务带指纹索引时先查索引，命中前不去打扰结果存储。
func (o *Orchestrator) awaitRemoteResult(ctx context.Context, fingerprint string) (*types.AnalysisResult, error) {
	indexer, hasIndex := o.locker.(FingerprintIndexer)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		poll := true
		if hasIndex {
			id, err := indexer.LookupFingerprint(ctx, fingerprint)
			if err != nil {
				hasIndex = false // 索引不可用则退回纯轮询
			} else {
				poll = id != ""
			}
		}
		if poll {
			result, err := o.store.GetResultByFingerprint(ctx, fingerprint)
			if err == nil && result != nil {
				return result, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, o.abortError(ctx, fingerprint, "await_remote")
		case <-ticker.C:
		}
	}
}

// abortIfDone 上下文已结束时返回对应的系统错误，否则返回nil
func (o *Orchestrator) abortIfDone(ctx context.Context, fingerprint, stage string) error {
	if ctx.Err() == nil {
		return nil
	}
	return o.abortError(ctx, fingerprint, stage)
}

// abortError 把上下文结束原因映射为超时或取消错误
func (o *Orchestrator) abortError(ctx context.Context, fingerprint, stage string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewPipelineTimeoutError(fingerprint, stage)
	}
	return NewCancelledError(fingerprint, stage)
}
