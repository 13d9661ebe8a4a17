package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"resume-screener-go/internal/constants"
	"resume-screener-go/internal/extractor"
	"resume-screener-go/internal/ingest"
	"resume-screener-go/internal/scorer"
	"resume-screener-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//
// 测试用Mock，真实的校验、提取与计分逻辑直接复用对应包的实现
//

// mockIngestor 校验与指纹走真实实现，文本提取按脚本返回
type mockIngestor struct {
	mu       sync.Mutex
	real     *ingest.Ingestor
	script   []error // 第n次提取返回的错误，越界或nil表示成功
	delay    time.Duration
	blockCtx bool // 阻塞到上下文结束，模拟挂死的解码
	calls    int
	text     string
}

func (m *mockIngestor) Ingest(rawBytes []byte, mediaType, fileName string) (*types.ResumeDocument, error) {
	return m.real.Ingest(rawBytes, mediaType, fileName)
}

func (m *mockIngestor) ExtractText(ctx context.Context, doc *types.ResumeDocument) (string, error) {
	m.mu.Lock()
	attempt := m.calls
	m.calls++
	m.mu.Unlock()

	if m.blockCtx {
		<-ctx.Done()
		return "", ingest.NewDecodeTimeoutError(doc.FileName, "上下文已结束")
	}
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ingest.NewDecodeTimeoutError(doc.FileName, "上下文已结束")
		case <-time.After(m.delay):
		}
	}
	if attempt < len(m.script) && m.script[attempt] != nil {
		return "", m.script[attempt]
	}
	return m.text, nil
}

func (m *mockIngestor) extractCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockStore 内存版结果存储，指纹冲突时返回已有记录
type mockStore struct {
	mu        sync.Mutex
	results   map[string]*types.AnalysisResult
	saveCalls int
	getErr    error
}

func newMockStore() *mockStore {
	return &mockStore{results: make(map[string]*types.AnalysisResult)}
}

func (s *mockStore) SaveResult(ctx context.Context, result *types.AnalysisResult) (*types.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if existing, ok := s.results[result.Fingerprint]; ok {
		return existing, nil
	}
	s.results[result.Fingerprint] = result
	return result, nil
}

func (s *mockStore) GetResultByFingerprint(ctx context.Context, fingerprint string) (*types.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.results[fingerprint], nil
}

func (s *mockStore) put(result *types.AnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.Fingerprint] = result
}

func (s *mockStore) saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCalls
}

// mockLocker 记录加锁与释放次数
type mockLocker struct {
	mu       sync.Mutex
	acquire  bool
	acquires int
	releases int
}

func (l *mockLocker) AcquireLock(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	return l.acquire, nil
}

func (l *mockLocker) ReleaseLock(ctx context.Context, fingerprint string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	return nil
}

func (l *mockLocker) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquires, l.releases
}

const resumeText = `Jane Smith
Summary:
Engineer with 6 years experience. Led a team and collaborated with stakeholders.
Skills:
- JavaScript, TypeScript, React, Node.js, Docker
Education:
Bachelor of Science in Computer Science
Some University
`

func testRequirement() *types.JobRequirement {
	return &types.JobRequirement{
		RequiredSkills:        []string{"JavaScript", "React", "TypeScript", "Node.js", "AWS", "Kubernetes", "Docker"},
		TargetExperienceYears: 5,
		CategoryWeights: map[string]float64{
			constants.CategoryTechnicalSkills: 0.4,
			constants.CategoryExperience:      0.3,
			constants.CategoryEducation:       0.2,
			constants.CategoryCommunication:   0.1,
		},
		ShortlistThreshold: 70,
	}
}

func newTestOrchestrator(ing *mockIngestor, store *mockStore, options ...OrchestratorOption) *Orchestrator {
	base := []OrchestratorOption{
		WithExtractRetry(constants.DefaultExtractRetries, time.Millisecond),
	}
	return NewOrchestrator(
		ing,
		extractor.NewFeatureExtractor(nil),
		scorer.NewScorer(),
		store,
		append(base, options...)...,
	)
}

func TestAnalyzeEndToEnd(t *testing.T) {
	ing := &mockIngestor{real: ingest.NewIngestor(nil), text: resumeText}
	store := newMockStore()
	o := newTestOrchestrator(ing, store)

	run, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "jane.txt", testRequirement())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.False(t, run.FromCache())

	result, err := run.Wait(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "jane.txt", result.FileName)
	assert.Equal(t, 5, len(result.MatchedSkills))
	assert.Equal(t, []string{"AWS", "Kubernetes"}, result.MissingSkills)
	assert.GreaterOrEqual(t, result.OverallScore, 70)
	assert.True(t, result.Shortlisted)
	assert.Equal(t, 1, store.saves())

	// 终结后的进度必须是 {100, COMPLETED}
	assert.Equal(t, types.ProgressUpdate{Percent: 100, Stage: constants.StageCompleted}, run.Progress())
}

func TestAnalyzeProgressIsMonotonic(t *testing.T) {
	ing := &mockIngestor{real: ingest.NewIngestor(nil), text: resumeText, delay: 20 * time.Millisecond}
	store := newMockStore()
	o := newTestOrchestrator(ing, store)

	run, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "jane.txt", testRequirement())
	require.NoError(t, err)

	ch, unsubscribe := run.Subscribe()
	defer unsubscribe()

	var updates []types.ProgressUpdate
	for u := range ch {
		updates = append(updates, u)
	}

	require.NotEmpty(t, updates)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Percent, updates[i-1].Percent, "进度必须单调不减")
	}
	final := updates[len(updates)-1]
	assert.Equal(t, 100, final.Percent)
	assert.Equal(t, constants.StageCompleted, final.Stage)
}

func TestAnalyzeValidationErrorsAreSynchronous(t *testing.T) {
	ing := &mockIngestor{real: ingest.NewIngestor(nil), text: resumeText}
	store := newMockStore()
	o := newTestOrchestrator(ing, store)

	t.Run("不支持的格式", func(t *testing.T) {
		_, err := o.Analyze(context.Background(), []byte("x"), "application/msword", "r.doc", testRequirement())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ingest.ErrInvalidFormat))
		assert.Equal(t, CategoryValidationError, Classify(err))
	})

	t.Run("超过大小上限", func(t *testing.T) {
		big := make([]byte, constants.MaxResumeFileSize+1)
		_, err := o.Analyze(context.Background(), big, "application/pdf", "big.pdf", testRequirement())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ingest.ErrTooLarge))
		// 大小校验在任何解码尝试之前
		assert.Equal(t, 0, ing.extractCalls())
	})

	// 校验失败不会留下任何run或记录
	assert.Equal(t, 0, store.saves())
}

func TestAnalyzeRejectsInvalidRequirement(t *testing.T) {
	ing := &mockIngestor{real: ingest.NewIngestor(nil), text: resumeText}
	o := newTestOrchestrator(ing, newMockStore())

	req := testRequirement()
	req.CategoryWeights[constants.CategoryEducation] = 0.9

	_, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "jane.txt", req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, scorer.ErrInvalidRequirement))
	assert.Equal(t, CategoryConfigurationError, Classify(err))
	assert.Equal(t, 0, ing.extractCalls())
}

func TestAnalyzeIdempotentHit(t *testing.T) {
	ing := &mockIngestor{real: ingest.NewIngestor(nil), text: resumeText}
	store := newMockStore()
	o := newTestOrchestrator(ing, store)

	first, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "a.txt", testRequirement())
	require.NoError(t, err)
	firstResult, err := first.Wait(context.Background())
	require.NoError(t, err)

	// 同样内容再次上传：直接命中缓存，不再执行流水线
	second, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "b.txt", testRequirement())
	require.NoError(t, err)
	assert.True(t, second.FromCache())

	secondResult, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, firstResult.ID, secondResult.ID)
	assert.Equal(t, "a.txt", secondResult.FileName) // 保留首次上传的文件名

	assert.Equal(t, 1, store.saves())
	assert.Equal(t, 1, ing.extractCalls())
}

func TestAnalyzeConcurrentUploadsShareOneRun(t *testing.T) {
	ing := &mockIngestor{real: ingest.NewIngestor(nil), text: resumeText, delay: 100 * time.Millisecond}
	store := newMockStore()
	o := newTestOrchestrator(ing, store)

	run1, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "a.txt", testRequirement())
	require.NoError(t, err)
	run2, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "b.txt", testRequirement())
	require.NoError(t, err)

	// 进行中的同指纹上传附着到同一个Run
	assert.Same(t, run1, run2)

	r1, err := run1.Wait(context.Background())
	require.NoError(t, err)
	r2, err := run2.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)

	assert.Equal(t, 1, store.saves())
	assert.Equal(t, 1, ing.extractCalls())
}

func TestExtractRetriesThenFails(t *testing.T) {
	unparseable := ingest.NewUnparseableError("r.txt", "坏文档")
	ing := &mockIngestor{
		real:   ingest.NewIngestor(nil),
		script: []error{unparseable, unparseable, unparseable},
	}
	store := newMockStore()
	o := newTestOrchestrator(ing, store, WithExtractRetry(2, time.Millisecond))

	run, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "r.txt", testRequirement())
	require.NoError(t, err)

	_, err = run.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingest.ErrUnparseable))
	assert.Equal(t, CategoryExtractionError, Classify(err))

	// 首次尝试加2次重试
	assert.Equal(t, 3, ing.extractCalls())
	// 失败的分析不留任何记录
	assert.Equal(t, 0, store.saves())
	assert.Equal(t, constants.StageFailed, run.Progress().Stage)
}

func TestExtractRetryThenSucceeds(t *testing.T) {
	ing := &mockIngestor{
		real:   ingest.NewIngestor(nil),
		script: []error{ingest.NewDecodeTimeoutError("r.txt", "第一次超时")},
		text:   resumeText,
	}
	store := newMockStore()
	o := newTestOrchestrator(ing, store, WithExtractRetry(2, time.Millisecond))

	run, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "r.txt", testRequirement())
	require.NoError(t, err)

	result, err := run.Wait(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 2, ing.extractCalls())
	assert.Equal(t, 1, store.saves())
}

func TestCancelStopsRunAtStageBoundary(t *testing.T) {
	ing := &mockIngestor{real: ingest.NewIngestor(nil), blockCtx: true}
	store := newMockStore()
	locker := &mockLocker{acquire: true}
	o := newTestOrchestrator(ing, store, WithLocker(locker))

	run, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "r.txt", testRequirement())
	require.NoError(t, err)

	run.Cancel()

	_, err = run.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Equal(t, CategorySystemError, Classify(err))

	// 取消的分析不落库，指纹锁被释放
	assert.Equal(t, 0, store.saves())
	acquires, releases := locker.counts()
	assert.Equal(t, acquires, releases)
	assert.Equal(t, constants.StageFailed, run.Progress().Stage)
}

func TestGlobalTimeout(t *testing.T) {
	ing := &mockIngestor{real: ingest.NewIngestor(nil), blockCtx: true}
	store := newMockStore()
	o := newTestOrchestrator(ing, store, WithTimeout(50*time.Millisecond))

	run, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "r.txt", testRequirement())
	require.NoError(t, err)

	_, err = run.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPipelineTimeout))
	assert.Equal(t, CategorySystemError, Classify(err))
	assert.Equal(t, 0, store.saves())
}

func TestWaitRespectsCallerContext(t *testing.T) {
	ing := &mockIngestor{real: ingest.NewIngestor(nil), text: resumeText, delay: 200 * time.Millisecond}
	store := newMockStore()
	o := newTestOrchestrator(ing, store)

	run, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "r.txt", testRequirement())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// 一个调用方放弃等待不影响Run本身
	_, err = run.Wait(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	result, err := run.Wait(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestLockHeldByAnotherInstance(t *testing.T) {
	ing := &mockIngestor{real: ingest.NewIngestor(nil), text: resumeText}
	store := newMockStore()
	locker := &mockLocker{acquire: false}
	o := newTestOrchestrator(ing, store, WithLocker(locker))

	run, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "r.txt", testRequirement())
	require.NoError(t, err)

	// 模拟另一实例稍后写入结果
	doc, err := ingest.NewIngestor(nil).Ingest([]byte(resumeText), "text/plain", "r.txt")
	require.NoError(t, err)
	remote := &types.AnalysisResult{ID: "remote-id", Fingerprint: doc.Fingerprint, FileName: "r.txt", OverallScore: 80}
	go func() {
		time.Sleep(100 * time.Millisecond)
		store.put(remote)
	}()

	result, err := run.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "remote-id", result.ID)
	// 锁被别人持有时本实例不执行提取
	assert.Equal(t, 0, ing.extractCalls())
}

func TestGetRun(t *testing.T) {
	ing := &mockIngestor{real: ingest.NewIngestor(nil), text: resumeText, delay: 50 * time.Millisecond}
	o := newTestOrchestrator(ing, newMockStore())

	run, err := o.Analyze(context.Background(), []byte(resumeText), "text/plain", "r.txt", testRequirement())
	require.NoError(t, err)

	got, ok := o.GetRun(run.ID)
	require.True(t, ok)
	assert.Same(t, run, got)

	_, ok = o.GetRun("no-such-run")
	assert.False(t, ok)
}
