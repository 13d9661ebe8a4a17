package pipeline

import (
	"context"
	"sync"

	"resume-screener-go/internal/constants"
	"resume-screener-go/internal/types"
)

// Run 一次进行中或已结束的分析。
// 同一指纹的并发上传共享同一个Run，各调用方独立Wait与订阅进度。
type Run struct {
	ID          string
	Fingerprint string
	FileName    string

	mu          sync.Mutex
	current     types.ProgressUpdate
	subscribers map[int]chan types.ProgressUpdate
	nextSubID   int
	result      *types.AnalysisResult
	err         error

	done   chan struct{}
	cancel context.CancelFunc
	cached bool
}

func newRun(id, fingerprint, fileName string) *Run {
	return &Run{
		ID:          id,
		Fingerprint: fingerprint,
		FileName:    fileName,
		current:     types.ProgressUpdate{Percent: constants.ProgressIdle, Stage: constants.StageIdle},
		subscribers: make(map[int]chan types.ProgressUpdate),
		done:        make(chan struct{}),
	}
}

// newCachedRun 幂等命中时返回的已完成Run，不经过流水线
func newCachedRun(result *types.AnalysisResult) *Run {
	r := &Run{
		ID:          result.ID,
		Fingerprint: result.Fingerprint,
		FileName:    result.FileName,
		current:     types.ProgressUpdate{Percent: constants.ProgressCompleted, Stage: constants.StageCompleted},
		subscribers: make(map[int]chan types.ProgressUpdate),
		result:      result,
		done:        make(chan struct{}),
		cached:      true,
	}
	close(r.done)
	return r
}

// publish 推进进度并广播给所有订阅者。
// 进度只会单调不减，慢订阅者会丢弃中间值但总能看到最新值。
func (r *Run) publish(percent int, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.done:
		return
	default:
	}

	if percent < r.current.Percent {
		percent = r.current.Percent
	}
	r.current = types.ProgressUpdate{Percent: percent, Stage: stage}
	for _, ch := range r.subscribers {
		select {
		case ch <- r.current:
		default:
		}
	}
}

// complete 终结Run：记录结果或错误，广播终态并关闭全部订阅通道
func (r *Run) complete(result *types.AnalysisResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.done:
		return
	default:
	}

	r.result = result
	r.err = err
	if err != nil {
		// 失败时百分比停在最后到达的阶段，只有COMPLETED才会是100
		r.current = types.ProgressUpdate{Percent: r.current.Percent, Stage: constants.StageFailed}
	} else {
		r.current = types.ProgressUpdate{Percent: constants.ProgressCompleted, Stage: constants.StageCompleted}
	}

	for id, ch := range r.subscribers {
		select {
		case ch <- r.current:
		default:
		}
		close(ch)
		delete(r.subscribers, id)
	}
	close(r.done)
}

// Subscribe 订阅进度更新，首条消息是当前进度快照。
// Run结束时通道会被关闭；返回的函数用于提前退订。
func (r *Run) Subscribe() (<-chan types.ProgressUpdate, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan types.ProgressUpdate, 8)
	ch <- r.current

	select {
	case <-r.done:
		close(ch)
		return ch, func() {}
	default:
	}

	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = ch

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(ch)
		}
	}
}

// Progress 当前进度快照
func (r *Run) Progress() types.ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Done 在Run终结时关闭
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Result 终结后的结果与错误，终结前调用返回 (nil, nil)
func (r *Run) Result() (*types.AnalysisResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return r.result, r.err
	default:
		return nil, nil
	}
}

// Wait 阻塞到Run终结或调用方上下文结束。
// 调用方退出不影响Run本身，其他附着的调用方照常拿到结果。
func (r *Run) Wait(ctx context.Context) (*types.AnalysisResult, error) {
	select {
	case <-r.done:
		return r.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel 协作式取消：流水线在下一个阶段边界停止
func (r *Run) Cancel() {
	if r.cancel != nil {
		r.cancel()
	}
}

// FromCache 是否为幂等命中（未真正执行流水线）
func (r *Run) FromCache() bool {
	return r.cached
}
