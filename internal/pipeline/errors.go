package pipeline

import (
	"errors"
	"fmt"

	"resume-screener-go/internal/ingest"
	"resume-screener-go/internal/scorer"
)

// 定义基础错误类型
var (
	ErrPipelineTimeout = errors.New("分析超过全局时限")
	ErrCancelled       = errors.New("分析被调用方取消")
	ErrStoreFailed     = errors.New("结果存储操作失败")
)

// 错误大类，对外错误响应的 category 字段
const (
	CategoryValidationError    = "ValidationError"
	CategoryExtractionError    = "ExtractionError"
	CategoryConfigurationError = "ConfigurationError"
	CategorySystemError        = "SystemError"
	CategoryInternalError      = "InternalError"
)

// PipelineError 包含详细上下文的自定义错误
type PipelineError struct {
	Fingerprint string
	Stage       string
	BaseErr     error
	Detail      string
}

func (e *PipelineError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (阶段:%s, 指纹:%s): %s", e.BaseErr, e.Stage, shortFP(e.Fingerprint), e.Detail)
	}
	return fmt.Sprintf("%s (阶段:%s, 指纹:%s)", e.BaseErr, e.Stage, shortFP(e.Fingerprint))
}

func (e *PipelineError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewPipelineTimeoutError(fingerprint, stage string) error {
	return &PipelineError{Fingerprint: fingerprint, Stage: stage, BaseErr: ErrPipelineTimeout}
}

func NewCancelledError(fingerprint, stage string) error {
	return &PipelineError{Fingerprint: fingerprint, Stage: stage, BaseErr: ErrCancelled}
}

func NewStoreError(fingerprint, detail string) error {
	return &PipelineError{Fingerprint: fingerprint, Stage: "persist", BaseErr: ErrStoreFailed, Detail: detail}
}

// Classify 把任意流水线错误归入错误大类
func Classify(err error) string {
	switch {
	case ingest.IsValidationError(err):
		return CategoryValidationError
	case ingest.IsExtractionError(err):
		return CategoryExtractionError
	case errors.Is(err, scorer.ErrInvalidRequirement):
		return CategoryConfigurationError
	case errors.Is(err, ErrCancelled), errors.Is(err, ErrPipelineTimeout), errors.Is(err, ErrStoreFailed):
		return CategorySystemError
	default:
		return CategoryInternalError
	}
}

// ErrorCode 把任意流水线错误映射为稳定的机器可读错误码
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ingest.ErrInvalidFormat):
		return "INVALID_FORMAT"
	case errors.Is(err, ingest.ErrTooLarge):
		return "TOO_LARGE"
	case errors.Is(err, ingest.ErrUnparseable):
		return "UNPARSEABLE"
	case errors.Is(err, ingest.ErrDecodeTimeout):
		return "DECODE_TIMEOUT"
	case errors.Is(err, scorer.ErrInvalidRequirement):
		return "INVALID_REQUIREMENT"
	case errors.Is(err, ErrCancelled):
		return "CANCELLED"
	case errors.Is(err, ErrPipelineTimeout):
		return "PIPELINE_TIMEOUT"
	default:
		return "INTERNAL"
	}
}

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
