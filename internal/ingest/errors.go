package ingest

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	// 校验错误：立即同步返回，永不重试
	ErrInvalidFormat = errors.New("不支持的文件格式")
	ErrTooLarge      = errors.New("文件超过大小上限")

	// 提取错误：由编排器有限重试后作为流水线失败上报
	ErrUnparseable   = errors.New("无法解析文档文本")
	ErrDecodeTimeout = errors.New("文档解码超时")
)

// IngestError 包含详细上下文的自定义错误
type IngestError struct {
	FileName string
	Op       string
	BaseErr  error
	Detail   string
}

func (e *IngestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 文件:%s): %s", e.BaseErr, e.Op, e.FileName, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 文件:%s)", e.BaseErr, e.Op, e.FileName)
}

func (e *IngestError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *IngestError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewInvalidFormatError(fileName, detail string) error {
	return &IngestError{FileName: fileName, Op: "validate", BaseErr: ErrInvalidFormat, Detail: detail}
}

func NewTooLargeError(fileName, detail string) error {
	return &IngestError{FileName: fileName, Op: "validate", BaseErr: ErrTooLarge, Detail: detail}
}

func NewUnparseableError(fileName, detail string) error {
	return &IngestError{FileName: fileName, Op: "extract", BaseErr: ErrUnparseable, Detail: detail}
}

func NewDecodeTimeoutError(fileName, detail string) error {
	return &IngestError{FileName: fileName, Op: "extract", BaseErr: ErrDecodeTimeout, Detail: detail}
}

// IsValidationError 判断是否属于校验类错误（InvalidFormat/TooLarge）
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidFormat) || errors.Is(err, ErrTooLarge)
}

// IsExtractionError 判断是否属于提取类错误（Unparseable/DecodeTimeout）
func IsExtractionError(err error) bool {
	return errors.Is(err, ErrUnparseable) || errors.Is(err, ErrDecodeTimeout)
}
