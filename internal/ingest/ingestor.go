package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"resume-screener-go/internal/constants"
	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/types"
	"resume-screener-go/pkg/utils"
)

// TextExtractor PDF文本提取接口，便于测试时注入Mock
type TextExtractor interface {
	ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, error)
}

// Ingestor 文档接收器：负责入库前的校验、指纹计算与文本提取
type Ingestor struct {
	pdfExtractor TextExtractor
	maxFileSize  int64
}

// IngestorOption 接收器配置选项
type IngestorOption func(*Ingestor)

// WithMaxFileSize 覆盖默认的文件大小上限
func WithMaxFileSize(n int64) IngestorOption {
	return func(ing *Ingestor) {
		if n > 0 {
			ing.maxFileSize = n
		}
	}
}

// NewIngestor 创建文档接收器
func NewIngestor(pdfExtractor TextExtractor, options ...IngestorOption) *Ingestor {
	ing := &Ingestor{
		pdfExtractor: pdfExtractor,
		maxFileSize:  constants.MaxResumeFileSize,
	}
	for _, option := range options {
		option(ing)
	}
	return ing
}

// normalizeMediaType 归一化媒体类型：小写并去掉参数部分（如 charset）
func normalizeMediaType(mediaType string) string {
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// Validate 同步校验文件格式与大小，校验失败立即返回且不进入流水线
func (ing *Ingestor) Validate(mediaType string, size int64, fileName string) error {
	mt := normalizeMediaType(mediaType)
	if mt != constants.MediaTypePDF && mt != constants.MediaTypePlainText {
		return NewInvalidFormatError(fileName, fmt.Sprintf("不支持的媒体类型: %q", mediaType))
	}
	// 大小校验必须在任何解码尝试之前完成
	if size > ing.maxFileSize {
		return NewTooLargeError(fileName, fmt.Sprintf("文件 %d 字节，上限 %d 字节", size, ing.maxFileSize))
	}
	return nil
}

// Ingest 校验原始字节并构建带内容指纹的简历文档
// 指纹为原始字节的 SHA-256，同样的内容永远得到同样的指纹
func (ing *Ingestor) Ingest(rawBytes []byte, mediaType, fileName string) (*types.ResumeDocument, error) {
	if err := ing.Validate(mediaType, int64(len(rawBytes)), fileName); err != nil {
		return nil, err
	}

	doc := &types.ResumeDocument{
		RawBytes:    rawBytes,
		MediaType:   normalizeMediaType(mediaType),
		FileName:    fileName,
		Size:        int64(len(rawBytes)),
		Fingerprint: utils.CalculateFingerprint(rawBytes),
		UploadedAt:  time.Now(),
	}

	logger.Debug().
		Str("file_name", fileName).
		Str("media_type", doc.MediaType).
		Int64("size", doc.Size).
		Str("fingerprint", doc.Fingerprint[:12]).
		Msg("文档校验通过")

	return doc, nil
}

// ExtractText 按媒体类型提取纯文本
// PDF 走解码器，纯文本原样返回；两者的失败都归入提取类错误
func (ing *Ingestor) ExtractText(ctx context.Context, doc *types.ResumeDocument) (string, error) {
	switch doc.MediaType {
	case constants.MediaTypePDF:
		if ing.pdfExtractor == nil {
			return "", NewUnparseableError(doc.FileName, "未配置PDF解码器")
		}
		return ing.pdfExtractor.ExtractTextFromBytes(ctx, doc.RawBytes, doc.FileName)
	case constants.MediaTypePlainText:
		if !utf8.Valid(doc.RawBytes) {
			return "", NewUnparseableError(doc.FileName, "文本内容不是合法的 UTF-8")
		}
		text := string(doc.RawBytes)
		if strings.TrimSpace(text) == "" {
			return "", NewUnparseableError(doc.FileName, "文本内容为空")
		}
		return text, nil
	default:
		// Validate 之后不应该到达这里
		return "", NewInvalidFormatError(doc.FileName, fmt.Sprintf("未知媒体类型: %q", doc.MediaType))
	}
}
