package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"resume-screener-go/internal/logger"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

// EinoPDFTextExtractor 使用 Eino PDF Parser 提取简历文本
type EinoPDFTextExtractor struct {
	parser        *pdf.PDFParser
	decodeTimeout time.Duration
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFTextExtractor)

// WithDecodeTimeout 配置单次解码的超时时间
func WithDecodeTimeout(d time.Duration) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		if d > 0 {
			e.decodeTimeout = d
		}
	}
}

// NewEinoPDFTextExtractor 初始化 Eino PDF 文本提取器
// 默认配置为不按页面分割，以获取整个文档的连续文本
func NewEinoPDFTextExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false, // 非常重要：我们希望获取整个PDF的文本作为单个字符串
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Eino PDF parser 失败: %w", err)
	}

	extractor := &EinoPDFTextExtractor{
		parser:        p,
		decodeTimeout: 30 * time.Second,
	}

	for _, option := range options {
		option(extractor)
	}

	return extractor, nil
}

// ExtractTextFromBytes 从PDF字节内容中提取完整的纯文本
// 解码超时映射为 ErrDecodeTimeout，空文档映射为 ErrUnparseable
func (e *EinoPDFTextExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, error) {
	startTime := time.Now()
	logger.Debug().Str("uri", uri).Int("bytes", len(data)).Msg("开始提取PDF文本")

	extraMeta := map[string]interface{}{
		"source_uri":      uri,
		"extraction_time": time.Now().Format(time.RFC3339),
	}

	// 创建带超时的上下文，防止畸形PDF让解码挂死
	decodeCtx, cancel := context.WithTimeout(ctx, e.decodeTimeout)
	defer cancel()

	docs, err := e.parser.Parse(decodeCtx, bytes.NewReader(data),
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(extraMeta),
	)

	duration := time.Since(startTime)
	if err != nil {
		// 区分解码超时与普通解析失败：上层对二者的处置相同（有限重试），
		// 但错误分类要保持稳定以便调用方统计
		if errors.Is(err, context.DeadlineExceeded) || decodeCtx.Err() == context.DeadlineExceeded {
			logger.Warn().Str("uri", uri).Dur("duration", duration).Msg("PDF解码超时")
			return "", NewDecodeTimeoutError(uri, fmt.Sprintf("解码超过 %s", e.decodeTimeout))
		}
		logger.Warn().Err(err).Str("uri", uri).Dur("duration", duration).Msg("PDF解析失败")
		return "", NewUnparseableError(uri, err.Error())
	}

	if len(docs) == 0 {
		return "", NewUnparseableError(uri, "解析器未返回任何文档")
	}

	// 合并所有文档的内容（以防万一返回了多个）
	var buf bytes.Buffer
	for i, doc := range docs {
		buf.WriteString(doc.Content)
		if i < len(docs)-1 {
			buf.WriteString("\n\n")
		}
	}

	text := buf.String()
	if len(bytes.TrimSpace([]byte(text))) == 0 {
		// 扫描件或无文本层的PDF
		return "", NewUnparseableError(uri, "文档不含可提取的文本层")
	}

	logger.Debug().Str("uri", uri).Int("chars", len(text)).Dur("duration", duration).Msg("PDF文本提取完成")
	return text, nil
}
