package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"resume-screener-go/internal/config"
	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/types"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// MinIO 对象存储：解析文本归档与JSON分析报告。
// 原始简历字节不落对象存储，流水线结束后即丢弃。
type MinIO struct {
	client           *minio.Client
	parsedTextBucket string
	reportsBucket    string
	cfg              *config.MinIOConfig
}

// NewMinIO 创建MinIO客户端并确保桶与生命周期规则就绪
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:           client,
		parsedTextBucket: cfg.ParsedTextBucket,
		reportsBucket:    cfg.ReportsBucket,
		cfg:              cfg,
	}

	for _, bucket := range []string{cfg.ParsedTextBucket, cfg.ReportsBucket} {
		if err := m.ensureBucketExists(bucket, cfg.Location); err != nil {
			return nil, err
		}
	}

	// 生命周期失败只告警：桶可用即可工作
	if err := m.setupLifecycleRules(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("配置MinIO生命周期规则失败")
	}

	return m, nil
}

func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查桶 %s 失败: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建桶 %s 失败: %w", bucketName, err)
	}
	logger.Info().Str("bucket", bucketName).Msg("创建MinIO桶")
	return nil
}

func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	if m.cfg.ParsedTextExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.parsedTextBucket, "expire-parsed-texts", m.cfg.ParsedTextExpireDays); err != nil {
			return err
		}
	}
	if m.cfg.ReportExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.reportsBucket, "expire-reports", m.cfg.ReportExpireDays); err != nil {
			return err
		}
	}
	return nil
}

func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lcConfig := lifecycle.NewConfiguration()
	lcConfig.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	if err := m.client.SetBucketLifecycle(ctx, bucketName, lcConfig); err != nil {
		return fmt.Errorf("设置桶 %s 生命周期失败: %w", bucketName, err)
	}
	return nil
}

// StoreParsedText 归档一次分析的解析文本，返回对象键
func (m *MinIO) StoreParsedText(ctx context.Context, analysisID string, text string) (string, error) {
	objectName := fmt.Sprintf("%s.txt", analysisID)
	data := []byte(text)

	_, err := m.client.PutObject(ctx, m.parsedTextBucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return "", fmt.Errorf("上传解析文本失败: %w", err)
	}

	logger.Debug().Str("bucket", m.parsedTextBucket).Str("object", objectName).Int("bytes", len(data)).Msg("解析文本已归档")
	return objectName, nil
}

// GetParsedText 读取归档的解析文本
func (m *MinIO) GetParsedText(ctx context.Context, analysisID string) (string, error) {
	objectName := fmt.Sprintf("%s.txt", analysisID)
	obj, err := m.client.GetObject(ctx, m.parsedTextBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("读取解析文本失败: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("读取解析文本内容失败: %w", err)
	}
	return string(data), nil
}

// StoreAnalysisReport 把完整分析结果序列化为JSON报告存入报告桶
func (m *MinIO) StoreAnalysisReport(ctx context.Context, result *types.AnalysisResult) (string, error) {
	objectName := fmt.Sprintf("%s.json", result.ID)
	data, err := json.MarshalIndent(result.ToResponse(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化分析报告失败: %w", err)
	}

	_, err = m.client.PutObject(ctx, m.reportsBucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("上传分析报告失败: %w", err)
	}
	return objectName, nil
}

// GetReportURL 生成分析报告的预签名下载URL
func (m *MinIO) GetReportURL(ctx context.Context, analysisID string, expiry time.Duration) (string, error) {
	objectName := fmt.Sprintf("%s.json", analysisID)
	presignedURL, err := m.client.PresignedGetObject(ctx, m.reportsBucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成报告预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// ReportExists 检查报告对象是否已存在
func (m *MinIO) ReportExists(ctx context.Context, analysisID string) (bool, error) {
	objectName := fmt.Sprintf("%s.json", analysisID)
	_, err := m.client.StatObject(ctx, m.reportsBucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("检查报告对象失败: %w", err)
	}
	return true, nil
}
