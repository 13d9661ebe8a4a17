package storage

import (
	"context"
	"fmt"
	"strings"

	"resume-screener-go/internal/config"
	"resume-screener-go/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖。
// MySQL是权威结果存储，必须初始化成功；
// Redis/MinIO/RabbitMQ失败时服务降级运行（无分布式锁、无归档、无事件）。
type Storage struct {
	// 关系型数据库，分析结果权威存储
	MySQL *MySQL

	// 键值存储，指纹去重与分布式锁
	Redis *Redis

	// 对象存储，解析文本归档与报告导出
	MinIO *MinIO

	// 消息队列，analysis.completed事件出站
	RabbitMQ *RabbitMQ

	degraded []string
}

// NewStorage 创建存储管理器
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	storage := &Storage{}
	var err error

	// MySQL是硬依赖
	if cfg.MySQL.Host == "" {
		return nil, fmt.Errorf("MySQL Host未配置")
	}
	storage.MySQL, err = NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}
	logger.Info().Str("host", cfg.MySQL.Host).Msg("MySQL初始化成功")

	// 初始化Redis（如果配置了）
	if cfg.Redis.Address != "" {
		storage.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化Redis失败，分布式锁与指纹缓存降级")
			storage.degraded = append(storage.degraded, fmt.Sprintf("Redis: %v", err))
			storage.Redis = nil
		}
	} else {
		logger.Info().Msg("Redis未配置，跳过初始化")
	}

	// 初始化MinIO（如果配置了）
	if cfg.MinIO.Endpoint != "" {
		storage.MinIO, err = NewMinIO(&cfg.MinIO)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化MinIO失败，解析文本归档降级")
			storage.degraded = append(storage.degraded, fmt.Sprintf("MinIO: %v", err))
			storage.MinIO = nil
		}
	} else {
		logger.Info().Msg("MinIO未配置，跳过初始化")
	}

	// 初始化RabbitMQ（如果配置了）
	if cfg.RabbitMQ.URL != "" {
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化RabbitMQ失败，完成事件发布降级")
			storage.degraded = append(storage.degraded, fmt.Sprintf("RabbitMQ: %v", err))
			storage.RabbitMQ = nil
		} else if err := storage.RabbitMQ.SetupAnalysisTopology(); err != nil {
			logger.Warn().Err(err).Msg("声明RabbitMQ拓扑失败，完成事件发布降级")
			storage.degraded = append(storage.degraded, fmt.Sprintf("RabbitMQ拓扑: %v", err))
			_ = storage.RabbitMQ.Close()
			storage.RabbitMQ = nil
		}
	} else {
		logger.Info().Msg("RabbitMQ未配置，跳过初始化")
	}

	// 仅当MySQL和RabbitMQ都就绪时写outbox事件
	if storage.RabbitMQ != nil {
		storage.MySQL.ConfigureOutbox(cfg.RabbitMQ.AnalysisExchange, cfg.RabbitMQ.CompletedRoutingKey)
	}

	if len(storage.degraded) > 0 {
		logger.Warn().Str("components", strings.Join(storage.degraded, "; ")).Msg("部分存储组件降级运行")
	}

	return storage, nil
}

// Degraded 返回初始化失败的组件描述，全部就绪时为空
func (s *Storage) Degraded() []string {
	return s.degraded
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	// MinIO客户端无需显式关闭
}
