package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"resume-screener-go/internal/config"
	"resume-screener-go/internal/constants"
	"resume-screener-go/internal/tracing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var redisTracer = otel.Tracer("resume-screener-go/storage/redis")

// releaseLockScript 只释放自己持有的锁，避免误删他人续期后的锁
var releaseLockScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// recordFingerprintScript 原子地把指纹加入去重集并写入指纹到分析ID的映射
var recordFingerprintScript = goredis.NewScript(`
local added = redis.call("SADD", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], ARGV[2], "EX", ARGV[3])
return added
`)

// Redis 键值存储：指纹级分布式锁与指纹到分析ID的快速映射
type Redis struct {
	client *goredis.Client
	cfg    *config.RedisConfig

	// 本实例持有的锁token，fingerprint -> token
	mu         sync.Mutex
	lockTokens map[string]string
}

// NewRedisAdapter 创建Redis客户端
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("Redis配置不能为空")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:            cfg.Address,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		DialTimeout:     time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:     time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:    time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("安装Redis追踪钩子失败: %w", err)
	}

	return &Redis{
		client:     client,
		cfg:        cfg,
		lockTokens: make(map[string]string),
	}, nil
}

// Client 返回底层客户端
func (r *Redis) Client() *goredis.Client {
	return r.client
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	return r.client.Close()
}

// AcquireLock 尝试获取指纹级锁，返回是否成功
func (r *Redis) AcquireLock(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf(constants.KeyFingerprintLock, fingerprint)
	ctx, span := redisTracer.Start(ctx, "Redis.AcquireLock")
	defer span.End()
	span.SetAttributes(attribute.String("redis.key", tracing.SafeRedisKey(key)))

	token := uuid.NewString()
	acquired, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return false, fmt.Errorf("获取指纹锁失败: %w", err)
	}

	if acquired {
		r.mu.Lock()
		r.lockTokens[fingerprint] = token
		r.mu.Unlock()
	}
	span.SetAttributes(attribute.Bool("lock.acquired", acquired))
	span.SetStatus(codes.Ok, "")
	return acquired, nil
}

// ReleaseLock 释放自己持有的指纹锁，锁已过期或归他人持有时静默返回
func (r *Redis) ReleaseLock(ctx context.Context, fingerprint string) error {
	r.mu.Lock()
	token, ok := r.lockTokens[fingerprint]
	delete(r.lockTokens, fingerprint)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	key := fmt.Sprintf(constants.KeyFingerprintLock, fingerprint)
	ctx, span := redisTracer.Start(ctx, "Redis.ReleaseLock")
	defer span.End()
	span.SetAttributes(attribute.String("redis.key", tracing.SafeRedisKey(key)))

	if err := releaseLockScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("释放指纹锁失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// RecordFingerprint 记录指纹与分析ID的映射，用于跨实例的快速幂等判定
func (r *Redis) RecordFingerprint(ctx context.Context, fingerprint, analysisID string) error {
	mappingKey := fmt.Sprintf(constants.KeyFingerprintToAnalysisID, fingerprint)
	ctx, span := redisTracer.Start(ctx, "Redis.RecordFingerprint")
	defer span.End()
	span.SetAttributes(attribute.String("redis.key", tracing.SafeRedisKey(mappingKey)))

	ttl := constants.FingerprintRecordTTL
	if r.cfg.FingerprintExpireDays > 0 {
		ttl = time.Duration(r.cfg.FingerprintExpireDays) * 24 * time.Hour
	}

	err := recordFingerprintScript.Run(ctx, r.client,
		[]string{constants.KeyFingerprintDedupSet, mappingKey},
		fingerprint, analysisID, int(ttl.Seconds()),
	).Err()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("记录指纹映射失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// LookupFingerprint 按指纹查分析ID，未命中返回空串
func (r *Redis) LookupFingerprint(ctx context.Context, fingerprint string) (string, error) {
	mappingKey := fmt.Sprintf(constants.KeyFingerprintToAnalysisID, fingerprint)
	analysisID, err := r.client.Get(ctx, mappingKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("查询指纹映射失败: %w", err)
	}
	return analysisID, nil
}
