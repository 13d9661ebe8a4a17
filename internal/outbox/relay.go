package outbox

import (
	"context"
	"strconv"
	"time"

	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/storage/models"
	"resume-screener-go/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	maxRetryCount          = 5
)

var relayTracer = otel.Tracer("outbox-relay")

// MessageRelay 轮询outbox表并把待发事件投递到RabbitMQ。
// FOR UPDATE SKIP LOCKED使多副本可以并行跑中继而不重复投递同一批。
type MessageRelay struct {
	db              *gorm.DB
	publisher       *storage.RabbitMQ
	pollingInterval time.Duration
	batchSize       int
	done            chan struct{}
}

// RelayOption 中继配置项
type RelayOption func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) RelayOption {
	return func(r *MessageRelay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 设置单批处理条数
func WithBatchSize(n int) RelayOption {
	return func(r *MessageRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewMessageRelay 创建outbox消息中继
func NewMessageRelay(db *gorm.DB, publisher *storage.RabbitMQ, opts ...RelayOption) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 启动后台轮询循环
func (r *MessageRelay) Start() {
	logger.Info().
		Dur("interval", r.pollingInterval).
		Int("batch_size", r.batchSize).
		Msg("outbox消息中继已启动")

	go func() {
		ticker := time.NewTicker(r.pollingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.processPendingMessages()
			case <-r.done:
				logger.Info().Msg("outbox消息中继已停止")
				return
			}
		}
	}()
}

// Stop 停止轮询循环
func (r *MessageRelay) Stop() {
	close(r.done)
}

func (r *MessageRelay) processPendingMessages() {
	ctx := context.Background()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var messages []models.OutboxMessage
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", models.OutboxStatusPending).
			Order("created_at asc").
			Limit(r.batchSize).
			Find(&messages).Error; err != nil {
			return err
		}

		if len(messages) == 0 {
			return nil
		}

		spanCtx, span := relayTracer.Start(ctx, "outbox.relay_batch",
			trace.WithSpanKind(trace.SpanKindProducer),
			trace.WithAttributes(attribute.Int("outbox.batch_size", len(messages))))
		defer span.End()

		for i := range messages {
			msg := &messages[i]
			publishErr := r.publisher.PublishMessage(spanCtx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), true)
			now := time.Now()

			if publishErr != nil {
				msg.RetryCount++
				msg.ErrorMessage = publishErr.Error()
				if msg.RetryCount >= maxRetryCount {
					msg.Status = models.OutboxStatusFailed
					msg.ProcessedAt = &now
					logger.Error().
						Err(publishErr).
						Uint64("message_id", msg.ID).
						Str("aggregate_id", msg.AggregateID).
						Msg("outbox消息重试耗尽，标记为失败")
				} else {
					logger.Warn().
						Err(publishErr).
						Uint64("message_id", msg.ID).
						Int("retry_count", msg.RetryCount).
						Msg("发布outbox消息失败，等待重试")
				}
				tracing.RecordErrorWithInfo(span, publishErr, tracing.ErrorTypeRabbitMQ,
					attribute.String("messaging.message_id", strconv.FormatUint(msg.ID, 10)),
					attribute.Int("messaging.retry_count", msg.RetryCount))
			} else {
				msg.Status = models.OutboxStatusSent
				msg.ProcessedAt = &now
				msg.ErrorMessage = ""
			}

			if err := tx.Save(msg).Error; err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		logger.Error().Err(err).Msg("处理outbox批次失败")
	}
}
