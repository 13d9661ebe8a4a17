package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"resume-screener-go/internal/config"
	"resume-screener-go/internal/storage/models"
	"resume-screener-go/internal/tracing"
	"resume-screener-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("resume-screener-go/storage/mysql")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}
	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)
		db.Statement.Context = context.WithValue(newCtx, gormSpanKey{}, span)
	}
}

type gormSpanKey struct{}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(gormSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
			attribute.String("db.statement", tracing.SafeSQL(db.Statement.SQL.String())),
		)

		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				// 未找到记录属于正常业务分支，不作为错误处理
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		disableErrSkip: true,
	}
}

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig

	// 发件箱事件的投递目标，未配置时结果落库不写outbox
	outboxExchange   string
	outboxRoutingKey string
}

// NewMySQL 创建MySQL客户端并自动迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{db: db, cfg: cfg}

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := m.autoMigrateSchema(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	currentLogger := m.db.Logger

	// 迁移期间关闭SQL日志
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
		},
	)
	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	err := silentDB.AutoMigrate(
		&models.AnalysisRecord{},
		&models.OutboxMessage{},
	)

	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// ConfigureOutbox 配置结果落库时写入发件箱事件的投递目标
func (m *MySQL) ConfigureOutbox(exchange, routingKey string) {
	m.outboxExchange = exchange
	m.outboxRoutingKey = routingKey
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// SaveResult 持久化分析结果，指纹冲突时不覆盖并返回已有记录。
// 结果与analysis.completed发件箱事件在同一事务内写入。
func (m *MySQL) SaveResult(ctx context.Context, result *types.AnalysisResult) (*types.AnalysisResult, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.SaveResult",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.sql.table", "analysis_results"),
		attribute.String("analysis.id", result.ID),
	)

	record, err := models.NewAnalysisRecord(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var saved *types.AnalysisResult
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 指纹唯一索引冲突时什么都不做，保证只追加
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoNothing: true,
		}).Create(record)
		if insert.Error != nil {
			return insert.Error
		}

		if insert.RowsAffected == 0 {
			// 已有同指纹记录，读出并返回
			var existing models.AnalysisRecord
			if err := tx.Where("fingerprint = ?", result.Fingerprint).First(&existing).Error; err != nil {
				return fmt.Errorf("读取已有记录失败: %w", err)
			}
			domain, err := existing.ToDomain()
			if err != nil {
				return err
			}
			saved = domain
			span.SetAttributes(attribute.Bool("analysis.duplicate", true))
			return nil
		}

		saved = result

		if m.outboxExchange != "" {
			event := NewAnalysisCompletedEvent(result)
			payload, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("序列化完成事件失败: %w", err)
			}
			outboxMsg := models.OutboxMessage{
				AggregateID:      result.ID,
				EventType:        event.EventType,
				Payload:          string(payload),
				TargetExchange:   m.outboxExchange,
				TargetRoutingKey: m.outboxRoutingKey,
				Status:           models.OutboxStatusPending,
			}
			if err := tx.Create(&outboxMsg).Error; err != nil {
				return fmt.Errorf("写入发件箱失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return saved, nil
}

// GetResultByFingerprint 按指纹查询，不存在时返回 (nil, nil)
func (m *MySQL) GetResultByFingerprint(ctx context.Context, fingerprint string) (*types.AnalysisResult, error) {
	var record models.AnalysisRecord
	err := m.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("按指纹查询失败: %w", err)
	}
	return record.ToDomain()
}

// GetResultByID 按分析ID查询，不存在时返回 (nil, nil)
func (m *MySQL) GetResultByID(ctx context.Context, id string) (*types.AnalysisResult, error) {
	var record models.AnalysisRecord
	err := m.db.WithContext(ctx).Where("analysis_id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("按ID查询失败: %w", err)
	}
	return record.ToDomain()
}

// RecordParsedTextPath 回填解析文本在对象存储中的键。
// 只更新路径列，分析结果本身保持不可变。
func (m *MySQL) RecordParsedTextPath(ctx context.Context, analysisID string, path string) error {
	err := m.db.WithContext(ctx).
		Model(&models.AnalysisRecord{}).
		Where("analysis_id = ?", analysisID).
		Update("parsed_text_path_oss", path).Error
	if err != nil {
		return fmt.Errorf("回填归档路径失败: %w", err)
	}
	return nil
}

// ListOptions 历史视图的查询参数
type ListOptions struct {
	// 文件名子串过滤，空串不过滤
	Search string
	// "score" 按总分降序，其余按上传时间降序
	Order string
	// 分页
	Limit  int
	Offset int
}

// ListAnalyses 查询历史结果，过滤与排序都在数据库侧完成
func (m *MySQL) ListAnalyses(ctx context.Context, opts ListOptions) ([]*types.AnalysisResult, int64, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.ListAnalyses",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.sql.table", "analysis_results"),
		attribute.String("list.order", opts.Order),
	)

	query := m.db.WithContext(ctx).Model(&models.AnalysisRecord{})
	if search := strings.TrimSpace(opts.Search); search != "" {
		// 检索词可能含候选人姓名等敏感内容，上报前做掩码与截断
		span.SetAttributes(attribute.String("list.search", tracing.SafeAttributeValue("search_name", search, tracing.DefaultMaxLength)))
		// 大小写不敏感不依赖列collation，显式LOWER
		query = query.Where("LOWER(file_name) LIKE ?", "%"+escapeLike(strings.ToLower(search))+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("统计结果总数失败: %w", err)
	}

	switch opts.Order {
	case "score":
		query = query.Order("overall_score DESC").Order("uploaded_at DESC")
	default:
		query = query.Order("uploaded_at DESC")
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var records []models.AnalysisRecord
	if err := query.Find(&records).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("查询历史结果失败: %w", err)
	}

	results := make([]*types.AnalysisResult, 0, len(records))
	for i := range records {
		domain, err := records[i].ToDomain()
		if err != nil {
			return nil, 0, err
		}
		results = append(results, domain)
	}

	span.SetStatus(codes.Ok, "")
	return results, total, nil
}

// GetAnalysisStats 统计卡片数据：总数、入围数、平均分
func (m *MySQL) GetAnalysisStats(ctx context.Context) (*types.AnalysisStats, error) {
	var row struct {
		Total        int64
		Shortlisted  int64
		AverageScore *float64
	}
	err := m.db.WithContext(ctx).Model(&models.AnalysisRecord{}).
		Select("COUNT(*) AS total, COALESCE(SUM(shortlisted), 0) AS shortlisted, AVG(overall_score) AS average_score").
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("统计查询失败: %w", err)
	}

	stats := &types.AnalysisStats{
		Total:       row.Total,
		Shortlisted: row.Shortlisted,
	}
	if row.AverageScore != nil {
		stats.AverageScore = *row.AverageScore
	}
	return stats, nil
}

// escapeLike 转义LIKE模式中的通配符
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
