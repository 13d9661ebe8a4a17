package constants

import "time"

// Redis Key 前缀和格式常量
// 使用统一的命名规范: screener:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "screener"

	// AnalysisModulePrefix 分析模块
	AnalysisModulePrefix = "analysis"
	// FileModulePrefix 文件模块
	FileModulePrefix = "file"

	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"
	// EntityFingerprintToID 指纹到分析ID的映射实体
	EntityFingerprintToID = "fp_to_id"

	// KeyFingerprintLock 指纹分布式锁 (STRING)
	// 格式: screener:analysis:lock:{fingerprint}
	KeyFingerprintLock = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntityLock + ":%s"

	// KeyFingerprintDedupSet 已完成分析的指纹集合，用于快速去重 (SET)
	// 格式: screener:file:dedup_set
	KeyFingerprintDedupSet = AppPrefix + ":" + FileModulePrefix + ":" + EntityDedupSet

	// KeyFingerprintToAnalysisID 指纹到AnalysisID的映射 (STRING)
	// 格式: screener:file:fp_to_id:{fingerprint}
	KeyFingerprintToAnalysisID = AppPrefix + ":" + FileModulePrefix + ":" + EntityFingerprintToID + ":%s"
)

// FingerprintRecordTTL 指纹记录的默认过期时间
const FingerprintRecordTTL = 365 * 24 * time.Hour
