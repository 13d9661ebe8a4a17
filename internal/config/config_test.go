package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  address: ":9090"
mysql:
  host: "db.internal"
  port: 3307
  username: "screener"
  password: "secret"
  database: "screening"
redis:
  address: "redis.internal:6379"
pipeline:
  timeout_seconds: 30
  extract_retries: 3
scoring:
  communication_strategy: "fixed"
  communication_fixed_score: 55
default_requirement:
  required_skills: ["Go", "Docker"]
  critical_skills: ["Go"]
  target_experience_years: 3
  category_weights:
    TechnicalSkills: 0.5
    Experience: 0.3
    Education: 0.1
    Communication: 0.1
  shortlist_threshold: 65
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "db.internal", cfg.MySQL.Host)
	assert.Equal(t, 3307, cfg.MySQL.Port)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Address)
	assert.Equal(t, 30, cfg.Pipeline.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Pipeline.ExtractRetries)
	assert.Equal(t, "fixed", cfg.Scoring.CommunicationStrategy)
	assert.Equal(t, 55, cfg.Scoring.CommunicationFixedScore)

	assert.Equal(t, []string{"Go", "Docker"}, cfg.DefaultRequirement.RequiredSkills)
	assert.Equal(t, float64(65), cfg.DefaultRequirement.ShortlistThreshold)
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, "server:\n  address: \":9090\"\n"))
	require.NoError(t, err)

	// 未配置的部分回落到默认值
	assert.Equal(t, 60, cfg.Pipeline.TimeoutSeconds)
	assert.Equal(t, 2, cfg.Pipeline.ExtractRetries)
	assert.Equal(t, 500, cfg.Pipeline.ExtractBackoffMS)
	assert.Equal(t, 8, cfg.Pipeline.MaxConcurrentRuns)
	assert.Equal(t, 30, cfg.Scoring.UnknownExperienceBaseline)
	assert.Equal(t, 60, cfg.Scoring.EducationPartialCredit)
	assert.Equal(t, "heuristic", cfg.Scoring.CommunicationStrategy)
	assert.Equal(t, "5s", cfg.RabbitMQ.RetryInterval)
	assert.Equal(t, "localhost:4317", cfg.Tracing.Endpoint)
	assert.InDelta(t, 1.0, cfg.Tracing.SamplingRate, 1e-9)

	// 默认岗位要求的权重必须归一
	var sum float64
	for _, w := range cfg.DefaultRequirement.CategoryWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, float64(70), cfg.DefaultRequirement.ShortlistThreshold)
}

func TestLoadConfigMissingFileInTestEnv(t *testing.T) {
	// go test环境下找不到配置文件时返回内置默认配置
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "localhost", cfg.MySQL.Host)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("MYSQL_PASSWORD", "env-secret")
	t.Setenv("REDIS_ADDRESS", "env-redis:6380")

	cfg, err := LoadConfig(writeTempConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.MySQL.Password)
	assert.Equal(t, "env-redis:6380", cfg.Redis.Address)
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, GetDuration("3s", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("not-a-duration", time.Minute))
}

func TestDurationAccessors(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, 60*time.Second, cfg.PipelineTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.ExtractBackoff())
	assert.Equal(t, 120*time.Second, cfg.FingerprintLockTTL())
}
