package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: PRODUCTION\n"))
	require.NoError(t, err)

	assert.True(t, c.IsProduction())
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 6379, c.Redis.Port)
	assert.Equal(t, 2*time.Second, c.Redis.SubscribeTimeout)
	assert.Equal(t, 100, c.Detector.BufferSize)
	assert.Equal(t, 1000, c.Detector.QueueSize)
	assert.Equal(t, "tickstock:producer:heartbeat", c.Detector.HeartbeatKey)
	assert.Equal(t, 30*time.Second, c.Detector.HeartbeatTTL)
	assert.Equal(t, "tickstock.events.patterns", c.Detector.PatternsChannel)
}

func TestParseRejectsBadLogLevel(t *testing.T) {
	_, err := Parse([]byte("logging:\n  level: loud\n"))
	require.Error(t, err)
}

func TestDetectionsTopicNeedsBrokers(t *testing.T) {
	_, err := Parse([]byte("kafka:\n  detections_topic: fallback.detections\n"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"APP_ENVIRONMENT":             "staging",
		"REDIS_URL":                   "redis://cache:6380/2",
		"REDIS_PORT":                  "6380",
		"REDIS_DB":                    "2",
		"KAFKA_BROKERS":               "k1:9092,k2:9092",
		"INTEGRATION_LOGGING_ENABLED": "true",
	}
	c := Default()
	require.NoError(t, c.ApplyEnv(func(k string) string { return env[k] }))

	assert.False(t, c.IsProduction())
	assert.Equal(t, "redis://cache:6380/2", c.Redis.URL)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.Equal(t, 2, c.Redis.DB)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.FlowLog.Enabled)
}

func TestApplyEnvRejectsNonNumericPort(t *testing.T) {
	c := Default()
	err := c.ApplyEnv(func(k string) string {
		if k == "REDIS_PORT" {
			return "six"
		}
		return ""
	})
	require.Error(t, err)
}
