package di

import (
	"context"
	"testing"

	"TickStockApp/internal/domain/repository"
	"TickStockApp/internal/service/redisvalidator"
	"TickStockApp/pkg/config"
	applogger "TickStockApp/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartupValidatorProbesEveryRequiredChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	v := ProvideRedisValidator(config.Default(), applogger.Nop(), repository.NopMetrics{})
	rep, err := v.ValidatePubSub(context.Background(), client)
	require.NoError(t, err)
	assert.ElementsMatch(t, redisvalidator.RequiredChannels, rep.ChannelsProbed)
}

func TestStartupValidatorKeepsBacktestingChannelsWithCustomNames(t *testing.T) {
	cfg := config.Default()
	cfg.Detector.PatternsChannel = "staging.events.patterns"
	cfg.Detector.HealthChannel = "staging.health.status"

	assert.Equal(t, []string{
		"staging.events.patterns",
		redisvalidator.ChannelBacktestingProgress,
		redisvalidator.ChannelBacktestingResults,
		"staging.health.status",
	}, requiredChannels(cfg))
}
