package ppool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.EchoEndpoints.EchoIPHTTP = []string{"http://echo.example/ip"}
	return cfg
}

func TestDefaultConfigIsValidOnceEchoEndpointsSet(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestConfigValidateRequiresEchoEndpoints(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsBadScorerThresholds(t *testing.T) {
	cfg := validConfig()
	cfg.Scorer.ThetaHot = 10
	require.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsNonPositiveCapacities(t *testing.T) {
	cfg := validConfig()
	cfg.Pools.HotMax = 0
	require.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsNonPositiveShardCount(t *testing.T) {
	cfg := validConfig()
	cfg.ShardCount = 0
	require.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsZeroLeaseTTL(t *testing.T) {
	cfg := validConfig()
	cfg.Lease.DefaultTTL = 0
	require.Error(t, cfg.Validate())
}
