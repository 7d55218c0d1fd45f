package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deep-instinct/dsx-connect/internal/domain"
)

func testConfig() Config {
	return Config{
		WorkersConnectorRetryEnabled:   true,
		WorkersDsxaRetryEnabled:        true,
		WorkersServerErrorRetryEnabled: false,
		ConnectorRetryBackoffBase:      time.Second,
		DsxaRetryBackoffBase:           2 * time.Second,
		ServerErrorRetryBackoffBase:    3 * time.Second,
		ScanRequestMaxRetries:          5,
	}
}

func TestScanRequestRetryPolicy_WiresAllThreeFamilies(t *testing.T) {
	policy := testConfig().ScanRequestRetryPolicy()

	require.True(t, policy.EnabledFamilies[domain.FamilyConnector])
	require.True(t, policy.EnabledFamilies[domain.FamilyDsxa])
	require.False(t, policy.EnabledFamilies[domain.FamilyServerError])
	require.Equal(t, time.Second, policy.BackoffBase[domain.FamilyConnector])
	require.Equal(t, 5, policy.MaxRetries)
}

func TestBatchRetryPolicy_DisablesEveryFamily(t *testing.T) {
	policy := testConfig().BatchRetryPolicy()

	require.Empty(t, policy.EnabledFamilies)
	require.Equal(t, 0, policy.MaxRetries)
}

func TestDiannaRetryPolicy_OnlyConnectorFamily(t *testing.T) {
	policy := testConfig().DiannaRetryPolicy()

	require.True(t, policy.EnabledFamilies[domain.FamilyConnector])
	require.NotContains(t, policy.EnabledFamilies, domain.FamilyDsxa)
	require.NotContains(t, policy.EnabledFamilies, domain.FamilyServerError)
}
