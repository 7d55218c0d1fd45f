package observability

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deep-instinct/dsx-connect/internal/config"
)

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(config.Config{})
	require.NoError(t, err)
	require.Nil(t, shutdown)
}
