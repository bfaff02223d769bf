package api_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tardsplaya/tardsplayad/internal/api"
	"github.com/tardsplaya/tardsplayad/internal/config"
	"github.com/tardsplaya/tardsplayad/internal/coordinator"
	"github.com/tardsplaya/tardsplayad/internal/resolve"
)

func TestHealthHandler_GetHealth(t *testing.T) {
	coord := coordinator.New(&config.Config{}, resolve.NewStaticResolver(nil), testLogger())
	defer coord.Close()

	handler := api.NewHealthHandler(coord)

	output, err := handler.GetHealth(context.Background(), &api.HealthInput{})
	require.NoError(t, err)
	require.NotNil(t, output)

	assert.Equal(t, "ok", output.Body.Status)
	assert.Equal(t, 0, output.Body.ActiveStreams)
	assert.GreaterOrEqual(t, output.Body.UptimeSeconds, int64(0))
}
