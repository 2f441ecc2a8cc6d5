package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{ServiceName: "agentmetrics"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	counter, err := Meter("agentmetrics/test").Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
}
