package otelx

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitDisabledReturnsNoOpShutdown(t *testing.T) {
	initOnce = sync.Once{}
	shutdown := Init(context.Background(), nil, "test-service", false)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}
