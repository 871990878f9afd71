package database

import (
	"context"
	"testing"

	"course_messaging_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGRPCHealthServer(t *testing.T) {
	logger.SetNewNop()
	hs, err := StartGRPCHealthServer("127.0.0.1:0")
	require.NoError(t, err)
	defer hs.Stop()

	serving, err := CheckGRPCHealth(context.Background(), hs.Addr)
	require.NoError(t, err)
	assert.False(t, serving, "starts as NOT_SERVING")

	hs.SetServing(true)
	serving, err = CheckGRPCHealth(context.Background(), hs.Addr)
	require.NoError(t, err)
	assert.True(t, serving)
}
