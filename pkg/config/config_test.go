package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayConfig_WithDefaults(t *testing.T) {
	g := GatewayConfig{}.WithDefaults()
	assert.Equal(t, 25*time.Second, g.PingInterval)
	assert.Equal(t, 60*time.Second, g.PongWait)
	assert.Equal(t, 4000, g.MaxBodyChars)
	assert.Equal(t, 10, g.RateBurst)

	// ping 不能晚於 pong 等待時間
	g = GatewayConfig{PingInterval: time.Minute, PongWait: 10 * time.Second}.WithDefaults()
	assert.Equal(t, 9*time.Second, g.PingInterval)
}

func TestAttachmentConfig_WithDefaults(t *testing.T) {
	a := AttachmentConfig{MaxVideoBytes: 1 << 20}.WithDefaults()
	assert.Equal(t, int64(1<<20), a.MaxVideoBytes)
	assert.Equal(t, int64(20<<20), a.MaxImageBytes)
	assert.Equal(t, 15*time.Minute, a.SlotTTL)
	assert.Equal(t, 60, a.MaxSlotsPerHour)
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `port: "9090"
storage:
  driver: memory
jwt:
  secret: ${CHAT_TEST_SECRET}
gateway:
  pong_wait: 30s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_test.yaml"), []byte(yaml), 0o644))
	t.Setenv("CHAT_TEST_SECRET", "s3cret")

	cfg := LoadConfig[Chat]("chat_test", dir)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 30*time.Second, cfg.Gateway.PongWait)
}

func TestGetPath(t *testing.T) {
	_, err := GetPath("definitely-not-here.txt", 2)
	assert.Error(t, err)
}
