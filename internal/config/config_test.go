package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "https://clawdvault.com/api", cfg.API.URL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Trade.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.Trade.ConfirmTimeout)
	assert.True(t, cfg.Stream.AutoReconnect)
	assert.Equal(t, 5, cfg.Stream.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.Stream.PingInterval)
	assert.Equal(t, "clawdvault-events", cfg.Kafka.Topic)

	s, err := cfg.Slippage()
	require.NoError(t, err)
	assert.Equal(t, "0.02", s.String())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clawdvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  url: http://localhost:3000/api
  timeout: 5s
trade:
  poll_interval: 500ms
  default_slippage: "0.05"
stream:
  auto_reconnect: false
kafka:
  brokers: [a:9092, b:9092]
`), 0o600))

	t.Setenv("CLAWDVAULT_TRADE_CONFIRM_TIMEOUT", "90s")
	t.Setenv("CLAWDVAULT_API_TIMEOUT", "7s")

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000/api", cfg.API.URL)
	assert.Equal(t, 7*time.Second, cfg.API.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Trade.PollInterval)
	assert.Equal(t, 90*time.Second, cfg.Trade.ConfirmTimeout)
	assert.False(t, cfg.Stream.AutoReconnect)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)

	cc := cfg.ClientConfig()
	assert.Equal(t, "http://localhost:3000/api", cc.APIURL)
	assert.False(t, cc.Reconnect.AutoReconnect)
	assert.Equal(t, 90*time.Second, cc.Trade.ConfirmTimeout)
	base, err := cc.StreamBase()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:3000/api/stream", base)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CLAWDVAULT_RPC_URL=http://rpc.local\nCLAWDVAULT_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("CLAWDVAULT_RPC_URL")
		os.Unsetenv("CLAWDVAULT_LOG_LEVEL")
	})

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "http://rpc.local", cfg.RPC.URL)
	assert.Equal(t, "debug", cfg.LogConfig().Level)

	// a missing env file is fine
	_, err = Load("", filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("CLAWDVAULT_TRADE_DEFAULT_SLIPPAGE", "1.5")
	_, err := Load("", "")
	assert.ErrorContains(t, err, "default_slippage")

	t.Setenv("CLAWDVAULT_TRADE_DEFAULT_SLIPPAGE", "0.01")
	t.Setenv("CLAWDVAULT_WALLET_KEYPAIR", "id.json")
	t.Setenv("CLAWDVAULT_WALLET_BRIDGE_URL", "http://localhost:8900")
	_, err = Load("", "")
	assert.ErrorContains(t, err, "only one")

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}
