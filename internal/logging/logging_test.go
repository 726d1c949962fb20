package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndFormat(t *testing.T) {
	logger, err := New(Config{Level: "debug", Format: "json"})
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger, err := New(Config{Level: "loud"})
	require.NoError(t, err)

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "clawdvault.log")

	logger, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)

	logger.WithField("mint", "Mint111").Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "mint=Mint111")
}

func TestDiscard(t *testing.T) {
	entry := Discard()
	entry.Error("dropped")
	assert.Equal(t, logrus.PanicLevel, entry.Logger.GetLevel())
}
