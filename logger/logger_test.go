package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"Error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
		}
	}
}

func TestInitFromConfigWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	require.NoError(t, InitFromConfig("info", path, 10, 2, false))
	t.Cleanup(func() {
		Close()
		_ = InitFromConfig("info", "", 10, 5, true)
	})

	Debug("hidden %d", 1)
	Info("fan switched %s", "on")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fan switched on")
	assert.NotContains(t, string(data), "hidden")
}

func TestRotatingFileKeepsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	rf, err := openRotatingFile(path, 1, 2)
	require.NoError(t, err)
	rf.maxSize = 16

	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rf.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	for i := 0; i < 5; i++ {
		_, err := rf.Write([]byte(strings.Repeat("x", 20)))
		require.NoError(t, err)
	}
	require.NoError(t, rf.Close())

	backups, err := filepath.Glob(filepath.Join(dir, "app.*.log"))
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
