package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/usbcmp/internal/config"
)

func TestParseLevelValid(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"ERROR", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := parseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestParseLevelInvalid(t *testing.T) {
	for _, input := range []string{"invalid", "trace", "fatal", ""} {
		t.Run(input, func(t *testing.T) {
			_, err := parseLevel(input)
			assert.Error(t, err)
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	l.WithField("frame", 3).Info("test message")
	out := buf.String()
	assert.Contains(t, out, `"msg":"test message"`)
	assert.Contains(t, out, `"frame":3`)
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "info", Format: "text"}, &buf)
	require.NoError(t, err)

	l.WithFields(map[string]interface{}{"key": "value"}).Info("test message")
	out := buf.String()
	assert.Contains(t, out, "test message")
	assert.Contains(t, out, "key=value")
}

func TestNewPattern(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{
		Level:   "info",
		Format:  "pattern",
		Pattern: "[%level] %msg %field%n",
	}, &buf)
	require.NoError(t, err)

	l.WithField("b", 2).WithField("a", "x").WithError(errors.New("boom")).Info("hello")
	assert.Equal(t, "[info] hello a=x,b=2,error=boom\n", buf.String())
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
	assert.False(t, l.IsDebugEnabled())
	assert.False(t, l.IsInfoEnabled())
}

func TestNewInvalid(t *testing.T) {
	_, err := New(config.LogConfig{Level: "invalid", Format: "json"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid log level"))

	_, err = New(config.LogConfig{Level: "info", Format: "xml"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported log format")

	_, err = New(config.LogConfig{
		Level:   "info",
		Format:  "json",
		Outputs: config.LogOutputsConfig{File: config.FileOutputConfig{Enabled: true}},
	}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path")
}

func TestFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	var buf bytes.Buffer
	l, err := New(config.LogConfig{
		Level:  "debug",
		Format: "text",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{
				Enabled: true,
				Path:    logPath,
				Rotation: config.RotationConfig{
					MaxSizeMB:  10,
					MaxBackups: 3,
					MaxAgeDays: 7,
				},
			},
		},
	}, &buf)
	require.NoError(t, err)

	l.Info("to both")
	assert.Contains(t, buf.String(), "to both")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
}

func TestInitReplacesGlobal(t *testing.T) {
	before := GetLogger()
	require.NotNil(t, before)
	t.Cleanup(func() { logger = before })

	require.NoError(t, Init(config.LogConfig{Level: "error", Format: "json"}))
	assert.NotSame(t, before, GetLogger())
	assert.False(t, GetLogger().IsInfoEnabled())

	assert.Error(t, Init(config.LogConfig{Level: "nope", Format: "json"}))
}

func TestMultiWriterKeepsGoingOnError(t *testing.T) {
	var a, b bytes.Buffer
	w := NewMultiWriter().Add(&a).Add(failingWriter{}).Add(&b)

	n, err := w.Write([]byte("x"))
	assert.Equal(t, 1, n)
	assert.Error(t, err)
	assert.Equal(t, "x", a.String())
	assert.Equal(t, "x", b.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("write failed") }
