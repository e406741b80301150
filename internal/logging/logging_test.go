package logging

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
)

func TestFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "trace", Output: &buf})
	require.NoError(t, err)

	logger.Info("Created: /tmp/a.txt")
	logger.WithField("path", "/tmp/my file").Warn("slow")
	logger.WithError(errors.New("boom")).Error("Error")
	logger.Trace("Parallel processing for: x")

	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, got, 4)
	assert.Equal(t, "[INFO] Created: /tmp/a.txt", got[0])
	assert.Equal(t, `[WARN] slow path="/tmp/my file"`, got[1])
	assert.Equal(t, "[ERROR] Error error=boom", got[2])
	assert.Equal(t, "[TRACE] Parallel processing for: x", got[3])
}

func TestFormatter_Color(t *testing.T) {
	f := &Formatter{Color: true}
	line, err := f.Format(&logrus.Entry{Level: logrus.ErrorLevel, Message: "bad"})
	require.NoError(t, err)
	assert.Contains(t, string(line), "\x1b[")
	assert.Contains(t, string(line), "[ERROR]")
	assert.True(t, strings.HasSuffix(string(line), " bad\n"))
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Debug("hidden")
	logger.Warn("shown")

	assert.Equal(t, "[WARN] shown\n", buf.String())
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ffs.log")
	var buf bytes.Buffer
	logger, err := New(Config{Output: &buf, File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("to both")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] to both")
	assert.NotContains(t, string(data), "\x1b[")
	assert.Equal(t, "[INFO] to both\n", buf.String())
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, level)

	level, err = ParseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, level)

	level, err = ParseLevel("trace")
	require.NoError(t, err)
	assert.Equal(t, logrus.TraceLevel, level)
}

func TestInit_Once(t *testing.T) {
	before := Log()
	require.NotNil(t, before)

	var buf bytes.Buffer
	first, err := Init(Config{Level: "debug", Output: &buf})
	require.NoError(t, err)

	second, err := Init(Config{Level: "error"})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first, Log())
	assert.Equal(t, logrus.DebugLevel, Log().GetLevel())
}
