package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRoot_RequiresOnePath(t *testing.T) {
	_, err := execute(t)
	assert.ErrorContains(t, err, "accepts 1 arg(s), received 0")

	_, err = execute(t, "a", "b")
	assert.ErrorContains(t, err, "accepts 1 arg(s), received 2")
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(t, "config", "--max-parallel", "3", "--backend", "notify")
	require.NoError(t, err)

	assert.Contains(t, out, "max_parallel: 3")
	assert.Contains(t, out, "backend: notify")
	assert.Contains(t, out, "rename_window: 50ms")
}

func TestConfigCommand_RejectsInvalid(t *testing.T) {
	_, err := execute(t, "config", "--log-format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestBenchCommand_JSON(t *testing.T) {
	out, err := execute(t, "bench", "--notifications", "20", "--paths", "2", "--json",
		"--log-format", "text", "--backend", "fsnotify", "--max-parallel", "2")
	require.NoError(t, err)

	var result struct {
		PermitsPeak int `json:"permits_peak"`
		Process     struct {
			Paths uint64 `json:"paths"`
		} `json:"process"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, uint64(40), result.Process.Paths)
	assert.LessOrEqual(t, result.PermitsPeak, 2)
}

func TestBenchCommand_ValidatesFlags(t *testing.T) {
	_, err := execute(t, "bench", "--notifications", "0")
	assert.ErrorContains(t, err, "--notifications must be positive")
}
