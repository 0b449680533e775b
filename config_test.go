package copilot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "copilot.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOptionsFromFile(t *testing.T) {
	path := writeConfigFile(t, `
cliPath = "/opt/copilot/index.js"
cliArgs = ["--experimental"]
logLevel = "debug"
autoStart = false
requestTimeoutMs = 1500
gracePeriodMs = 250

[env]
HTTPS_PROXY = "http://proxy:8080"
`)

	opts, err := OptionsFromFile(path)
	require.NoError(t, err)

	o := resolveOptions(opts...)
	assert.Equal(t, "/opt/copilot/index.js", o.cliPath)
	assert.Equal(t, []string{"--experimental"}, o.cliArgs)
	assert.Equal(t, "debug", o.logLevel)
	assert.False(t, o.autoStart)
	assert.Equal(t, 1500*time.Millisecond, o.requestTimeout)
	assert.Equal(t, 250*time.Millisecond, o.gracePeriod)
	assert.Equal(t, "http://proxy:8080", o.env["HTTPS_PROXY"])
}

func TestOptionsFromFileEmpty(t *testing.T) {
	path := writeConfigFile(t, "")
	opts, err := OptionsFromFile(path)
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestOptionsFromFileUnknownKey(t *testing.T) {
	path := writeConfigFile(t, `logLevle = "debug"`)
	_, err := OptionsFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logLevle")
}

func TestOptionsFromFileMissing(t *testing.T) {
	_, err := OptionsFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestOptionsFromFileLaterOptionsWin(t *testing.T) {
	path := writeConfigFile(t, `logLevel = "debug"`)
	opts, err := OptionsFromFile(path)
	require.NoError(t, err)

	o := resolveOptions(append(opts, WithLogLevel("error"))...)
	assert.Equal(t, "error", o.logLevel)
}
