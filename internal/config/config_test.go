package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	path := writeConfig(t, "log:\n  level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.SSH.SessionTimeout)
	assert.Equal(t, 15*time.Second, cfg.Execution.CommandTimeout)
	assert.Equal(t, 5, cfg.Execution.MaxConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Execution.RateLimitDelay)
	assert.True(t, cfg.Execution.ReadonlyMode)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Same(t, cfg, Get())

	limits, err := cfg.Limits()
	require.NoError(t, err)
	assert.Equal(t, "\n", limits.LineTerminator)
	assert.Equal(t, " ", limits.ContinueKey)
	assert.Nil(t, limits.Encoding)

	assert.Equal(t, []string{"screen-length 0 temporary"}, cfg.Vendor("HUAWEI").PreCommands)
	assert.Equal(t, []string{"quit"}, cfg.Vendor("unknown").ExitCommands)
	assert.Empty(t, cfg.Vendor("").PreCommands)
}

func TestLoadOverridesAndEnv(t *testing.T) {
	viper.Reset()
	t.Setenv("NETBATCH_EXECUTION_MAX_CONCURRENCY", "12")
	path := writeConfig(t, `
ssh:
  session_timeout: 3s
execution:
  command_timeout: 30s
  readonly_mode: false
  output_encoding: gbk
interact:
  line_terminator: crlf
  prompt_patterns:
    - '\$$'
  pagination_banners:
    - "<--- More --->"
vendors:
  juniper:
    pre_commands: ["set cli screen-length 0"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Execution.MaxConcurrency)
	assert.Equal(t, 3*time.Second, cfg.SSH.SessionTimeout)
	assert.False(t, cfg.Execution.ReadonlyMode)
	assert.Equal(t, []string{"set cli screen-length 0"}, cfg.Vendor("juniper").PreCommands)

	limits, err := cfg.Limits()
	require.NoError(t, err)
	assert.Equal(t, "\r\n", limits.LineTerminator)
	assert.NotNil(t, limits.Encoding)

	det, err := cfg.Detector()
	require.NoError(t, err)
	assert.True(t, det.IsPrompt("user@host:~$"))
	assert.True(t, det.HasPagination("<--- More --->"))

	assert.True(t, cfg.Validator().Validate("reboot").Allowed, "非只读模式放行所有命令")
	assert.Equal(t, 3*time.Second, cfg.SSHPool().SSH.Timeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	viper.Reset()
	_, err := Load(writeConfig(t, "execution:\n  max_concurrency: 0\n"))
	assert.Error(t, err)

	viper.Reset()
	_, err = Load(writeConfig(t, "report:\n  backend: s3\n"))
	assert.Error(t, err)

	viper.Reset()
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "显式指定的配置文件不存在")
}

func TestLineTerminator(t *testing.T) {
	assert.Equal(t, "\n", lineTerminator(""))
	assert.Equal(t, "\r\n", lineTerminator("CRLF"))
	assert.Equal(t, "\r", lineTerminator("cr"))
	assert.Equal(t, "\r\n", lineTerminator("\r\n"))
}
