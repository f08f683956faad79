package simulate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigAndStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simulate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
password: secret
host_key_file: `+filepath.Join(dir, "hostkey.pem")+`
devices:
  - hostname: HUAWEI-01
    listen: 127.0.0.1:0
    page_lines: 2
    commands:
      display version: "Version 1.0"
  - hostname: R1
    style: ios
    listen: 127.0.0.1:0
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "secret", cfg.Password)

	m, err := Start(cfg)
	require.NoError(t, err)
	defer m.Stop()

	require.Len(t, m.Servers(), 2)
	assert.NotZero(t, m.Servers()[0].Port())
	assert.Equal(t, "secret", m.Servers()[0].cfg.Password)
	assert.Equal(t, "ios", m.Servers()[1].cfg.Style)
	assert.FileExists(t, filepath.Join(dir, "hostkey.pem"))

	// 再次加载复用同一密钥
	_, err = LoadOrCreateHostKey(filepath.Join(dir, "hostkey.pem"))
	assert.NoError(t, err)
}

func TestLoadConfigWithoutDevices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("password: nova\n"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDeviceDefaults(t *testing.T) {
	d := DeviceConfig{Style: "Cisco", Commands: map[string]string{"Display  Version": "v"}}.withDefaults("")
	assert.Equal(t, "Device", d.Hostname)
	assert.Equal(t, "vrp", d.Style)
	assert.Equal(t, "nova", d.Password)
	assert.Equal(t, "v", d.Commands["display version"])
}

func TestCRLF(t *testing.T) {
	assert.Equal(t, "a\r\nb\r\n", crlf("a\nb"))
	assert.Equal(t, "a\r\n", crlf("a\r\n"))
}
