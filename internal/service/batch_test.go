package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/netbatch/internal/abort"
	"github.com/sshcollectorpro/netbatch/internal/config"
	"github.com/sshcollectorpro/netbatch/internal/model"
	"github.com/sshcollectorpro/netbatch/internal/report"
	"github.com/sshcollectorpro/netbatch/simulate"
)

type memoryRecorder struct {
	mu      sync.Mutex
	reports []*model.FleetReport
}

func (m *memoryRecorder) SaveReport(r *model.FleetReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func loadTestConfig(t *testing.T, reportDir string) *config.Config {
	t.Helper()
	viper.Reset()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`
ssh:
  session_timeout: 3s
  banner_wait: 2s
  keep_alive: 0s
execution:
  command_timeout: 3s
  rate_limit_delay: 20ms
  poll_interval: 10ms
  continue_delay: 10ms
  max_concurrency: 2
report:
  dir: %q
`, reportDir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func startSimulated(t *testing.T, cfg simulate.DeviceConfig) *simulate.Server {
	t.Helper()
	srv, err := simulate.NewServer(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestBatchServiceAgainstSimulatedDevices(t *testing.T) {
	vrp := startSimulated(t, simulate.DeviceConfig{
		Hostname:  "HUAWEI-01",
		Banner:    "Info: The max number of VTY users is 5.",
		PageLines: 2,
		Commands: map[string]string{
			"display version":         "Huawei Versatile Routing Platform Software\nVRP (R) software, Version 8.180",
			"display interface brief": "GE0/0/1 up up\nGE0/0/2 up up\nGE0/0/3 down down\nGE0/0/4 up up\nGE0/0/5 up up",
		},
	})
	ios := startSimulated(t, simulate.DeviceConfig{Hostname: "R1", Style: "ios"})

	reportDir := t.TempDir()
	cfg := loadTestConfig(t, reportDir)
	recorder := &memoryRecorder{}
	svc := NewBatchService(cfg, abort.New(), recorder, report.NewWriter(cfg.Report))
	defer svc.Close()

	devices := []model.Device{
		{Host: "127.0.0.1", Port: vrp.Port(), Username: "admin", Password: "nova"},
		{Host: "127.0.0.1", Port: ios.Port(), Username: "admin", Password: "wrong"},
	}
	commands := []string{"display version", "display interface brief", "display reboot-info"}

	var done int
	out, err := svc.Execute(context.Background(), devices, commands, func(n, total int, res model.DeviceResult) {
		done = n
	})
	require.NoError(t, err)
	require.NotNil(t, out.Files)
	assert.Equal(t, 2, done)

	r := out.Report
	require.Len(t, r.Results, 2)
	assert.Equal(t, 1, r.Succeeded)
	assert.Equal(t, 1, r.Failed)

	var ok, failed model.DeviceResult
	for _, res := range r.Results {
		if res.Success {
			ok = res
		} else {
			failed = res
		}
	}
	assert.Equal(t, model.ErrorKindAuth, failed.ErrorKind)

	require.Len(t, ok.Outcomes, 3)
	assert.Equal(t, "Huawei Versatile Routing Platform Software\nVRP (R) software, Version 8.180", ok.Outcomes[0].Output)
	assert.Equal(t, "GE0/0/1 up up\nGE0/0/2 up up\nGE0/0/3 down down\nGE0/0/4 up up\nGE0/0/5 up up", ok.Outcomes[1].Output)
	assert.Equal(t, 2, ok.Outcomes[1].Pages)
	assert.True(t, ok.Outcomes[2].Blocked)
	assert.NotContains(t, vrp.Received(), "display reboot-info", "被拦截的命令不应到达设备")

	require.Len(t, recorder.reports, 1)
	assert.Same(t, r, recorder.reports[0])
	_, err = os.Stat(out.Files.CSV.URI[len("file://"):])
	assert.NoError(t, err)
	assert.Equal(t, int32(0), svc.Stats()["running_batches"].(int32))
}

func TestBatchServiceRejectsEmptyInput(t *testing.T) {
	cfg := loadTestConfig(t, t.TempDir())
	svc := NewBatchService(cfg, abort.New(), nil, nil)
	defer svc.Close()

	_, err := svc.Execute(context.Background(), nil, []string{"display version"}, nil)
	assert.Error(t, err)
	_, err = svc.Execute(context.Background(), []model.Device{{Host: "10.0.0.1"}}, nil, nil)
	assert.Error(t, err)
}
