package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/netbatch/internal/config"
	"github.com/sshcollectorpro/netbatch/internal/model"
)

func sampleReport() *model.FleetReport {
	started := time.Date(2025, 10, 16, 14, 58, 30, 0, time.Local)
	r := &model.FleetReport{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Commands:   []string{"display version", "display current-configuration"},
	}
	r.Add(model.DeviceResult{
		Host:    "10.0.0.2",
		Success: true,
		Outcomes: []model.CommandOutcome{
			{Command: "display version", Output: "Version 1.0", Length: 11},
			{Command: "display current-configuration", Output: strings.Repeat("a", 250), Length: 250},
		},
	})
	r.Add(model.DeviceResult{Host: "10.0.0.1", Success: false, ErrorKind: model.ErrorKindAuth, Error: "authentication failed"})
	return r
}

func TestRenderCSV(t *testing.T) {
	data, err := RenderCSV(sampleReport())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, utf8BOM))

	rows, err := csv.NewReader(bytes.NewReader(data[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"IP", "Command", "Success", "OutputLen", "Output"}, rows[0])
	assert.Equal(t, []string{"10.0.0.2", "display version", "OK", "11", "Version 1.0"}, rows[1])
	assert.Equal(t, "250", rows[2][3])
	assert.Equal(t, strings.Repeat("a", 200)+"...", rows[2][4])
	assert.Equal(t, []string{"10.0.0.1", "", "FAIL", "", "authentication failed"}, rows[3])
}

func TestRenderJSON(t *testing.T) {
	data, err := RenderJSON(sampleReport())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.EqualValues(t, 2, decoded["total"])
	assert.Len(t, decoded["results"], 2)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 200))
	assert.Equal(t, "无告...", Preview("无告警", 2))
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, sampleReport())
	out := buf.String()
	assert.Contains(t, out, "total: 2  success: 1  failed: 1")
	assert.Contains(t, out, "failed devices: 10.0.0.1")
	assert.NotContains(t, out, "interrupted")
}

func TestSaveLocal(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(config.ReportConfig{Dir: dir, Backend: "local", Prefix: "netbatch"})

	files, err := Save(context.Background(), w, sampleReport())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(files.CSV.URI, "file://"))
	assert.True(t, strings.HasPrefix(files.JSON.Checksum, "sha256:"))
	assert.Equal(t, "application/json", files.JSON.ContentType)

	_, err = os.Stat(filepath.Join(dir, "netbatch", "results_20251016_145830.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "netbatch", "results_20251016_145830.json"))
	assert.NoError(t, err)
}

func TestMinioFallsBackToLocal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	dir := t.TempDir()
	w := NewWriter(config.ReportConfig{
		Dir:     dir,
		Backend: "minio",
		Minio:   config.MinioConfig{Host: "127.0.0.1", Port: port, Bucket: "reports", AccessKey: "k", SecretKey: "s"},
	})
	require.IsType(t, &FallbackWriter{}, w)

	obj, err := w.Write(context.Background(), "results_x.csv", []byte("IP\n"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "results_x.csv"), obj.URI)
	assert.EqualValues(t, 3, obj.Size)
}

func TestNewWriterWithIncompleteMinioConfig(t *testing.T) {
	w := NewWriter(config.ReportConfig{Backend: "minio"})
	assert.IsType(t, &LocalWriter{}, w)
}
