// Package report 渲染批量执行报告（CSV 摘要 + JSON 明细）并写入本地或 MinIO。
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sshcollectorpro/netbatch/internal/model"
)

// PreviewLimit CSV 中输出预览的最大字符数
const PreviewLimit = 200

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RenderCSV 生成 CSV 摘要：每条命令一行，失败设备一行 FAIL 携带错误。
// 带 UTF-8 BOM，便于表格软件直接打开中文内容。
func RenderCSV(r *model.FleetReport) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	rows := [][]string{{"IP", "Command", "Success", "OutputLen", "Output"}}
	for _, res := range r.Results {
		if !res.Success {
			msg := res.Error
			if msg == "" {
				msg = "unknown error"
			}
			rows = append(rows, []string{res.Host, "", "FAIL", "", msg})
			continue
		}
		for _, o := range res.Outcomes {
			rows = append(rows, []string{res.Host, o.Command, "OK", strconv.Itoa(o.Length), Preview(o.Output, PreviewLimit)})
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("render csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderJSON 生成完整 JSON 报告
func RenderJSON(r *model.FleetReport) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return data, nil
}

// Preview 按字符截断，超出部分以 ... 结尾
func Preview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// WriteSummary 输出执行汇总：总数、成功、失败及失败设备
func WriteSummary(w io.Writer, r *model.FleetReport) {
	fmt.Fprintf(w, "run %s finished in %s\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "total: %d  success: %d  failed: %d\n", r.Total, r.Succeeded, r.Failed)
	if r.Interrupted {
		fmt.Fprintln(w, "run was interrupted")
	}
	if failed := r.FailedHosts(); len(failed) > 0 {
		fmt.Fprintf(w, "failed devices: %s\n", strings.Join(failed, ", "))
	}
}
