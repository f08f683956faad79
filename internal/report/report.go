package report

import (
	"context"

	"github.com/sshcollectorpro/netbatch/internal/model"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

// Files 一次执行写出的报告文件
type Files struct {
	CSV  StoredObject `json:"csv"`
	JSON StoredObject `json:"json"`
}

// Save 写出 results_<时间>.csv 与 results_<时间>.json
func Save(ctx context.Context, w Writer, r *model.FleetReport) (Files, error) {
	var files Files
	base := "results_" + r.StartedAt.Format("20060102_150405")

	csvData, err := RenderCSV(r)
	if err != nil {
		return files, err
	}
	if files.CSV, err = w.Write(ctx, base+".csv", csvData, "text/csv; charset=utf-8"); err != nil {
		return files, err
	}

	jsonData, err := RenderJSON(r)
	if err != nil {
		return files, err
	}
	if files.JSON, err = w.Write(ctx, base+".json", jsonData, "application/json"); err != nil {
		return files, err
	}

	logger.WithField("run_id", r.RunID).Infof("report written: %s, %s", files.CSV.URI, files.JSON.URI)
	return files, nil
}
