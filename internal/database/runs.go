package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sshcollectorpro/netbatch/internal/model"
)

// SaveReport 保存一次批量执行及其设备结果
func (s *Store) SaveReport(report *model.FleetReport) error {
	status := model.RunStatusCompleted
	if report.Interrupted {
		status = model.RunStatusInterrupted
	}
	run := model.Run{
		ID:        report.RunID,
		Commands:  strings.Join(report.Commands, "\n"),
		Status:    status,
		Total:     report.Total,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		StartTime: report.StartedAt,
		EndTime:   report.FinishedAt,
		Duration:  report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	}
	for i, res := range report.Results {
		dev := model.RunDevice{
			RunID:     report.RunID,
			Seq:       i + 1,
			DeviceIP:  res.Host,
			Vendor:    res.Vendor,
			Success:   res.Success,
			ErrorKind: string(res.ErrorKind),
			ErrorMsg:  res.Error,
			StartTime: res.StartedAt,
			Duration:  res.Duration.Milliseconds(),
		}
		if len(res.Outcomes) > 0 {
			data, err := json.Marshal(res.Outcomes)
			if err != nil {
				return fmt.Errorf("encode outcomes of %s: %w", res.Host, err)
			}
			dev.Result = string(data)
		}
		run.Devices = append(run.Devices, dev)
	}

	return s.TransactionWithRetry(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("save run %s: %w", run.ID, err)
		}
		return nil
	}, 5, 50*time.Millisecond)
}

// ListRuns 按开始时间倒序分页列出执行记录，不含设备明细
func (s *Store) ListRuns(limit, offset int) ([]model.Run, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var total int64
	if err := s.db.Model(&model.Run{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}
	var runs []model.Run
	if err := s.db.Order("start_time DESC").Limit(limit).Offset(offset).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	return runs, total, nil
}

// GetRun 读取一次执行及其设备明细（按完成顺序）
func (s *Store) GetRun(id string) (*model.Run, error) {
	var run model.Run
	err := s.db.Preload("Devices", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq ASC")
	}).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}
