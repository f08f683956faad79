package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sshcollectorpro/netbatch/internal/abort"
	"github.com/sshcollectorpro/netbatch/internal/config"
	"github.com/sshcollectorpro/netbatch/internal/interact"
	"github.com/sshcollectorpro/netbatch/internal/model"
	"github.com/sshcollectorpro/netbatch/internal/report"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
	"github.com/sshcollectorpro/netbatch/pkg/ssh"
)

// Recorder 保存执行历史
type Recorder interface {
	SaveReport(report *model.FleetReport) error
}

// Outcome 一次批量执行的产出
type Outcome struct {
	Report *model.FleetReport `json:"report"`
	Files  *report.Files      `json:"files,omitempty"`
}

// BatchService 组装连接池、调度器、历史记录与报告写入，供 CLI 与 HTTP 共用
type BatchService struct {
	mutex    sync.RWMutex
	cfg      *config.Config
	flag     *abort.Flag
	pool     *ssh.Pool
	provider interact.Provider
	recorder Recorder
	writer   report.Writer
	running  atomic.Int32
}

// NewBatchService 创建服务；recorder、writer 为 nil 时分别跳过历史记录与报告文件
func NewBatchService(cfg *config.Config, flag *abort.Flag, recorder Recorder, writer report.Writer) *BatchService {
	pool := ssh.NewPool(cfg.SSHPool())
	return &BatchService{
		cfg:      cfg,
		flag:     flag,
		pool:     pool,
		provider: NewSSHProvider(pool, cfg.SSH.Port),
		recorder: recorder,
		writer:   writer,
	}
}

// WithProvider 替换会话提供者
func (s *BatchService) WithProvider(p interact.Provider) *BatchService {
	s.mutex.Lock()
	s.provider = p
	s.mutex.Unlock()
	return s
}

// SetConfig 热更新配置，对之后开始的批次生效
func (s *BatchService) SetConfig(cfg *config.Config) {
	s.mutex.Lock()
	s.cfg = cfg
	s.mutex.Unlock()
}

// NewFleet 按当前配置构造调度器
func (s *BatchService) NewFleet() (*Fleet, error) {
	s.mutex.RLock()
	cfg, provider := s.cfg, s.provider
	s.mutex.RUnlock()

	limits, err := cfg.Limits()
	if err != nil {
		return nil, err
	}
	det, err := cfg.Detector()
	if err != nil {
		return nil, err
	}
	runner := interact.NewRunner(det, cfg.Validator(), s.flag, limits)
	devices := NewDeviceRunner(provider, runner, s.flag, DeviceOptions{
		SessionTimeout: cfg.SSH.SessionTimeout,
		BannerWait:     cfg.SSH.BannerWait,
		Vendor:         cfg.Vendor,
	})
	return NewFleet(devices, s.flag, cfg.Execution.MaxConcurrency), nil
}

// Execute 执行一批设备，保存历史并写出报告。
// 设备级失败体现在报告中；只有参数错误或报告写入失败才返回 error，此时报告仍然返回。
func (s *BatchService) Execute(ctx context.Context, devices []model.Device, commands []string, progress ProgressFunc) (*Outcome, error) {
	if len(devices) == 0 {
		return nil, errors.New("no devices to run")
	}
	if len(commands) == 0 {
		return nil, errors.New("no commands to run")
	}
	fleet, err := s.NewFleet()
	if err != nil {
		return nil, fmt.Errorf("build fleet: %w", err)
	}

	s.running.Add(1)
	defer s.running.Add(-1)

	out := &Outcome{Report: fleet.OnResult(progress).Run(ctx, devices, commands)}

	if s.recorder != nil {
		if err := s.recorder.SaveReport(out.Report); err != nil {
			logger.WithField("run_id", out.Report.RunID).Warnf("save run history: %v", err)
		}
	}
	if s.writer != nil {
		// 中断后也要落盘，使用独立的 context
		files, err := report.Save(context.WithoutCancel(ctx), s.writer, out.Report)
		if err != nil {
			return out, fmt.Errorf("write report: %w", err)
		}
		out.Files = &files
	}
	return out, nil
}

// Stats 服务运行统计
func (s *BatchService) Stats() map[string]interface{} {
	return map[string]interface{}{
		"running_batches": s.running.Load(),
		"interrupted":     s.flag.IsSet(),
		"ssh_pool":        s.pool.Stats(),
	}
}

// Close 关闭连接池中残留的连接
func (s *BatchService) Close() error {
	return s.pool.Close()
}
