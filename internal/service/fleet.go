package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sshcollectorpro/netbatch/internal/abort"
	"github.com/sshcollectorpro/netbatch/internal/model"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

// ProgressFunc 每台设备完成时回调，done 为已完成数量
type ProgressFunc func(done, total int, res model.DeviceResult)

// Fleet 以有界并发在多台设备上执行同一组命令
type Fleet struct {
	devices        *DeviceRunner
	flag           *abort.Flag
	maxConcurrency int
	onResult       ProgressFunc
}

// NewFleet 创建调度器；maxConcurrency<=0 时按 1 处理
func NewFleet(devices *DeviceRunner, flag *abort.Flag, maxConcurrency int) *Fleet {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Fleet{devices: devices, flag: flag, maxConcurrency: maxConcurrency}
}

// OnResult 设置进度回调，回调在单个收集协程中串行调用
func (f *Fleet) OnResult(fn ProgressFunc) *Fleet {
	f.onResult = fn
	return f
}

// Run 执行整批设备并按完成顺序汇总结果。
// 中断后不再提交新设备，未提交的设备各得到一条 interrupted 失败结果，
// 因此 len(report.Results) 总是等于 len(devices)。
func (f *Fleet) Run(ctx context.Context, devices []model.Device, commands []string) *model.FleetReport {
	report := &model.FleetReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Commands:  commands,
		Results:   make([]model.DeviceResult, 0, len(devices)),
	}
	log := logger.WithField("run_id", report.RunID)
	log.Infof("starting run: %d devices, %d commands, concurrency %d", len(devices), len(commands), f.maxConcurrency)

	results := make(chan model.DeviceResult, len(devices))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for res := range results {
			report.Add(res)
			if f.onResult != nil {
				f.onResult(report.Total, len(devices), res)
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(f.maxConcurrency)
	submitted := 0
	for _, dev := range devices {
		if f.flag.IsSet() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results <- f.runDevice(ctx, dev, commands)
			return nil
		})
		submitted++
	}
	if skipped := devices[submitted:]; len(skipped) > 0 {
		log.Warnf("run interrupted, %d devices not submitted", len(skipped))
		for _, dev := range skipped {
			results <- model.FailedResult(dev, model.ErrorKindInterrupted, "interrupted before start")
		}
	}

	_ = g.Wait()
	close(results)
	<-collected

	report.FinishedAt = time.Now()
	report.Interrupted = f.flag.IsSet() || ctx.Err() != nil
	log.Infof("run finished: total=%d success=%d failed=%d interrupted=%v elapsed=%s",
		report.Total, report.Succeeded, report.Failed, report.Interrupted,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return report
}

// runDevice 执行单台设备，panic 转为 unexpected 失败结果
func (f *Fleet) runDevice(ctx context.Context, dev model.Device, commands []string) (res model.DeviceResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.ForDevice(dev.Host).Errorf("device task panicked: %v\n%s", r, debug.Stack())
			res = model.FailedResult(dev, model.ErrorKindUnexpected, fmt.Sprintf("unexpected error: %v", r))
			res.StartedAt = start
			res.Duration = time.Since(start)
		}
	}()
	return f.devices.Run(ctx, dev, commands)
}
