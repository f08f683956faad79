package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/netbatch/internal/abort"
	"github.com/sshcollectorpro/netbatch/internal/config"
	"github.com/sshcollectorpro/netbatch/internal/interact"
	"github.com/sshcollectorpro/netbatch/internal/model"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
	"github.com/sshcollectorpro/netbatch/pkg/ssh"
)

// DeviceOptions 单台设备会话参数
type DeviceOptions struct {
	SessionTimeout time.Duration
	// BannerWait 登录后等待首个提示符的最长时间
	BannerWait time.Duration
	// Vendor 按厂商查找预命令与退出命令，nil 表示不发送
	Vendor func(name string) config.VendorConfig
}

// DeviceRunner 负责一台设备的完整生命周期：建连、清空横幅、顺序执行命令、释放
type DeviceRunner struct {
	provider interact.Provider
	runner   *interact.Runner
	internal *interact.Runner
	flag     *abort.Flag
	opts     DeviceOptions
}

// NewDeviceRunner 创建设备执行器
func NewDeviceRunner(provider interact.Provider, runner *interact.Runner, flag *abort.Flag, opts DeviceOptions) *DeviceRunner {
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = 10 * time.Second
	}
	return &DeviceRunner{
		provider: provider,
		runner:   runner,
		// 厂商预命令由配置给出，不经过只读校验
		internal: runner.WithValidator(interact.NewValidator(false, nil, nil)),
		flag:     flag,
		opts:     opts,
	}
}

// Run 在一台设备上顺序执行命令。
// 建连失败或执行中通道读写失败都返回失败结果，已得到的命令结果一并丢弃。
func (d *DeviceRunner) Run(ctx context.Context, dev model.Device, commands []string) model.DeviceResult {
	start := time.Now()
	log := logger.ForDevice(dev.Host)
	fail := func(kind model.ErrorKind, msg string) model.DeviceResult {
		res := model.FailedResult(dev, kind, msg)
		res.StartedAt = start
		res.Duration = time.Since(start)
		return res
	}

	if d.flag.IsSet() || ctx.Err() != nil {
		log.Info("run interrupted before connecting")
		return fail(model.ErrorKindInterrupted, "interrupted before connecting")
	}

	session, err := d.provider.Connect(ctx, dev, d.opts.SessionTimeout)
	if err != nil {
		kind := classifyError(ctx, err)
		log.WithField("kind", kind).Errorf("connect failed: %v", err)
		return fail(kind, err.Error())
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warnf("close session: %v", cerr)
		}
	}()

	ch, err := session.OpenShell()
	if err != nil {
		kind := classifyError(ctx, err)
		log.WithField("kind", kind).Errorf("open shell failed: %v", err)
		return fail(kind, fmt.Sprintf("open shell: %v", err))
	}
	vendor := d.vendor(dev.Vendor)
	defer d.release(ch, vendor.ExitCommands, log)

	runner := d.runner.ForDevice(dev.Host)
	if err := d.drainBanner(ctx, ch, log); err != nil {
		return fail(classifyError(ctx, err), fmt.Sprintf("read login banner: %v", err))
	}

	internal := d.internal.ForDevice(dev.Host)
	for _, cmd := range vendor.PreCommands {
		out, err := internal.Run(ctx, ch, cmd)
		if err != nil {
			log.Errorf("pre-command %q failed: %v", cmd, err)
			return fail(classifyError(ctx, err), err.Error())
		}
		if out.TimedOut {
			log.Warnf("pre-command %q timed out", cmd)
		}
	}

	outcomes := make([]model.CommandOutcome, 0, len(commands))
	for _, raw := range commands {
		cmd := strings.TrimSpace(raw)
		if cmd == "" {
			continue
		}
		out, err := runner.Run(ctx, ch, cmd)
		if err != nil {
			log.WithField("done", len(outcomes)).Errorf("command %q failed, aborting device: %v", cmd, err)
			return fail(classifyError(ctx, err), err.Error())
		}
		outcomes = append(outcomes, out)
	}

	log.WithFields(logrus.Fields{
		"commands": len(outcomes),
		"elapsed":  time.Since(start).Round(time.Millisecond),
	}).Info("device finished")
	return model.DeviceResult{
		Host:      dev.Host,
		Vendor:    dev.Vendor,
		Success:   true,
		Outcomes:  outcomes,
		StartedAt: start,
		Duration:  time.Since(start),
	}
}

func (d *DeviceRunner) vendor(name string) config.VendorConfig {
	if d.opts.Vendor == nil {
		return config.VendorConfig{}
	}
	return d.opts.Vendor(name)
}

// drainBanner 丢弃登录横幅：轮询到提示符出现或 BannerWait 用尽为止
func (d *DeviceRunner) drainBanner(ctx context.Context, ch interact.Channel, log *logrus.Entry) error {
	limits := d.runner.Limits()
	det := d.runner.Detector()
	deadline := time.Now().Add(d.opts.BannerWait)
	discarded := 0
	for {
		chunk, err := ch.ReceiveIfReady(limits.ChunkSize)
		if err != nil {
			return err
		}
		discarded += len(chunk)
		if len(chunk) > 0 {
			text := string(chunk)
			if det.EndsAtPrompt(text) {
				log.Debugf("login banner drained (%d bytes)", discarded)
				return nil
			}
			for i := det.CountPagination(text); i > 0; i-- {
				if err := ch.Send([]byte(limits.ContinueKey)); err != nil {
					return err
				}
			}
		}
		if d.flag.IsSet() || ctx.Err() != nil || !time.Now().Before(deadline) {
			log.Debugf("no prompt after login banner (%d bytes discarded)", discarded)
			return nil
		}
		t := time.NewTimer(limits.PollInterval)
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		t.Stop()
	}
}

// release 尽力发送退出命令并关闭通道，失败只记录
func (d *DeviceRunner) release(ch interact.Channel, exits []string, log *logrus.Entry) {
	term := d.runner.Limits().LineTerminator
	for _, cmd := range exits {
		if err := ch.Send([]byte(cmd + term)); err != nil {
			log.Debugf("send exit command %q: %v", cmd, err)
			break
		}
	}
	if err := ch.Close(); err != nil {
		log.Warnf("close channel: %v", err)
	}
}

// classifyError 将错误归类为设备级失败类型
func classifyError(ctx context.Context, err error) model.ErrorKind {
	switch {
	case errors.Is(err, ssh.ErrAuth):
		return model.ErrorKindAuth
	case errors.Is(err, ssh.ErrConnectTimeout), errors.Is(err, context.DeadlineExceeded):
		return model.ErrorKindConnectTimeout
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return model.ErrorKindInterrupted
	default:
		return model.ErrorKindTransport
	}
}
