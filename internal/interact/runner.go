package interact

import (
	"bytes"
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"

	"github.com/sshcollectorpro/netbatch/internal/abort"
	"github.com/sshcollectorpro/netbatch/internal/model"
	"github.com/sshcollectorpro/netbatch/internal/util"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

// Limits 单条命令的执行参数
type Limits struct {
	CommandTimeout time.Duration
	// RateLimitDelay 发送后首次读取前的等待，避免与设备回显竞争
	RateLimitDelay time.Duration
	PollInterval   time.Duration
	// ContinueDelay 发送分页续读按键后的等待
	ContinueDelay  time.Duration
	ChunkSize      int
	LineTerminator string
	ContinueKey    string
	// Encoding 设备输出编码，nil 时自动探测
	Encoding encoding.Encoding
	// PreviewLines debug 日志中输出预览的首尾行数
	PreviewLines int
}

// DefaultLimits 默认执行参数
func DefaultLimits() Limits {
	return Limits{
		CommandTimeout: 15 * time.Second,
		RateLimitDelay: 500 * time.Millisecond,
		PollInterval:   100 * time.Millisecond,
		ContinueDelay:  300 * time.Millisecond,
		ChunkSize:      65535,
		LineTerminator: "\n",
		ContinueKey:    " ",
		PreviewLines:   5,
	}
}

func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.CommandTimeout <= 0 {
		l.CommandTimeout = def.CommandTimeout
	}
	if l.RateLimitDelay < 0 {
		l.RateLimitDelay = 0
	}
	if l.PollInterval <= 0 {
		l.PollInterval = def.PollInterval
	}
	if l.ContinueDelay < 0 {
		l.ContinueDelay = 0
	}
	if l.ChunkSize <= 0 {
		l.ChunkSize = def.ChunkSize
	}
	if l.LineTerminator == "" {
		l.LineTerminator = def.LineTerminator
	}
	if l.ContinueKey == "" {
		l.ContinueKey = def.ContinueKey
	}
	if l.PreviewLines <= 0 {
		l.PreviewLines = def.PreviewLines
	}
	return l
}

// Runner 在一个已打开的通道上执行单条命令
//
// 状态流转：拒绝(已中断) -> 校验 -> 发送 -> 等待 -> 轮询(提示符/分页续读/中断/超时) -> 清洗 -> 返回。
// 每个数据块先看是否以提示符结尾，否则每出现一次分页提示发送一次续读按键。
// 超时与策略拦截不视为错误；只有通道读写失败才返回 error。
type Runner struct {
	det    *Detector
	val    *Validator
	flag   *abort.Flag
	limits Limits
	device string
}

// NewRunner 创建执行器；det、val 为 nil 时使用默认识别器与只读校验器
func NewRunner(det *Detector, val *Validator, flag *abort.Flag, limits Limits) *Runner {
	if det == nil {
		det = DefaultDetector()
	}
	if val == nil {
		val = NewValidator(true, nil, nil)
	}
	return &Runner{det: det, val: val, flag: flag, limits: limits.withDefaults()}
}

// ForDevice 返回绑定设备标识的副本，设备标识仅用于日志
func (r *Runner) ForDevice(host string) *Runner {
	cp := *r
	cp.device = host
	return &cp
}

// WithValidator 返回使用另一校验器的副本，用于厂商预命令等内部命令
func (r *Runner) WithValidator(v *Validator) *Runner {
	cp := *r
	if v != nil {
		cp.val = v
	}
	return &cp
}

// Limits 当前执行参数
func (r *Runner) Limits() Limits {
	return r.limits
}

// Detector 当前使用的提示符识别器
func (r *Runner) Detector() *Detector {
	return r.det
}

// Run 执行一条命令并返回清洗后的结果
func (r *Runner) Run(ctx context.Context, ch Channel, command string) (model.CommandOutcome, error) {
	start := time.Now()
	outcome := model.CommandOutcome{Command: command}
	log := logger.WithFields(logrus.Fields{"device": r.device, "command": command})

	if r.interrupted(ctx) {
		outcome.Interrupted = true
		return outcome, nil
	}

	if v := r.val.Validate(command); !v.Allowed {
		log.WithField("term", v.Term).Warn("command rejected")
		outcome.Output = "ERROR: " + v.Reason
		outcome.Length = utf8.RuneCountInString(outcome.Output)
		outcome.Blocked = true
		outcome.Elapsed = time.Since(start)
		return outcome, nil
	}

	if err := ch.Send([]byte(command + r.limits.LineTerminator)); err != nil {
		return outcome, fmt.Errorf("send command %q: %w", command, err)
	}
	r.pause(ctx, r.limits.RateLimitDelay)

	var buf bytes.Buffer
	for {
		if r.interrupted(ctx) {
			outcome.Interrupted = true
			log.Warn("interrupted while waiting for output")
			break
		}

		chunk, err := ch.ReceiveIfReady(r.limits.ChunkSize)
		if err != nil {
			return outcome, fmt.Errorf("receive output of %q: %w", command, err)
		}
		paged := false
		if len(chunk) > 0 {
			buf.Write(chunk)
			text := string(chunk)
			// 分页提示之后已回到提示符，输出完整
			if r.det.EndsAtPrompt(text) {
				break
			}
			if n := r.det.CountPagination(text); n > 0 {
				for i := 0; i < n; i++ {
					if err := ch.Send([]byte(r.limits.ContinueKey)); err != nil {
						return outcome, fmt.Errorf("send continue key: %w", err)
					}
				}
				outcome.Pages += n
				paged = true
			}
		}

		if time.Since(start) > r.limits.CommandTimeout {
			outcome.TimedOut = true
			log.Warnf("no prompt within %s, keeping partial output (%d bytes)", r.limits.CommandTimeout, buf.Len())
			break
		}
		if paged {
			r.pause(ctx, r.limits.ContinueDelay)
		} else {
			r.pause(ctx, r.limits.PollInterval)
		}
	}

	raw := util.DecodeBytes(r.limits.Encoding, buf.Bytes())
	outcome.Output = r.det.Demarcate(raw, command, r.device)
	outcome.Length = utf8.RuneCountInString(outcome.Output)
	outcome.Elapsed = time.Since(start)
	logger.DebugCommandOutput(log, command, outcome.Output, r.limits.PreviewLines)
	return outcome, nil
}

func (r *Runner) interrupted(ctx context.Context) bool {
	return r.flag.IsSet() || ctx.Err() != nil
}

// pause 等待 d，ctx 结束时提前返回
func (r *Runner) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
