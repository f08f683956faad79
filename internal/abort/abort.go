// Package abort 提供进程级的协作式中断标志。
//
// 标志只会从 false 变为 true 一次，之后不可复位；所有工作协程只读。
package abort

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

// Flag 中断标志
type Flag struct {
	set atomic.Bool
}

// New 创建未置位的中断标志
func New() *Flag {
	return &Flag{}
}

// Set 置位；仅在本次调用完成 false->true 转换时返回 true
func (f *Flag) Set() bool {
	return f.set.CompareAndSwap(false, true)
}

// IsSet 是否已置位。nil 标志视为未置位
func (f *Flag) IsSet() bool {
	if f == nil {
		return false
	}
	return f.set.Load()
}

// Notify 收到中断信号时置位标志，返回用于停止监听的函数
// 未指定信号时监听 SIGINT 与 SIGTERM
func Notify(f *Flag, sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, sigs...)

	go func() {
		for {
			select {
			case sig := <-ch:
				if f.Set() {
					logger.WithField("signal", sig.String()).Warn("Interrupt received, finishing in-flight work and skipping the rest")
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
