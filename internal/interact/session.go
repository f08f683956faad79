// Package interact 在已打开的交互式 Shell 通道上逐条执行命令：
// 识别提示符与分页、清洗回显、执行只读策略校验。
package interact

import (
	"context"
	"time"

	"github.com/sshcollectorpro/netbatch/internal/model"
)

// Channel 设备上的一个交互式 Shell 通道
type Channel interface {
	// Send 写入原始字节
	Send(p []byte) error
	// ReceiveIfReady 非阻塞读取，最多 max 字节；无数据时返回空切片
	ReceiveIfReady(max int) ([]byte, error)
	Close() error
}

// Session 已认证的设备会话
type Session interface {
	OpenShell() (Channel, error)
	Close() error
}

// Provider 会话提供者，负责建立连接与认证
type Provider interface {
	Connect(ctx context.Context, dev model.Device, timeout time.Duration) (Session, error)
}
