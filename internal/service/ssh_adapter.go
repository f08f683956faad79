package service

import (
	"context"
	"time"

	"github.com/sshcollectorpro/netbatch/internal/interact"
	"github.com/sshcollectorpro/netbatch/internal/model"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
	"github.com/sshcollectorpro/netbatch/pkg/ssh"
)

// SSHProvider 基于 ssh.Pool 的会话提供者
type SSHProvider struct {
	pool        *ssh.Pool
	defaultPort int
}

// NewSSHProvider 创建会话提供者；设备未指定端口时使用 defaultPort
func NewSSHProvider(pool *ssh.Pool, defaultPort int) *SSHProvider {
	if defaultPort <= 0 || defaultPort > 65535 {
		defaultPort = 22
	}
	return &SSHProvider{pool: pool, defaultPort: defaultPort}
}

// Connect 建立连接并完成认证，错误保留 ssh.ErrAuth 等分类
func (p *SSHProvider) Connect(ctx context.Context, dev model.Device, timeout time.Duration) (interact.Session, error) {
	port := dev.Port
	if port <= 0 || port > 65535 {
		port = p.defaultPort
	}
	info := ssh.ConnectionInfo{
		Host:     dev.Host,
		Port:     port,
		Username: dev.Username,
		Password: dev.Password,
		KeyFile:  dev.KeyFile,
	}
	client, err := p.pool.Acquire(ctx, info, timeout)
	if err != nil {
		return nil, err
	}
	return &sshSession{pool: p.pool, client: client}, nil
}

// Stats 连接统计
func (p *SSHProvider) Stats() ssh.PoolStats {
	return p.pool.Stats()
}

// sshSession 一条登记在 Pool 中的连接；Close 时注销并断开
type sshSession struct {
	pool   *ssh.Pool
	client *ssh.Client
}

func (s *sshSession) OpenShell() (interact.Channel, error) {
	shell, err := s.client.OpenShell()
	if err != nil {
		return nil, err
	}
	return shell, nil
}

func (s *sshSession) Close() error {
	if err := s.pool.Release(s.client); err != nil {
		logger.WithField("device", s.client.Info().Host).Debugf("release connection: %v", err)
		return err
	}
	return nil
}
