package simulate

import (
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

// Manager 管理多台模拟设备，每台设备独立端口
type Manager struct {
	servers []*Server
}

// Start 按配置启动全部模拟设备；任一设备启动失败则停止已启动的设备
func Start(cfg *FileConfig) (*Manager, error) {
	var hostKey ssh.Signer
	if cfg.HostKeyFile != "" {
		var err error
		if hostKey, err = LoadOrCreateHostKey(cfg.HostKeyFile); err != nil {
			return nil, err
		}
	}

	m := &Manager{}
	for i, dev := range cfg.Devices {
		srv, err := NewServer(dev.withDefaults(cfg.Password), hostKey)
		if err != nil {
			m.Stop()
			return nil, fmt.Errorf("device #%d: %w", i+1, err)
		}
		if err := srv.Start(); err != nil {
			m.Stop()
			return nil, err
		}
		m.servers = append(m.servers, srv)
	}
	return m, nil
}

// Servers 已启动的模拟设备
func (m *Manager) Servers() []*Server {
	return m.servers
}

// Stop 停止所有模拟设备
func (m *Manager) Stop() {
	for _, srv := range m.servers {
		if err := srv.Close(); err != nil {
			logger.WithField("simulate", srv.Hostname()).Warnf("close listener: %v", err)
		}
	}
	m.servers = nil
}
