package ssh

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pool 在用连接登记表：每台设备一条独占连接，用完即释放。
// 登记表只负责上限控制、统计与兜底关闭，不复用连接。
type Pool struct {
	config    Config
	maxActive int

	mutex   sync.Mutex
	clients map[*Client]*pooledConnection
	// connecting 已占用名额但仍在建立中的连接数
	connecting int
	opened     int64
	failed  int64

	stop     chan struct{}
	stopOnce sync.Once
}

// pooledConnection 登记的连接
type pooledConnection struct {
	address string
	created time.Time
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxActive int `mapstructure:"max_active"`
	// ReapInterval 清理已断开连接的周期，0 表示不清理
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	SSH          Config        `mapstructure:"ssh"`
}

// PoolStats 连接池统计
type PoolStats struct {
	Active     int   `json:"active"`
	Connecting int   `json:"connecting"`
	MaxActive  int   `json:"max_active"`
	Opened    int64 `json:"opened"`
	Failed    int64 `json:"failed"`
}

// NewPool 创建SSH连接池
func NewPool(config PoolConfig) *Pool {
	p := &Pool{
		config:    config.SSH.withDefaults(),
		maxActive: config.MaxActive,
		clients:   make(map[*Client]*pooledConnection),
		stop:      make(chan struct{}),
	}
	if config.ReapInterval > 0 {
		go p.cleanup(config.ReapInterval)
	}
	return p
}

// Config 连接参数
func (p *Pool) Config() Config {
	return p.config
}

// Acquire 建立一条新连接并登记；timeout<=0 时使用配置的会话超时
func (p *Pool) Acquire(ctx context.Context, info ConnectionInfo, timeout time.Duration) (*Client, error) {
	p.mutex.Lock()
	if p.maxActive > 0 && len(p.clients)+p.connecting >= p.maxActive {
		active := len(p.clients) + p.connecting
		p.mutex.Unlock()
		return nil, fmt.Errorf("%w: connection pool is full, active connections: %d", ErrTransport, active)
	}
	p.connecting++
	p.mutex.Unlock()

	cfg := p.config
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	client := NewClient(cfg)
	if err := client.Connect(ctx, info); err != nil {
		p.mutex.Lock()
		p.connecting--
		p.failed++
		p.mutex.Unlock()
		return nil, err
	}

	p.mutex.Lock()
	p.connecting--
	p.clients[client] = &pooledConnection{address: info.Address(), created: time.Now()}
	p.opened++
	p.mutex.Unlock()
	return client, nil
}

// Release 关闭并注销连接
func (p *Pool) Release(client *Client) error {
	p.mutex.Lock()
	delete(p.clients, client)
	p.mutex.Unlock()
	return client.Close()
}

// Stats 获取连接池统计信息
func (p *Pool) Stats() PoolStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return PoolStats{
		Active:     len(p.clients),
		Connecting: p.connecting,
		MaxActive:  p.maxActive,
		Opened:     p.opened,
		Failed:     p.failed,
	}
}

// Health 存在登记连接但全部断开时返回错误
func (p *Pool) Health() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.clients) == 0 {
		return nil
	}
	for c := range p.clients {
		if c.IsConnected() {
			return nil
		}
	}
	return fmt.Errorf("all %d connections are disconnected", len(p.clients))
}

// Close 关闭全部登记连接并停止清理协程
func (p *Pool) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })

	p.mutex.Lock()
	clients := make([]*Client, 0, len(p.clients))
	for c := range p.clients {
		clients = append(clients, c)
	}
	p.clients = make(map[*Client]*pooledConnection)
	p.mutex.Unlock()

	var lastErr error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// cleanup 周期性注销已断开的连接（例如保活失败）
func (p *Pool) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.mutex.Lock()
			for c := range p.clients {
				if !c.IsConnected() {
					delete(p.clients, c)
				}
			}
			p.mutex.Unlock()
		}
	}
}
