package interact

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sshcollectorpro/netbatch/internal/model"
)

// ErrMockClosed 通道已关闭
var ErrMockClosed = errors.New("mock channel closed")

// MockChannel 用于测试的脚本化通道：每次 Send 按载荷弹出一组预设应答，
// ReceiveIfReady 每次返回一个分片
type MockChannel struct {
	mu      sync.Mutex
	replies map[string][][]string
	fails   map[string]error
	pending [][]byte
	sent    []string
	closed  bool
}

// NewMockChannel 创建通道，banner 非空时作为登录横幅首先可读
func NewMockChannel(banner ...string) *MockChannel {
	m := &MockChannel{replies: map[string][][]string{}, fails: map[string]error{}}
	for _, b := range banner {
		m.pending = append(m.pending, []byte(b))
	}
	return m
}

// Reply 追加一次应答：载荷为 payload 的下一次 Send 之后依次可读 chunks
func (m *MockChannel) Reply(payload string, chunks ...string) *MockChannel {
	m.mu.Lock()
	m.replies[payload] = append(m.replies[payload], chunks)
	m.mu.Unlock()
	return m
}

// FailOn 载荷为 payload 的 Send 返回 err
func (m *MockChannel) FailOn(payload string, err error) *MockChannel {
	m.mu.Lock()
	m.fails[payload] = err
	m.mu.Unlock()
	return m
}

func (m *MockChannel) Send(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMockClosed
	}
	payload := string(p)
	if err, ok := m.fails[payload]; ok {
		return err
	}
	m.sent = append(m.sent, payload)
	if queue := m.replies[payload]; len(queue) > 0 {
		for _, c := range queue[0] {
			m.pending = append(m.pending, []byte(c))
		}
		m.replies[payload] = queue[1:]
	}
	return nil
}

func (m *MockChannel) ReceiveIfReady(max int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrMockClosed
	}
	if len(m.pending) == 0 {
		return nil, nil
	}
	chunk := m.pending[0]
	if len(chunk) > max {
		m.pending[0] = chunk[max:]
		return chunk[:max], nil
	}
	m.pending = m.pending[1:]
	return chunk, nil
}

func (m *MockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Sent 已发送的载荷
func (m *MockChannel) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

// Count 载荷为 payload 的发送次数
func (m *MockChannel) Count(payload string) int {
	n := 0
	for _, s := range m.Sent() {
		if s == payload {
			n++
		}
	}
	return n
}

// Closed 是否已关闭
func (m *MockChannel) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockSession 用于测试的会话
type MockSession struct {
	Channel *MockChannel
	OpenErr error

	mu     sync.Mutex
	opened int
	closed bool
}

func (s *MockSession) OpenShell() (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.opened++
	return s.Channel, nil
}

func (s *MockSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed 是否已关闭
func (s *MockSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockDevice 一台模拟设备的连接行为
type MockDevice struct {
	Session *MockSession
	Err     error
	Panic   bool
	Delay   time.Duration
}

// MockProvider 用于测试的会话提供者
type MockProvider struct {
	mu       sync.Mutex
	devices  map[string]MockDevice
	connects map[string]int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{devices: map[string]MockDevice{}, connects: map[string]int{}}
}

// Set 设置 host 的连接行为
func (p *MockProvider) Set(host string, dev MockDevice) *MockProvider {
	p.mu.Lock()
	p.devices[host] = dev
	p.mu.Unlock()
	return p
}

func (p *MockProvider) Connect(ctx context.Context, dev model.Device, timeout time.Duration) (Session, error) {
	p.mu.Lock()
	d, ok := p.devices[dev.Host]
	p.connects[dev.Host]++
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("mock: unknown device %s", dev.Host)
	}
	if d.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.Delay):
		}
	}
	if d.Panic {
		panic("mock: provider panic for " + dev.Host)
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Session, nil
}

// Connects host 的连接次数
func (p *MockProvider) Connects(host string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects[host]
}
