package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// 连接错误分类，调用方使用 errors.Is 判断
var (
	ErrAuth           = errors.New("authentication failed")
	ErrConnectTimeout = errors.New("connect timeout")
	ErrTransport      = errors.New("transport error")
)

// Config SSH配置
type Config struct {
	Timeout   time.Duration `mapstructure:"session_timeout"`
	KeepAlive time.Duration `mapstructure:"keep_alive"`
	// TermWidth/TermHeight PTY 尺寸，宽度足够大可减少设备自动折行
	TermWidth  int `mapstructure:"term_width"`
	TermHeight int `mapstructure:"term_height"`
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.TermWidth <= 0 {
		c.TermWidth = 200
	}
	if c.TermHeight <= 0 {
		c.TermHeight = 24
	}
	return c
}

// ConnectionInfo SSH连接信息
type ConnectionInfo struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"-"`
	KeyFile       string `json:"key_file,omitempty"`
	KeyPassphrase string `json:"-"`
}

// Address host:port，端口缺省 22
func (i ConnectionInfo) Address() string {
	port := i.Port
	if port <= 0 {
		port = 22
	}
	return net.JoinHostPort(i.Host, strconv.Itoa(port))
}

// Client 一条已认证的 SSH 连接
type Client struct {
	config     Config
	info       ConnectionInfo
	connection *ssh.Client
	mutex      sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewClient 创建SSH客户端
func NewClient(config Config) *Client {
	return &Client{
		config: config.withDefaults(),
		stop:   make(chan struct{}),
	}
}

// clientConfig 构建握手配置，保留旧版算法以兼容老旧网络设备
func clientConfig(info ConnectionInfo, timeout time.Duration) (*ssh.ClientConfig, error) {
	auth, err := authMethods(info)
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            info.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
		Config: ssh.Config{
			KeyExchanges: []string{
				"curve25519-sha256",
				"curve25519-sha256@libssh.org",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group1-sha1",
				"diffie-hellman-group-exchange-sha256",
				"diffie-hellman-group-exchange-sha1",
			},
			Ciphers: []string{
				"aes128-gcm@openssh.com",
				"aes256-gcm@openssh.com",
				"chacha20-poly1305@openssh.com",
				"aes128-ctr",
				"aes192-ctr",
				"aes256-ctr",
				"aes128-cbc",
				"3des-cbc",
			},
			MACs: []string{
				"hmac-sha2-256-etm@openssh.com",
				"hmac-sha2-256",
				"hmac-sha1",
				"hmac-sha1-96",
			},
		},
		HostKeyAlgorithms: []string{
			"ssh-ed25519",
			"rsa-sha2-256",
			"rsa-sha2-512",
			"ssh-rsa",
			"ecdsa-sha2-nistp256",
			"ecdsa-sha2-nistp384",
			"ecdsa-sha2-nistp521",
		},
	}, nil
}

// authMethods 密钥优先，其次密码；密码同时以 keyboard-interactive 方式提供（常见于 H3C/Cisco）
func authMethods(info ConnectionInfo) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if info.KeyFile != "" {
		pem, err := os.ReadFile(info.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read key file: %v", ErrAuth, err)
		}
		var signer ssh.Signer
		if info.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(info.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse key file %s: %v", ErrAuth, info.KeyFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if info.Password != "" {
		password := info.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no password or key file for user %q", ErrAuth, info.Username)
	}
	return methods, nil
}

// Connect 建立连接并完成认证；拨号与握手都受 config.Timeout 与 ctx 约束
func (c *Client) Connect(ctx context.Context, info ConnectionInfo) error {
	sshConfig, err := clientConfig(info, c.config.Timeout)
	if err != nil {
		return err
	}
	address := info.Address()

	dialer := &net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return classifyError(ctx, fmt.Sprintf("dial %s", address), err)
	}

	// 握手期间 ctx 取消则直接关闭底层连接
	stopAfter := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stopAfter()
	_ = conn.SetDeadline(time.Now().Add(c.config.Timeout))

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		_ = conn.Close()
		return classifyError(ctx, fmt.Sprintf("handshake with %s", address), err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.mutex.Lock()
	c.info = info
	c.connection = ssh.NewClient(sshConn, chans, reqs)
	c.mutex.Unlock()

	if c.config.KeepAlive > 0 {
		go c.keepAlive(c.config.KeepAlive)
	}
	return nil
}

// classifyError 将拨号/握手错误归入 ErrAuth、ErrConnectTimeout 或 ErrTransport
func classifyError(ctx context.Context, op string, err error) error {
	var netErr net.Error
	switch {
	case strings.Contains(err.Error(), "unable to authenticate"):
		return fmt.Errorf("%w: %s: %v", ErrAuth, op, err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(err.Error(), "i/o timeout"):
		return fmt.Errorf("%w: %s: %v", ErrConnectTimeout, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrTransport, op, err)
	}
}

// newSessionWithRetry 部分网络设备登录后立即开通道会返回
// "administratively prohibited (open failed)"，短暂退避后重试
func (c *Client) newSessionWithRetry() (*ssh.Session, error) {
	c.mutex.RLock()
	conn := c.connection
	c.mutex.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("%w: connection not established", ErrTransport)
	}

	backoffs := []time.Duration{0, 200 * time.Millisecond, 500 * time.Millisecond, time.Second}
	var lastErr error
	for _, d := range backoffs {
		if d > 0 {
			time.Sleep(d)
		}
		sess, err := conn.NewSession()
		if err == nil {
			return sess, nil
		}
		lastErr = err
		msg := strings.ToLower(err.Error())
		if !strings.Contains(msg, "prohibited") && !strings.Contains(msg, "open failed") {
			break
		}
	}
	return nil, fmt.Errorf("%w: open session: %v", ErrTransport, lastErr)
}

// OpenShell 申请 PTY 并启动交互式 Shell
func (c *Client) OpenShell() (*Shell, error) {
	session, err := c.newSessionWithRetry()
	if err != nil {
		return nil, err
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	// 终端类型回退：vt100 -> xterm -> ansi -> dumb
	var ptyErr error
	for _, term := range []string{"vt100", "xterm", "ansi", "dumb"} {
		if ptyErr = session.RequestPty(term, c.config.TermHeight, c.config.TermWidth, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		_ = session.Close()
		return nil, fmt.Errorf("%w: request pty: %v", ErrTransport, ptyErr)
	}

	return startShell(session)
}

// Close 关闭连接并停止保活
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.connection == nil {
		return nil
	}
	err := c.connection.Close()
	c.connection = nil
	return err
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.connection != nil
}

// Info 连接参数
func (c *Client) Info() ConnectionInfo {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.info
}

// keepAlive 定期发送保活请求，失败时关闭连接
func (c *Client) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mutex.RLock()
			conn := c.connection
			c.mutex.RUnlock()
			if conn == nil {
				return
			}
			// 不要求回复，避免不支持该请求的设备报错
			if _, _, err := conn.SendRequest("keepalive@openssh.com", false, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
