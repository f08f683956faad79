package simulate

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

// Server 一台模拟设备的 SSH 服务
type Server struct {
	cfg      DeviceConfig
	hostKey  ssh.Signer
	keys     map[string]bool
	listener net.Listener
	log      *logrus.Entry

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	received []string
	wg       sync.WaitGroup
}

// NewServer 创建模拟设备；hostKey 为 nil 时生成临时 ed25519 密钥
func NewServer(cfg DeviceConfig, hostKey ssh.Signer) (*Server, error) {
	cfg = cfg.withDefaults("")
	if hostKey == nil {
		var err error
		if hostKey, err = generateHostKey(); err != nil {
			return nil, err
		}
	}
	keys := make(map[string]bool, len(cfg.AuthorizedKeys))
	for _, k := range cfg.AuthorizedKeys {
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(k))
		if err != nil {
			return nil, fmt.Errorf("invalid authorized key for %s: %w", cfg.Hostname, err)
		}
		keys[string(pub.Marshal())] = true
	}
	return &Server{
		cfg:     cfg,
		hostKey: hostKey,
		keys:    keys,
		conns:   make(map[net.Conn]struct{}),
		log:     logger.WithField("simulate", cfg.Hostname),
	}, nil
}

// Start 开始监听
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("simulate %s listen %s: %w", s.cfg.Hostname, s.cfg.Listen, err)
	}
	s.listener = ln
	s.log.WithField("addr", ln.Addr().String()).Info("simulated device listening")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns[conn] = struct{}{}
			s.mu.Unlock()

			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.handleConn(c)
				s.mu.Lock()
				delete(s.conns, c)
				s.mu.Unlock()
			}(conn)
		}
	}()
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Listen
	}
	return s.listener.Addr().String()
}

// Port 实际监听端口
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Hostname 设备名
func (s *Server) Hostname() string {
	return s.cfg.Hostname
}

// Received 收到的全部命令行（按顺序）
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// Close 停止监听并断开所有连接
func (s *Server) Close() error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) serverConfig() *ssh.ServerConfig {
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if string(password) == s.cfg.Password {
				return nil, nil
			}
			s.log.WithField("user", meta.User()).Debug("password rejected")
			return nil, errors.New("access denied")
		},
		KeyboardInteractiveCallback: func(meta ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(meta.User(), "Authentication", []string{"Password:"}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) == 1 && answers[0] == s.cfg.Password {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if s.keys[string(key.Marshal())] {
				return nil, nil
			}
			return nil, errors.New("unknown public key")
		},
	}
	cfg.AddHostKey(s.hostKey)
	return cfg
}

func (s *Server) handleConn(nc net.Conn) {
	defer nc.Close()
	conn, chans, reqs, err := ssh.NewServerConn(nc, s.serverConfig())
	if err != nil {
		s.log.WithError(err).Debug("handshake failed")
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	for ch := range chans {
		if ch.ChannelType() != "session" {
			_ = ch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := ch.Accept()
		if err != nil {
			s.log.WithError(err).Warn("channel accept failed")
			continue
		}
		go s.handleSession(nc, channel, requests)
	}
}

func (s *Server) handleSession(nc net.Conn, channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(requests)
			newTerminal(s, nc, channel).run()
			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

func (s *Server) record(line string) {
	s.mu.Lock()
	s.received = append(s.received, line)
	s.mu.Unlock()
}

// terminal 一个交互式会话的状态
type terminal struct {
	srv     *Server
	nc      net.Conn
	ch      ssh.Channel
	paging  bool
	scratch [1]byte
}

func newTerminal(s *Server, nc net.Conn, ch ssh.Channel) *terminal {
	return &terminal{srv: s, nc: nc, ch: ch, paging: s.cfg.PageLines > 0}
}

func (t *terminal) prompt() string {
	if t.srv.cfg.Style == "ios" {
		return t.srv.cfg.Hostname + "#"
	}
	return "<" + t.srv.cfg.Hostname + ">"
}

func (t *terminal) write(s string) bool {
	if t.srv.cfg.Encoding == "gbk" {
		if enc, err := simplifiedchinese.GBK.NewEncoder().String(s); err == nil {
			s = enc
		}
	}
	_, err := io.WriteString(t.ch, s)
	return err == nil
}

func (t *terminal) readByte() (byte, error) {
	_, err := io.ReadFull(t.ch, t.scratch[:])
	return t.scratch[0], err
}

// readLine 逐字节读取并回显一行，以 CR 或 LF 结束
func (t *terminal) readLine() (string, error) {
	var line bytes.Buffer
	for {
		b, err := t.readByte()
		if err != nil {
			return "", err
		}
		switch b {
		case '\r', '\n':
			return line.String(), nil
		case 0x7f, '\b':
			if line.Len() > 0 {
				line.Truncate(line.Len() - 1)
				t.write("\b \b")
			}
		default:
			line.WriteByte(b)
			t.write(string(b))
		}
	}
}

func (t *terminal) run() {
	if t.srv.cfg.Banner != "" {
		t.write(crlf(t.srv.cfg.Banner))
	}
	t.write("\r\n" + t.prompt())

	for {
		line, err := t.readLine()
		if err != nil {
			return
		}
		t.write("\r\n")
		cmd := normalizeCommand(line)
		if cmd == "" {
			t.write(t.prompt())
			continue
		}
		t.srv.record(strings.TrimSpace(line))

		for _, d := range t.srv.cfg.DropOn {
			if normalizeCommand(d) == cmd {
				t.srv.log.WithField("command", cmd).Info("dropping connection")
				_ = t.nc.Close()
				return
			}
		}

		switch {
		case cmd == "quit" || cmd == "exit" || cmd == "logout":
			return
		case strings.HasPrefix(cmd, "screen-length") || cmd == "terminal length 0":
			t.paging = false
		default:
			out, ok := t.srv.cfg.Commands[cmd]
			if !ok {
				out = t.unknownCommand()
			}
			if !t.page(out) {
				return
			}
		}
		if !t.write(t.prompt()) {
			return
		}
	}
}

func (t *terminal) unknownCommand() string {
	if t.srv.cfg.Style == "ios" {
		return "% Invalid input detected at '^' marker."
	}
	return "Error: Unrecognized command found at '^' position."
}

// page 按 page_lines 分页输出，每页后等待任意键；q 结束输出
func (t *terminal) page(out string) bool {
	lines := strings.Split(strings.ReplaceAll(strings.TrimRight(out, "\r\n"), "\r\n", "\n"), "\n")
	size := t.srv.cfg.PageLines
	if !t.paging || size <= 0 || len(lines) <= size {
		return t.write(crlf(out))
	}

	banner, erase := "  ---- More ----", "\x1b[16D                \x1b[16D"
	if t.srv.cfg.Style == "ios" {
		banner, erase = " --More-- ", "\b\b\b\b\b\b\b\b\b\b          \b\b\b\b\b\b\b\b\b\b"
	}
	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		if !t.write(strings.Join(lines[start:end], "\r\n") + "\r\n") {
			return false
		}
		if end == len(lines) {
			return true
		}
		if !t.write(banner) {
			return false
		}
		key, err := t.readByte()
		if err != nil {
			return false
		}
		t.write(erase)
		if key == 'q' || key == 'Q' {
			return true
		}
	}
	return true
}

func crlf(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	if !strings.HasSuffix(s, "\r\n") {
		s += "\r\n"
	}
	return s
}

func generateHostKey() (ssh.Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	return ssh.NewSignerFromKey(priv)
}

// LoadOrCreateHostKey 读取持久化的主机密钥，不存在时生成并写入，避免客户端指纹频繁变化
func LoadOrCreateHostKey(path string) (ssh.Signer, error) {
	if bs, err := os.ReadFile(path); err == nil {
		signer, perr := ssh.ParsePrivateKey(bs)
		if perr == nil {
			return signer, nil
		}
		logger.WithField("file", path).Warnf("host key parse failed, regenerating: %v", perr)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "netbatch-simulate")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal host key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create host key dir: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write host key: %w", err)
	}
	return ssh.NewSignerFromKey(priv)
}
