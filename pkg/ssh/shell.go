package ssh

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Shell 一个交互式 Shell 通道。
// stdout 与 stderr 由 x/crypto/ssh 的复制协程写入同一缓冲区，
// ReceiveIfReady 只取已到达的数据，从不阻塞。
type Shell struct {
	session *ssh.Session
	stdin   io.WriteCloser

	mu     sync.Mutex
	buf    bytes.Buffer
	err    error
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// shellSink 把会话输出追加到 Shell 缓冲区
type shellSink struct{ s *Shell }

func (w shellSink) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return w.s.buf.Write(p)
}

func startShell(session *ssh.Session) (*Shell, error) {
	s := &Shell{session: session, done: make(chan struct{})}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrTransport, err)
	}
	s.stdin = stdin
	session.Stdout = shellSink{s}
	session.Stderr = shellSink{s}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("%w: start shell: %v", ErrTransport, err)
	}

	go func() {
		werr := session.Wait()
		s.mu.Lock()
		if werr == nil {
			werr = io.EOF
		}
		s.err = fmt.Errorf("%w: shell closed by remote: %v", ErrTransport, werr)
		s.mu.Unlock()
		close(s.done)
	}()
	return s, nil
}

// Send 写入原始字节
func (s *Shell) Send(p []byte) error {
	s.mu.Lock()
	closed, err := s.closed, s.err
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: shell already closed", ErrTransport)
	}
	if err != nil {
		return err
	}
	if _, werr := s.stdin.Write(p); werr != nil {
		return fmt.Errorf("%w: write: %v", ErrTransport, werr)
	}
	return nil
}

// ReceiveIfReady 返回最多 max 字节的已到达数据；缓冲为空且远端已关闭时返回错误
func (s *Shell) ReceiveIfReady(max int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() > 0 {
		n := s.buf.Len()
		if max > 0 && n > max {
			n = max
		}
		out := make([]byte, n)
		_, _ = s.buf.Read(out)
		return out, nil
	}
	if s.closed {
		return nil, fmt.Errorf("%w: shell already closed", ErrTransport)
	}
	return nil, s.err
}

// Done 远端结束会话时关闭
func (s *Shell) Done() <-chan struct{} {
	return s.done
}

// Close 关闭输入并结束会话，可重复调用
func (s *Shell) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		_ = s.stdin.Close()
		if cerr := s.session.Close(); cerr != nil && cerr != io.EOF {
			err = cerr
		}
	})
	return err
}
