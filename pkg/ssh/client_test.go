package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/netbatch/simulate"
)

func startDevice(t *testing.T, cfg simulate.DeviceConfig) *simulate.Server {
	t.Helper()
	srv, err := simulate.NewServer(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func infoFor(srv *simulate.Server, password string) ConnectionInfo {
	return ConnectionInfo{Host: "127.0.0.1", Port: srv.Port(), Username: "admin", Password: password}
}

// readUntil 轮询直到输出包含 marker
func readUntil(t *testing.T, sh *Shell, marker string) string {
	t.Helper()
	var sb strings.Builder
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		chunk, err := sh.ReceiveIfReady(1024)
		require.NoError(t, err)
		sb.Write(chunk)
		if strings.Contains(sb.String(), marker) {
			return sb.String()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q, got %q", marker, sb.String())
	return ""
}

func TestClientShellRoundTrip(t *testing.T) {
	srv := startDevice(t, simulate.DeviceConfig{
		Hostname: "HUAWEI-01",
		Banner:   "Info: The max number of VTY users is 5.",
		Commands: map[string]string{"display version": "Version 1.0"},
	})

	c := NewClient(Config{Timeout: 3 * time.Second})
	require.NoError(t, c.Connect(context.Background(), infoFor(srv, "nova")))
	defer c.Close()
	assert.True(t, c.IsConnected())

	sh, err := c.OpenShell()
	require.NoError(t, err)
	defer sh.Close()

	banner := readUntil(t, sh, "<HUAWEI-01>")
	assert.Contains(t, banner, "VTY users")

	require.NoError(t, sh.Send([]byte("display version\n")))
	out := readUntil(t, sh, "Version 1.0\r\n<HUAWEI-01>")
	assert.Contains(t, out, "display version")

	require.NoError(t, sh.Close())
	assert.Error(t, sh.Send([]byte("x")))
	assert.Equal(t, []string{"display version"}, srv.Received())
}

func TestConnectClassifiesErrors(t *testing.T) {
	srv := startDevice(t, simulate.DeviceConfig{})

	c := NewClient(Config{Timeout: 3 * time.Second})
	err := c.Connect(context.Background(), infoFor(srv, "wrong"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuth), "错误: %v", err)

	err = NewClient(Config{Timeout: time.Second}).Connect(context.Background(), ConnectionInfo{Host: "127.0.0.1", Port: srv.Port(), Username: "admin"})
	assert.ErrorIs(t, err, ErrAuth, "未提供凭据")

	// 监听后不握手的端口：握手超时
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port
	err = NewClient(Config{Timeout: 200 * time.Millisecond}).Connect(context.Background(), ConnectionInfo{Host: "127.0.0.1", Port: port, Username: "admin", Password: "nova"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectTimeout)

	// 已关闭的端口：连接被拒绝
	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := closed.Addr().(*net.TCPAddr).Port
	require.NoError(t, closed.Close())
	err = NewClient(Config{Timeout: time.Second}).Connect(context.Background(), ConnectionInfo{Host: "127.0.0.1", Port: closedPort, Username: "admin", Password: "nova"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestConnectWithKeyFile(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	keyFile := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(block), 0o600))

	srv := startDevice(t, simulate.DeviceConfig{AuthorizedKeys: []string{string(ssh.MarshalAuthorizedKey(sshPub))}})

	c := NewClient(Config{Timeout: 3 * time.Second})
	require.NoError(t, c.Connect(context.Background(), ConnectionInfo{Host: "127.0.0.1", Port: srv.Port(), Username: "admin", KeyFile: keyFile}))
	require.NoError(t, c.Close())

	err = NewClient(Config{}).Connect(context.Background(), ConnectionInfo{Host: "127.0.0.1", Port: srv.Port(), Username: "admin", KeyFile: keyFile + ".missing"})
	assert.ErrorIs(t, err, ErrAuth)
}

func TestShellReportsRemoteClose(t *testing.T) {
	srv := startDevice(t, simulate.DeviceConfig{DropOn: []string{"reset saved-configuration"}})

	c := NewClient(Config{Timeout: 3 * time.Second})
	require.NoError(t, c.Connect(context.Background(), infoFor(srv, "nova")))
	defer c.Close()
	sh, err := c.OpenShell()
	require.NoError(t, err)
	readUntil(t, sh, "<Device>")

	require.NoError(t, sh.Send([]byte("reset saved-configuration\n")))
	select {
	case <-sh.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("远端断开后会话应结束")
	}
	var recvErr error
	for i := 0; i < 10 && recvErr == nil; i++ {
		_, recvErr = sh.ReceiveIfReady(4096)
	}
	assert.ErrorIs(t, recvErr, ErrTransport)
}

func TestPoolAcquireRelease(t *testing.T) {
	srv := startDevice(t, simulate.DeviceConfig{})
	p := NewPool(PoolConfig{MaxActive: 1, SSH: Config{Timeout: 3 * time.Second}})
	defer p.Close()

	c, err := p.Acquire(context.Background(), infoFor(srv, "nova"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stats().Active)
	assert.NoError(t, p.Health())

	_, err = p.Acquire(context.Background(), infoFor(srv, "nova"), 0)
	assert.ErrorIs(t, err, ErrTransport, "超过上限")

	require.NoError(t, p.Release(c))
	_, err = p.Acquire(context.Background(), infoFor(srv, "bad"), 0)
	assert.ErrorIs(t, err, ErrAuth)

	stats := p.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, int64(1), stats.Opened)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestPoolLimitHoldsUnderConcurrentAcquire(t *testing.T) {
	srv := startDevice(t, simulate.DeviceConfig{})
	p := NewPool(PoolConfig{MaxActive: 2, SSH: Config{Timeout: 3 * time.Second}})
	defer p.Close()

	const callers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		full    int
		clients []*Client
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			c, err := p.Acquire(context.Background(), infoFor(srv, "nova"), 0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
				clients = append(clients, c)
			case errors.Is(err, ErrTransport):
				full++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 2, ok)
	assert.Equal(t, callers-2, full)
	stats := p.Stats()
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 0, stats.Connecting)
	for _, c := range clients {
		require.NoError(t, p.Release(c))
	}
}

func TestPoolFailedConnectFreesSlot(t *testing.T) {
	srv := startDevice(t, simulate.DeviceConfig{})
	p := NewPool(PoolConfig{MaxActive: 1, SSH: Config{Timeout: 3 * time.Second}})
	defer p.Close()

	_, err := p.Acquire(context.Background(), infoFor(srv, "bad"), 0)
	require.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, 0, p.Stats().Connecting)

	c, err := p.Acquire(context.Background(), infoFor(srv, "nova"), 0)
	require.NoError(t, err, "认证失败后名额应归还")
	require.NoError(t, p.Release(c))
}
