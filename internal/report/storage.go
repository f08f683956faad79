package report

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sshcollectorpro/netbatch/internal/config"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

// StoredObject 存储的对象信息
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

// Writer 报告文件写入器
type Writer interface {
	Write(ctx context.Context, name string, data []byte, contentType string) (StoredObject, error)
}

// NewWriter 按 report.backend 创建写入器；minio 写入失败时回退本地
func NewWriter(cfg config.ReportConfig) Writer {
	local := &LocalWriter{Dir: cfg.Dir, Prefix: cfg.Prefix}
	if strings.ToLower(strings.TrimSpace(cfg.Backend)) != "minio" {
		return local
	}
	mw, err := NewMinioWriter(cfg.Minio, cfg.Prefix)
	if err != nil {
		logger.Warnf("MinIO writer unavailable, reports go to local dir: %v", err)
		return local
	}
	return &FallbackWriter{Primary: mw, Fallback: local}
}

// LocalWriter 本地文件写入
type LocalWriter struct {
	Dir    string
	Prefix string
}

func (w *LocalWriter) Write(ctx context.Context, name string, data []byte, contentType string) (StoredObject, error) {
	dir := strings.TrimSpace(w.Dir)
	if dir == "" {
		dir = "./reports"
	}
	if p := strings.TrimSpace(w.Prefix); p != "" {
		dir = filepath.Join(dir, p)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return StoredObject{}, fmt.Errorf("failed to create dir: %w", err)
	}
	fullPath := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}
	return storedObject("file://"+fullPath, data, contentType), nil
}

// MinioWriter MinIO 对象存储写入
type MinioWriter struct {
	client   *minio.Client
	endpoint string
	bucket   string
	prefix   string

	mu            sync.Mutex
	bucketEnsured bool
}

// NewMinioWriter 创建 MinIO 客户端；只校验配置，不做网络访问
func NewMinioWriter(cfg config.MinioConfig, prefix string) (*MinioWriter, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("minio host/port missing")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("minio bucket not configured")
	}
	endpoint := net.JoinHostPort(host, fmt.Sprint(cfg.Port))

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 5 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.Secure,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client initialization failed: %w", err)
	}
	return &MinioWriter{client: client, endpoint: endpoint, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (w *MinioWriter) Write(ctx context.Context, name string, data []byte, contentType string) (StoredObject, error) {
	// 写入前快速连通性探测
	d := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", w.endpoint)
	if err != nil {
		return StoredObject{}, fmt.Errorf("minio connectivity failed to %s: %w", w.endpoint, err)
	}
	_ = conn.Close()

	if err := w.ensureBucket(ctx); err != nil {
		return StoredObject{}, fmt.Errorf("minio ensure bucket failed: %w", err)
	}

	objectName := path.Base(name)
	if w.prefix != "" {
		objectName = path.Join(w.prefix, objectName)
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err = w.client.PutObject(ctx, w.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return StoredObject{}, fmt.Errorf("minio put object failed: %w", err)
	}
	return storedObject("minio://"+path.Join(w.bucket, objectName), data, contentType), nil
}

// ensureBucket 首次写入时检查并创建 bucket
func (w *MinioWriter) ensureBucket(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bucketEnsured {
		return nil
	}
	exists, err := w.client.BucketExists(ctx, w.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := w.client.MakeBucket(ctx, w.bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}
	w.bucketEnsured = true
	return nil
}

// FallbackWriter 先写 Primary，失败记录告警后写 Fallback
type FallbackWriter struct {
	Primary  Writer
	Fallback Writer
}

func (w *FallbackWriter) Write(ctx context.Context, name string, data []byte, contentType string) (StoredObject, error) {
	obj, err := w.Primary.Write(ctx, name, data, contentType)
	if err == nil {
		return obj, nil
	}
	logger.Warnf("report %s: primary storage failed, falling back to local: %v", name, err)
	obj, lerr := w.Fallback.Write(ctx, name, data, contentType)
	if lerr != nil {
		return StoredObject{}, fmt.Errorf("primary write failed: %v; fallback failed: %w", err, lerr)
	}
	return obj, nil
}

func storedObject(uri string, data []byte, contentType string) StoredObject {
	sum := sha256.Sum256(data)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return StoredObject{
		URI:         uri,
		Size:        int64(len(data)),
		Checksum:    "sha256:" + hex.EncodeToString(sum[:]),
		ContentType: contentType,
	}
}
