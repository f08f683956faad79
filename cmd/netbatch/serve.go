package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/netbatch/api/handler"
	"github.com/sshcollectorpro/netbatch/api/router"
	"github.com/sshcollectorpro/netbatch/internal/abort"
	"github.com/sshcollectorpro/netbatch/internal/config"
	"github.com/sshcollectorpro/netbatch/internal/database"
	"github.com/sshcollectorpro/netbatch/internal/report"
	"github.com/sshcollectorpro/netbatch/internal/service"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the batch HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	logger.Infof("Starting netbatch server %s", version)

	flag := abort.New()
	stopAbort := abort.Notify(flag)
	defer stopAbort()

	var recorder service.Recorder
	var runs handler.RunStore
	if cfg.Database.SQLite.Path != "" {
		store, err := database.OpenSQLite(cfg.Database.SQLite)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder, runs = store, store
	}

	svc := service.NewBatchService(cfg, flag, recorder, report.NewWriter(cfg.Report))
	defer svc.Close()

	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        router.SetupRouter(cfg.Server.Mode, svc, runs),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	if path := usedConfigFile(); path != "" {
		go watchConfig(path, svc)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server listening on %s (mode %s)", server.Addr, cfg.Server.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("Server shutting down...")
	// 进行中的批次看到中断标志后会尽快收尾
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return err
	}
	logger.Info("Server shutdown complete")
	return nil
}

// usedConfigFile 实际读取的配置文件路径，未读取文件时为空
func usedConfigFile() string {
	if configPath != "" {
		return configPath
	}
	if _, err := os.Stat(filepath.Join("configs", "config.yaml")); err == nil {
		return filepath.Join("configs", "config.yaml")
	}
	return ""
}

// watchConfig 监听配置文件变化，去抖后重新加载并应用到之后的批次
func watchConfig(path string, svc *service.BatchService) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("Config watch init failed: %v", err)
		return
	}
	defer watcher.Close()
	// 监听目录，编辑器以重命名方式保存时仍能收到事件
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warnf("Config watch add failed: %v", err)
		return
	}

	var debounce *time.Timer
	trigger := func() {
		newCfg, err := config.Load(path)
		if err != nil {
			logger.Warnf("Config reload failed, keeping previous config: %v", err)
			return
		}
		if logLevel != "" {
			newCfg.Log.Level = logLevel
		}
		_ = logger.Init(newCfg.Log)
		svc.SetConfig(newCfg)
		logger.Info("Config reloaded")
	}
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(300*time.Millisecond, trigger)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("Config watch error: %v", err)
		}
	}
}
