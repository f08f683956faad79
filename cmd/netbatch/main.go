package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/netbatch/api/router"
	"github.com/sshcollectorpro/netbatch/internal/config"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

var (
	// 构建时通过 -ldflags 注入
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	configPath string
	logLevel   string
)

// exitError 携带进程退出码
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "netbatch",
	Short: "Run read-only commands on many network devices over interactive SSH",
	Long: `netbatch logs into switches and routers over SSH, runs an ordered list of
commands on each device's interactive shell (handling prompts and "More" pagination),
and writes a CSV summary plus a JSON report.

Examples:
  # run commands.txt on every device in inventory.csv
  netbatch run -i inventory.csv -c commands.txt

  # start the HTTP API
  netbatch serve --config configs/config.yaml

  # start simulated devices for a local trial
  netbatch simulate -f configs/simulate.yaml`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd(), newServeCmd(), newSimulateCmd(), &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("netbatch %s\n", version)
			fmt.Printf("Commit: %s\n", commit)
			fmt.Printf("Built: %s\n", buildTime)
		},
	})
	router.Version = version
}

// loadConfig 读取配置并初始化日志
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
