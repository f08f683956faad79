package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/netbatch/internal/abort"
	"github.com/sshcollectorpro/netbatch/internal/config"
	"github.com/sshcollectorpro/netbatch/internal/database"
	"github.com/sshcollectorpro/netbatch/internal/inventory"
	"github.com/sshcollectorpro/netbatch/internal/model"
	"github.com/sshcollectorpro/netbatch/internal/report"
	"github.com/sshcollectorpro/netbatch/internal/service"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

type runOptions struct {
	inventoryFile string
	commandsFile  string
	commands      []string
	concurrency   int
	readOnly      bool
	noReport      bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run commands on every device of an inventory",
		Example: `  netbatch run -i inventory.csv -c commands.txt
  netbatch run -i devices.yaml --command "display version" --command "display clock"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Execution.MaxConcurrency = opts.concurrency
			}
			if cmd.Flags().Changed("readonly") {
				cfg.Execution.ReadonlyMode = opts.readOnly
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runBatch(cmd, cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.inventoryFile, "inventory", "i", "inventory.csv", "device inventory (.csv, .yaml, .json)")
	cmd.Flags().StringVarP(&opts.commandsFile, "commands", "c", "", "command file, one command per line")
	cmd.Flags().StringArrayVar(&opts.commands, "command", nil, "command to run (repeatable, appended after --commands)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "override execution.max_concurrency")
	cmd.Flags().BoolVar(&opts.readOnly, "readonly", true, "override execution.readonly_mode")
	cmd.Flags().BoolVar(&opts.noReport, "no-report", false, "skip writing CSV/JSON report files")
	return cmd
}

func runBatch(cmd *cobra.Command, cfg *config.Config, opts *runOptions) error {
	inv, err := inventory.Load(opts.inventoryFile)
	if err != nil {
		return err
	}
	var commands []string
	if opts.commandsFile != "" {
		if commands, err = inventory.LoadCommands(opts.commandsFile); err != nil {
			return err
		}
	}
	for _, c := range opts.commands {
		if c = strings.TrimSpace(c); c != "" {
			commands = append(commands, c)
		}
	}
	if len(commands) == 0 {
		return fmt.Errorf("no commands given, use --commands or --command")
	}

	flag := abort.New()
	stop := abort.Notify(flag)
	defer stop()

	var recorder service.Recorder
	if cfg.Database.SQLite.Path != "" {
		store, err := database.OpenSQLite(cfg.Database.SQLite)
		if err != nil {
			logger.Warnf("run history disabled: %v", err)
		} else {
			defer store.Close()
			recorder = store
		}
	}
	var writer report.Writer
	if !opts.noReport {
		writer = report.NewWriter(cfg.Report)
	}

	svc := service.NewBatchService(cfg, flag, recorder, writer)
	defer svc.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "running %d commands on %d devices (concurrency %d, readonly %v)\n",
		len(commands), len(inv.Devices), cfg.Execution.MaxConcurrency, cfg.Execution.ReadonlyMode)

	result, err := svc.Execute(cmd.Context(), inv.Devices, commands, func(done, total int, res model.DeviceResult) {
		status := "success"
		if !res.Success {
			status = "failed: " + res.Error
		}
		fmt.Fprintf(out, "[%d/%d] %s %s\n", done, total, res.Host, status)
	})
	if result == nil {
		return err
	}

	fmt.Fprintln(out)
	report.WriteSummary(out, result.Report)
	if result.Files != nil {
		fmt.Fprintf(out, "report: %s\ndetails: %s\n", result.Files.CSV.URI, result.Files.JSON.URI)
	}
	if len(inv.Recipients) > 0 {
		fmt.Fprintf(out, "recipients listed in inventory: %s\n", strings.Join(inv.Recipients, ", "))
	}
	if err != nil {
		return err
	}

	switch {
	case result.Report.Interrupted:
		return &exitError{code: 130, msg: "run interrupted"}
	case result.Report.Failed > 0:
		return &exitError{code: 2, msg: fmt.Sprintf("%d devices failed", result.Report.Failed)}
	}
	return nil
}

