package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/netbatch/pkg/logger"
	"github.com/sshcollectorpro/netbatch/simulate"
)

func newSimulateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Start simulated SSH network devices for local trials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			sc, err := simulate.LoadConfig(file)
			if err != nil {
				return err
			}
			mgr, err := simulate.Start(sc)
			if err != nil {
				return fmt.Errorf("start simulated devices: %w", err)
			}
			defer mgr.Stop()

			out := cmd.OutOrStdout()
			for _, srv := range mgr.Servers() {
				fmt.Fprintf(out, "%-16s listening on %s\n", srv.Hostname(), srv.Addr())
			}
			logger.Infof("Simulate: %d devices started, press Ctrl+C to stop", len(mgr.Servers()))

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			logger.Info("Simulate: stopping")
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "configs/simulate.yaml", "simulated devices file")
	return cmd
}
