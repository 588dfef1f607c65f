package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// jsonLogs is shared between the root command's RunE and attach's RunE
// so both go through NewKernel identically.
var jsonLogs bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "eonix",
		Short: "eonix boots the kernel core and waits for a shutdown signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKernel(cmd.Context())
		},
	}

	root.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of text")

	root.AddCommand(newAttachCmd())

	return root
}

// runKernel boots the kernel and blocks until SIGINT/SIGTERM, the same
// boot-then-wait shape lxd/daemon.go's cmdDaemon uses around
// d.Init()/d.Stop(), minus everything this kernel has no equivalent of.
func runKernel(ctx context.Context) error {
	k, err := NewKernel(jsonLogs)
	if err != nil {
		return err
	}

	if err := k.Init(ctx); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()

	return k.Stop(context.Background())
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
