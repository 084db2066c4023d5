package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "techdigest",
		Short: "techdigest gathers, scores, and mails a personalized industry newsletter.",
		Long: `techdigest runs a three-stage newsletter pipeline:

  gather   Fetch every active feed and store new articles
  process  Score and summarize unscored articles with an LLM
  send     Mail each subscriber whose schedule is due today

Each stage can be run from the command line (for cron) or triggered over
HTTP with 'techdigest serve'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.techdigest.yaml)")

	rootCmd.AddCommand(NewGatherCmd())
	rootCmd.AddCommand(NewProcessCmd())
	rootCmd.AddCommand(NewSendCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewSeedCmd())
	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewStatusCmd())

	return rootCmd
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
