package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"als-trading-bot/internal/eod"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "als-bot",
		Short:        "Asian-range liquidity sweep trading bot",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "configuration file path")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the trading loop",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBot(cmd.Context(), configPath)
			},
		},
		newEodCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println("als-bot", version)
			},
		},
	)
	return root
}

func newEodCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "eod",
		Short: "Write the end-of-day CSV summary for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now().UTC()
			if date != "" {
				var err error
				day, err = time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("parse date %q: %w", date, err)
				}
			}
			path, err := eod.SummarizeDay(day)
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Println("no trades for", day.Format("2006-01-02"))
				return nil
			}
			fmt.Println("EOD CSV written:", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "UTC date in YYYY-MM-DD format (today if not provided)")
	return cmd
}
