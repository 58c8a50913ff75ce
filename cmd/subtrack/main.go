package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "subtrack",
		Short: "Track subreddit posts and snapshot score/comments daily",
		Long: `subtrack records new posts from one subreddit into a tabular store and
revisits each post once per day for a fixed window, snapshotting its score
and comment count. Run "poll" from cron every few minutes and "daily" once
per day.`,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	root.AddCommand(initSheetCmd())
	root.AddCommand(pollCmd())
	root.AddCommand(dailyCmd())

	return root
}

func initSheetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-sheet",
		Short: "Ensure the tracking table exists with the expected header",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitSheet()
		},
	}
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Discover new posts and start tracking them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll()
		},
	}
}

func dailyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Fill today's observation slot for every tracked post",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaily()
		},
	}
}
