package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/maine/timeline_watch/internal/config"
	"github.com/maine/timeline_watch/internal/filter"
)

type checkOptions struct {
	*rootOptions
	SkipEnv bool
}

// checkReport - итог проверки конфигурации.
type checkReport struct {
	ListID          string   `json:"list_id"`
	PollInterval    string   `json:"poll_interval"`
	BatchSize       int      `json:"batch_size"`
	ExcludeRetweets bool     `json:"exclude_retweets"`
	Queries         []string `json:"queries"`
	ExcludedUsers   []string `json:"excluded_users"`
	Sinks           []string `json:"sinks"`
}

func newCheckCommand(root *rootOptions) *cobra.Command {
	opts := &checkOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and print the normalized queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.SkipEnv, "skip-env", false, "do not require credentials in the environment")
	return cmd
}

func runCheck(out io.Writer, opts *checkOptions) error {
	cfg, err := config.LoadRoot(opts.ConfigPath)
	if err != nil {
		return err
	}
	if !opts.SkipEnv {
		if _, err := config.LoadEnvConfig(cfg); err != nil {
			return err
		}
	}

	f, err := filter.New(cfg.Policy)
	if err != nil {
		return err
	}

	report := checkReport{
		ListID:          cfg.Watcher.ListID,
		PollInterval:    cfg.Watcher.PollInterval.String(),
		BatchSize:       cfg.Watcher.BatchSize,
		ExcludeRetweets: cfg.Watcher.ExcludeRetweetsEnabled(),
		Queries:         f.Queries(),
		ExcludedUsers:   cfg.Policy.ExcludedUsers,
		Sinks:           enabledSinks(cfg),
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "config OK\n")
	fmt.Fprintf(out, "list:             %s\n", report.ListID)
	fmt.Fprintf(out, "poll interval:    %s\n", report.PollInterval)
	fmt.Fprintf(out, "batch size:       %d\n", report.BatchSize)
	fmt.Fprintf(out, "exclude retweets: %t\n", report.ExcludeRetweets)
	fmt.Fprintf(out, "queries:          %v\n", report.Queries)
	fmt.Fprintf(out, "excluded users:   %v\n", report.ExcludedUsers)
	fmt.Fprintf(out, "sinks:            %v\n", report.Sinks)
	return nil
}

func enabledSinks(cfg config.Root) []string {
	var sinks []string
	if cfg.Archive.Path != "" {
		sinks = append(sinks, "archive")
	}
	if cfg.Telegram.Enabled {
		if cfg.Gemini.Enabled {
			sinks = append(sinks, "telegram+gemini")
		} else {
			sinks = append(sinks, "telegram")
		}
	}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, "webhook")
	}
	return sinks
}
