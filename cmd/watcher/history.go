package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/maine/timeline_watch/internal/archive"
	"github.com/maine/timeline_watch/internal/config"
)

type historyOptions struct {
	*rootOptions
	Limit int
}

type historyItem struct {
	PostID     string    `json:"post_id"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	URL        string    `json:"url"`
	NotifiedAt time.Time `json:"notified_at"`
}

func newHistoryCommand(root *rootOptions) *cobra.Command {
	opts := &historyOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently notified posts from the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func runHistory(cmd *cobra.Command, opts *historyOptions) error {
	cfg, err := config.LoadRoot(opts.ConfigPath)
	if err != nil {
		return err
	}
	if cfg.Archive.Path == "" {
		return fmt.Errorf("%w: archive.path is not set", config.ErrInvalid)
	}

	store, err := archive.Open(cfg.Archive.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(cmd.Context(), opts.Limit)
	if err != nil {
		return err
	}
	return printHistory(cmd.OutOrStdout(), opts.Format, entries)
}

func printHistory(out io.Writer, format string, entries []archive.Entry) error {
	if format == "json" {
		items := make([]historyItem, 0, len(entries))
		for _, e := range entries {
			items = append(items, historyItem{
				PostID:     e.Post.ID,
				Author:     e.Post.Author,
				Text:       e.Post.Text,
				URL:        e.URL,
				NotifiedAt: e.NotifiedAt,
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "no notifications yet")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  @%-15s %s\n", e.NotifiedAt.Local().Format("2006-01-02 15:04:05"), e.Post.Author, e.URL)
		fmt.Fprintf(out, "    %s\n", oneLine(e.Post.Text, 100))
	}
	return nil
}

func oneLine(s string, limit int) string {
	runes := []rune(s)
	for i, r := range runes {
		if r == '\n' || r == '\r' || r == '\t' {
			runes[i] = ' '
		}
	}
	if len(runes) > limit {
		return string(runes[:limit-3]) + "..."
	}
	return string(runes)
}
