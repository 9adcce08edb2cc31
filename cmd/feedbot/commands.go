package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"FeedBot/internal/app"
	"FeedBot/internal/config"
	"FeedBot/internal/control"
	"FeedBot/internal/domain"
	"FeedBot/internal/logging"
)

var errSweepFailed = errors.New("sweep finished with failures")

type globalOptions struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "feedbot",
		Short:         "Watches RSS feeds and Luogu columns and posts new articles to chat channels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yml (default $FEEDBOT_CONFIG)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(opts),
		newSweepCommand(opts),
		newStateCommand(opts),
		newBruteCommand(),
	)
	return root
}

func (o *globalOptions) load() (config.Config, *slog.Logger) {
	cfg := config.Load(o.configPath)
	if o.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format)
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled sweeps and the control API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger := opts.load()
			application, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Run(cmd.Context())
		},
	}
}

func newSweepCommand(opts *globalOptions) *cobra.Command {
	var channels []string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep now and print a per-source report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger := opts.load()
			application, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			ln, err := application.Claim()
			if err != nil {
				return fmt.Errorf("%w (use `feedbot brute` to sweep through the running instance)", err)
			}
			defer ln.Close()

			report, err := application.SweepOnce(cmd.Context(), channels...)
			if err != nil {
				return err
			}
			renderReport(cmd.OutOrStdout(), report)
			if !report.OK() {
				return errSweepFailed
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "channel id to sweep (repeatable, default all)")
	return cmd
}

func newStateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print seen-state counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger := opts.load()
			application, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			urls, checkpoints := application.StateStats()
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Backend", "Seen links", "Checkpoints"})
			t.AppendRow(table.Row{cfg.State.Backend, urls, checkpoints})
			t.Render()
			return nil
		},
	}
}

func newBruteCommand() *cobra.Command {
	var (
		addr      string
		channelID string
		userID    int64
	)

	cmd := &cobra.Command{
		Use:   "brute",
		Short: "Ask a running instance to sweep one channel now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := control.NewClient(addr, nil).Sweep(cmd.Context(), channelID, userID)
			if resp.SweepID != "" {
				renderResponse(cmd.OutOrStdout(), resp)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8088", "control API address")
	cmd.Flags().StringVar(&channelID, "channel", "", "channel id")
	cmd.Flags().Int64Var(&userID, "user", 0, "user id checked against brute_admin")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func renderReport(w io.Writer, report domain.SweepReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("sweep %s (%s)", report.ID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)))
	t.AppendHeader(table.Row{"Channel", "Kind", "Target", "Author", "Articles", "Error"})

	for _, ch := range report.Channels {
		for _, src := range ch.Sources {
			errText := ""
			if src.Err != nil {
				errText = src.Err.Error()
			}
			t.AppendRow(table.Row{ch.ChannelID, src.Kind, src.Target, src.Author, len(src.Articles), errText})
		}
		if ch.PersistErr != nil {
			t.AppendRow(table.Row{ch.ChannelID, "", "(persist)", "", "", ch.PersistErr.Error()})
		}
		if ch.NotifyErr != nil {
			t.AppendRow(table.Row{ch.ChannelID, "", "(notify)", "", "", ch.NotifyErr.Error()})
		}
	}
	t.Render()
}

func renderResponse(w io.Writer, resp control.SweepResponse) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("sweep " + resp.SweepID)
	t.AppendHeader(table.Row{"Kind", "Target", "Author", "Articles", "Error"})
	for _, src := range resp.Sources {
		t.AppendRow(table.Row{src.Kind, src.Target, src.Author, src.Articles, src.Error})
	}
	if resp.PersistError != "" {
		t.AppendRow(table.Row{"", "(persist)", "", "", resp.PersistError})
	}
	if resp.NotifyError != "" {
		t.AppendRow(table.Row{"", "(notify)", "", "", resp.NotifyError})
	}
	t.Render()
}
