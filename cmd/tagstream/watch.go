package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qepting91/tagstream/internal/config"
	"github.com/qepting91/tagstream/internal/coordinator"
	"github.com/qepting91/tagstream/internal/notify"
	"github.com/qepting91/tagstream/internal/stream"
	"github.com/qepting91/tagstream/internal/viewer"
)

func watchCmd() *cobra.Command {
	var (
		url           string
		notifications bool
		backfill      int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a feed server from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.OutOrStdout(), url, notifications, backfill)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "stream URL (defaults to STREAM_URL)")
	cmd.Flags().BoolVar(&notifications, "notifications", false, "show the notification overlay instead of the feed")
	cmd.Flags().IntVar(&backfill, "backfill", coordinator.DefaultBackfill, "posts to fetch before streaming, 0 to skip")
	return cmd
}

func runWatch(out io.Writer, url string, notifications bool, backfill int) error {
	cfg, err := config.LoadViewer()
	if err != nil {
		return err
	}
	// Logs go to stderr so the feed stays readable.
	logger := newLogger(os.Stderr, cfg.Level())
	if url == "" {
		url = cfg.StreamURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notes := notify.New(cfg.NotifyMaxVisible, cfg.NotifyDismissAfter, func(visible, queued []notify.Item) {
		ids := make([]string, 0, len(visible))
		for _, it := range visible {
			ids = append(ids, it.Post.ID)
		}
		fmt.Fprintf(out, "[overlay] showing %s, %d queued\n", strings.Join(ids, " "), len(queued))
	}, logger)

	v := viewer.New(viewer.NewFeed(0), notes, func(e viewer.Event) { render(out, e, notifications) }, logger)
	if notifications {
		v.SetMode(viewer.ModeNotifications)
	}

	if backfill > 0 {
		base, err := viewer.APIBaseFromStream(url)
		if err != nil {
			return err
		}
		fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		posts, err := viewer.NewBackfillClient(base).Fetch(fetchCtx, backfill)
		cancel()
		if err != nil {
			logger.Warn("backfill failed", "err", err)
		} else {
			v.Backfill(posts)
			for i := len(posts) - 1; i >= 0; i-- {
				fmt.Fprintf(out, "[backfill] @%s: %s\n", posts[i].Author.Username, oneLine(posts[i].Text))
			}
		}
	}

	consumer := stream.New(url, stream.WSDialer{}, v, stream.DefaultBackoff, logger)
	consumer.Start()
	<-ctx.Done()
	consumer.Close()
	notes.Clear()
	return nil
}

func render(out io.Writer, e viewer.Event, notifications bool) {
	switch e.Kind {
	case viewer.EventState:
		if e.State == stream.Disconnected && e.Attempts > 0 {
			fmt.Fprintf(out, "[status] disconnected, reconnect attempt %d\n", e.Attempts)
			return
		}
		fmt.Fprintf(out, "[status] %s\n", e.State)
	case viewer.EventConnection:
		fmt.Fprintf(out, "[server] polling %s, %d viewers\n", e.Status, e.Viewers)
	case viewer.EventSettings:
		fmt.Fprintf(out, "[settings] %s every %ds\n", strings.Join(e.Settings.Hashtags, " "), e.Settings.CadenceSeconds)
	case viewer.EventPost:
		if !notifications {
			fmt.Fprintf(out, "@%s: %s\n", e.Post.Author.Username, oneLine(e.Post.Text))
		}
	case viewer.EventError:
		fmt.Fprintf(out, "[error] %s\n", e.Message)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
