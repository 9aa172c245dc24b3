package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/async"
	"github.com/openclaw/openclaw-memory/internal/memory"
	"github.com/openclaw/openclaw-memory/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the search indices from the Markdown corpus",
		Long: `Reconcile the vector and full-text indices of every open scope
against the Markdown files on disk. The server does this on startup and
on file changes; the command exists for recovery and for switching
embedding providers. --force drops the indices first and re-embeds
everything.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Drop indices and re-embed from scratch")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, force bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := memory.New(cfg)
	defer func() { _ = svc.Close() }()

	renderer := ui.NewProgressRenderer(cmd.OutOrStdout())
	start := time.Now()

	runner := async.NewBackgroundIndexer(func(ctx context.Context, progress *async.IndexProgress) error {
		return svc.Reindex(ctx, progress, force)
	})
	runner.Start(ctx)
	progress := runner.Progress()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for runner.IsRunning() {
		<-ticker.C
		renderer.Render(progress.Snapshot())
	}

	if err := runner.Wait(); err != nil {
		renderer.Render(progress.Snapshot())
		return err
	}

	files, chunks := 0, 0
	if stats, err := svc.Stats(ctx); err == nil {
		for _, s := range stats {
			files += s.Stats.TotalFiles
			chunks += s.Stats.TotalChunks
		}
	}
	renderer.Done(files, chunks, time.Since(start))
	return nil
}
