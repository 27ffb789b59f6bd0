// Package cmd defines and implements the CLI commands for the dircrawl executable.
package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand, which starts a fresh crawl or
// resumes from the saved checkpoint.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Starts or resumes the directory crawl",
		Long: `Walks every configured region from the saved checkpoint. SIGINT or
SIGTERM flushes pending records, saves the checkpoint and exits cleanly.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = appInstance.Crawl(ctx)
	switch {
	case err == nil:
		logger.Info("Crawl command finished.")
		return nil
	case errors.Is(err, crawler.ErrInterrupted) && !errors.Is(err, crawler.ErrPersistence):
		logger.Info("Crawl interrupted; progress saved.")
		fmt.Fprintln(cmd.OutOrStdout(), "interrupted: progress saved, rerun crawl to resume")
		return nil
	default:
		logger.Error("Crawl command failed.", zap.Error(err))
		return err
	}
}
