package cmd

import (
	"context"
	"time"

	"sync-bridge/core/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	pruneOlderThanDays int
	pruneArchive       bool
)

// pruneCmd applies the run-history retention policy.
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune old run history (optionally archiving it to object storage)",
	Long: `Prune deletes run history rows older than the retention window. With
--archive the rows are first written to the configured bucket as a JSONL
object, so the history survives the retention window. Mappings and cursors
are never pruned.`,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneOlderThanDays, "older-than", 0, "Retention window in days (defaults to engine.retention_days)")
	pruneCmd.Flags().BoolVar(&pruneArchive, "archive", false, "Archive pruned rows to object storage before deleting (defaults to storage.enabled)")

	RootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	l := rt.logger
	defer l.Sync()

	if !cmd.Flags().Changed("archive") {
		pruneArchive = rt.cfg.Storage.Enabled
	}

	days := pruneOlderThanDays
	if days <= 0 {
		days = rt.cfg.Engine.RetentionDays
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	ctx := context.Background()

	var archive storage.Client
	if pruneArchive {
		client, err := storage.NewClient(rt.cfg.Storage)
		if err != nil {
			return err
		}
		if err := storage.EnsureBucket(ctx, client, rt.cfg.Storage.Bucket, rt.cfg.Storage.Region); err != nil {
			return err
		}
		archive = client
	}

	removed, err := rt.runs.PruneBefore(ctx, cutoff, archive, rt.cfg.Storage.Bucket)
	if err != nil {
		return err
	}

	l.Info("Run history pruned",
		zap.Int64("removed", removed),
		zap.Time("cutoff", cutoff),
		zap.Bool("archived", pruneArchive),
	)
	return nil
}
