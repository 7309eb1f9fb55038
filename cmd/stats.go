package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// statsCmd prints the per-source cursor state and mapping counts.
var statsCmd = &cobra.Command{
	Use:   "stats [source]",
	Short: "Show sync cursors and mapping counts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStats,
}

func init() {
	RootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	source := ""
	if len(args) == 1 {
		source = args[0]
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	l := rt.logger
	defer l.Sync()

	ctx := context.Background()

	cursors, err := rt.cursors.Stats(ctx, source)
	if err != nil {
		return err
	}
	if len(cursors) == 0 {
		l.Info("No sync state recorded yet", zap.String("source", source))
		return nil
	}

	for _, cur := range cursors {
		fields := []zap.Field{
			zap.String("source", cur.SourceName),
			zap.Int64("total_synced", cur.TotalSynced),
			zap.Int64("total_errors", cur.TotalErrors),
			zap.Bool("has_resume_token", cur.ResumeToken != ""),
		}
		if cur.LastSuccessAt != nil {
			fields = append(fields, zap.Time("last_success_at", *cur.LastSuccessAt))
		}
		if cur.LastError != "" {
			fields = append(fields, zap.String("last_error", cur.LastError))
		}
		l.Info("Cursor", fields...)
	}

	total, err := rt.mappings.Count(ctx, "")
	if err != nil {
		return err
	}
	l.Info("Mappings", zap.Int64("total", total))

	return nil
}
