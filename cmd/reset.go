package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var yesConfirmReset bool

// resetCmd clears the sync cursor and mappings to force a full resync.
var resetCmd = &cobra.Command{
	Use:   "reset [source]",
	Short: "Clear sync state to force a clean full resync",
	Long: `Reset deletes the sync cursor and, transactionally, every mapping for the
given source. The next run then refetches the full window and recreates the
mappings from scratch. With no source argument, ALL sources are reset.

This is a recovery tool for detected drift; it does not touch destination
records.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&yesConfirmReset, "yes", false, "Auto-confirm destructive actions (non-interactive)")
	RootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
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

	scope := source
	if scope == "" {
		scope = "ALL sources"
	}

	if !confirmDestructiveAction(fmt.Sprintf("reset sync state for %s", scope)) {
		l.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	if err := rt.cursors.Reset(context.Background(), source); err != nil {
		return err
	}

	l.Info("Sync state reset", zap.String("scope", scope))
	return nil
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction(action string) bool {
	if yesConfirmReset {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Printf("\n⚠️  Type 'yes' to %s: ", action)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	return strings.TrimSpace(response) == "yes"
}
