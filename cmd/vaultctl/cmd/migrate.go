package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultcore/vaultcore/internal/infra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  `Create or update tables, indexes and the append-only trigger. Safe to run repeatedly.`,
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := connect(ctx, true, false)
	if err != nil {
		return err
	}
	defer e.close()

	if err := infra.Migrate(ctx, e.db); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Schema applied")
	return nil
}
