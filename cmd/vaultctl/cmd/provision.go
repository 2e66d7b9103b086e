package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultcore/vaultcore/internal/provision"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create users, accounts and opening balances from a YAML plan",
	Long: `Apply a provisioning plan. Anything the plan names that already exists is left as is,
so the same plan can be applied repeatedly.

Example:
  vaultctl provision -f configs/seed.yaml`,
	Args: cobra.NoArgs,
	RunE: runProvision,
}

var (
	provisionFile     string
	provisionValidate bool
)

func init() {
	rootCmd.AddCommand(provisionCmd)
	provisionCmd.Flags().StringVarP(&provisionFile, "file", "f", "", "path to plan file (required)")
	provisionCmd.Flags().BoolVar(&provisionValidate, "validate", false, "only check the plan, do not apply it")
	provisionCmd.MarkFlagRequired("file")
}

func runProvision(cmd *cobra.Command, args []string) error {
	plan, err := provision.LoadFile(provisionFile)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if provisionValidate {
		fmt.Fprintf(out, "✓ Plan valid: %d users, %d accounts, %d postings\n", len(plan.Users), len(plan.Accounts), len(plan.Postings))
		return nil
	}

	ctx := cmd.Context()
	e, err := connect(ctx, true, false)
	if err != nil {
		return err
	}
	defer e.close()
	services, err := e.services()
	if err != nil {
		return err
	}

	report, err := services.Provisioner.Apply(ctx, plan)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
