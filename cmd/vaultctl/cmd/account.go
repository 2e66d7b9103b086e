package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultcore/vaultcore/internal/account"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Administer accounts",
}

var accountStatusCmd = &cobra.Command{
	Use:   "status <account-id> <ACTIVE|SUSPENDED|CLOSED>",
	Short: "Change an account's status",
	Long: `Change an account's administrative status. CLOSED is terminal, and the change is
refused while a posting holds the account.`,
	Args: cobra.ExactArgs(2),
	RunE: runAccountStatus,
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountStatusCmd)
}

func runAccountStatus(cmd *cobra.Command, args []string) error {
	next, err := account.ParseStatus(args[1])
	if err != nil {
		return err
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

	a, err := services.Accounts.SetStatus(ctx, args[0], next)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is now %s\n", a.Number, a.Status)
	return nil
}
