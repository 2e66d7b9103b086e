package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultcore/vaultcore/internal/auth"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Administer login sessions",
}

var sessionRevokeCmd = &cobra.Command{
	Use:   "revoke <session-id>",
	Short: "Revoke a session family",
	Long:  `Revoke every access and refresh token issued for the session.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionRevoke,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionRevokeCmd)
}

func runSessionRevoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := connect(ctx, false, true)
	if err != nil {
		return err
	}
	defer e.close()
	sessions, err := auth.NewService(auth.Options{
		Secret:     e.cfg.JWTSecret,
		AccessTTL:  e.cfg.AccessTokenTTL,
		RefreshTTL: e.cfg.RefreshTokenTTL,
	}, auth.NewRedisStore(e.cache), nil, nil, e.logger)
	if err != nil {
		return err
	}

	if err := sessions.Revoke(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Session %s revoked\n", args[0])
	return nil
}
