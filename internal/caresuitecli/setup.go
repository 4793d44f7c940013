package caresuitecli

import (
	"errors"
	"fmt"

	"github.com/phillip-england/caresuite/internal/envutil"
	"github.com/phillip-england/caresuite/internal/security"
	"github.com/spf13/cobra"
)

func newSetupCmd(app *App) *cobra.Command {
	var (
		adminUser string
		adminPass string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a .env with the initial admin account",
		Args:  exactArgs(0, ""),
		RunE: func(cmd *cobra.Command, args []string) error {
			if adminPass == "" {
				return errors.New("--admin-password is required")
			}
			if _, err := security.HashPassword(adminPass); err != nil {
				return fmt.Errorf("invalid admin password: %w", err)
			}

			values := map[string]string{
				"ADMIN_USERNAME":    adminUser,
				"ADMIN_PASSWORD":    adminPass,
				"CARESUITE_DB_PATH": "data/caresuite.db",
				"API_ADDR":          ":8080",
				"CLIENT_ADDR":       ":3000",
				"API_BASE_URL":      "http://localhost:8080",
				"SESSION_TTL":       "12h",
			}
			if err := envutil.WriteDotEnv(app.EnvFile, values, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", app.EnvFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&adminUser, "admin-username", "admin", "initial admin username")
	cmd.Flags().StringVar(&adminPass, "admin-password", "", "initial admin password (min 12 chars)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing env file")
	return cmd
}
