package caresuitecli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/phillip-england/caresuite/internal/envutil"
	"github.com/spf13/cobra"
)

var ErrUsage = errors.New("usage")

type App struct {
	EnvFile string
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:           "caresuite",
		Short:         "Attendance review for care staff: API, web client and terminal editor",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Write a .env with the first admin account
  caresuite setup --admin-password 'a long passphrase'

  # Serve the API and the web client
  caresuite run all

  # Edit a day's times in the terminal
  caresuite attendance edit --date 2024-01-10
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return usageError()
		},
	}

	cmd.PersistentFlags().StringVar(&app.EnvFile, "env-file", ".env", "path to .env file")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "setup" {
			return nil
		}
		if err := envutil.LoadDotEnv(app.EnvFile); err != nil {
			return fmt.Errorf("load %s: %w", app.EnvFile, err)
		}
		return nil
	}

	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newRunCmd(app))
	cmd.AddCommand(newAttendanceCmd(app))
	return cmd
}

func Execute(args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: caresuite setup --admin-password <password> [--admin-username admin] [--force]")
	fmt.Fprintln(w, "       caresuite run api|client|all")
	fmt.Fprintln(w, "       caresuite attendance edit [--date YYYY-MM-DD] [--status pending|approved]")
	fmt.Fprintln(w, "       caresuite attendance export [--date YYYY-MM-DD] [--out file.xlsx]")
	fmt.Fprintln(w, "       caresuite attendance import FILE")
}

func usageError() error {
	return fmt.Errorf("%w: caresuite <setup|run|attendance> [...]", ErrUsage)
}

func exactArgs(n int, want string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s %s", ErrUsage, cmd.CommandPath(), want)
		}
		return nil
	}
}
