package caresuitecli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/phillip-england/caresuite/internal/apiclient"
	"github.com/phillip-england/caresuite/internal/attendance"
	"github.com/phillip-england/caresuite/internal/envutil"
	"github.com/phillip-england/caresuite/internal/tui"
	"github.com/spf13/cobra"
)

func newAttendanceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Edit, export and import attendance through the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("%w: caresuite attendance <edit|export|import>", ErrUsage)
		},
	}
	cmd.AddCommand(newAttendanceEditCmd())
	cmd.AddCommand(newAttendanceExportCmd())
	cmd.AddCommand(newAttendanceImportCmd())
	return cmd
}

func newAttendanceEditCmd() *cobra.Command {
	var filter attendance.Filter
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Review and correct clock times in the terminal",
		Args:  exactArgs(0, "[--date YYYY-MM-DD] [--status pending|approved]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := completeFilter(&filter); err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, err := signIn(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = client.Logout(context.Background()) }()

			editor := attendance.NewEditor(client, filter)
			if err := tui.Run(ctx, editor); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if dirty := editor.DirtyIDs(); len(dirty) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "discarded unsaved edits on %d record(s)\n", len(dirty))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Date, "date", "", "shift date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&filter.Status, "status", "", "pending or approved")
	return cmd
}

func newAttendanceExportCmd() *cobra.Command {
	var (
		filter attendance.Filter
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download a day's attendance as an .xlsx workbook",
		Args:  exactArgs(0, "[--date YYYY-MM-DD] [--out file.xlsx]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := completeFilter(&filter); err != nil {
				return err
			}
			client, err := signIn(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = client.Logout(context.Background()) }()

			data, name, err := client.ExportAttendance(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("export attendance: %w", err)
			}
			if out == "" {
				out = name
			}
			if err := ensureParentDirs(out); err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Date, "date", "", "shift date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&filter.Status, "status", "", "pending or approved")
	cmd.Flags().StringVar(&out, "out", "", "output path (default the server's file name)")
	return cmd
}

func newAttendanceImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Upload shifts from an .xlsx or .xls spreadsheet",
		Args:  exactArgs(1, "FILE"),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			client, err := signIn(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = client.Logout(context.Background()) }()

			result, err := client.ImportAttendance(cmd.Context(), filepath.Base(path), f)
			if err != nil {
				return fmt.Errorf("import attendance: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "imported %d shift(s)\n", result.Imported)
			for _, skip := range result.Skipped {
				fmt.Fprintf(w, "skipped row %d: %s\n", skip.Row, skip.Reason)
			}
			return nil
		},
	}
}

// signIn logs in with the admin account from the environment.
func signIn(ctx context.Context) (*apiclient.Client, error) {
	username := envutil.String("ADMIN_USERNAME", "admin")
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		return nil, errors.New("ADMIN_PASSWORD is not set; run caresuite setup or export it")
	}
	client := apiclient.New(envutil.String("API_BASE_URL", "http://localhost:8080"))
	if err := client.Login(ctx, username, password); err != nil {
		return nil, fmt.Errorf("sign in as %s: %w", username, err)
	}
	return client, nil
}

func completeFilter(filter *attendance.Filter) error {
	filter.Date = strings.TrimSpace(filter.Date)
	filter.Status = strings.TrimSpace(filter.Status)
	if filter.Date == "" {
		filter.Date = time.Now().Format(attendance.DateLayout)
	}
	if _, err := time.Parse(attendance.DateLayout, filter.Date); err != nil {
		return fmt.Errorf("%w: --date must use YYYY-MM-DD", ErrUsage)
	}
	switch filter.Status {
	case "", attendance.StatusPending, attendance.StatusApproved:
		return nil
	default:
		return fmt.Errorf("%w: --status must be pending or approved", ErrUsage)
	}
}
