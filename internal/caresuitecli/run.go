package caresuitecli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/phillip-england/caresuite/internal/apiapp"
	"github.com/phillip-england/caresuite/internal/clientapp"
	"github.com/spf13/cobra"
)

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "run api|client|all",
		Short:     "Serve the API, the web client, or both",
		Args:      exactArgs(1, "api|client|all"),
		ValidArgs: []string{"api", "client", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			switch args[0] {
			case "api":
				return runAPI(ctx)
			case "client":
				return runClient(ctx)
			case "all":
				return runAll(ctx)
			default:
				return fmt.Errorf("%w: unknown run target %q", ErrUsage, args[0])
			}
		},
	}
}

func runAPI(ctx context.Context) error {
	cfg := apiapp.DefaultConfigFromEnv()
	if err := ensureParentDirs(cfg.DBPath); err != nil {
		return err
	}
	if err := apiapp.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runClient(ctx context.Context) error {
	cfg := clientapp.DefaultConfigFromEnv()
	if err := clientapp.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runAll starts both servers and returns when either fails or ctx ends.
func runAll(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)

	go func() { errCh <- runAPI(ctx) }()
	go func() {
		select {
		case <-ctx.Done():
			errCh <- nil
			return
		case <-time.After(500 * time.Millisecond):
		}
		errCh <- runClient(ctx)
	}()

	var first error
	for i := 0; i < 2; i++ {
		err := <-errCh
		if err != nil && first == nil {
			first = err
			cancel()
		}
	}
	return first
}

func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		dir := filepath.Dir(p)
		if dir == "." || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
