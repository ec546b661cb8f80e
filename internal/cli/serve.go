package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tikcccc/Form-demo/internal/api"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	var importCatalog bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the formflow HTTP API until SIGINT or SIGTERM.

Every request except /healthz must carry the acting role in the X-Role-ID
header. With --import the configured catalog is imported before serving,
which is how a memory store gets its templates.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				if addr == "" {
					addr = a.cfg.HTTP.Addr
				}
				if importCatalog {
					results, err := a.eng.ImportTemplates(ctx, a.dir.AdminRoleID(), a.catalog.Templates)
					if err != nil {
						return WrapExitError(ExitFailure, "import catalog", err)
					}
					a.logger.Info("catalog imported", slog.Int("templates", len(results)))
				}
				return serve(ctx, a, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to http.addr)")
	cmd.Flags().BoolVar(&importCatalog, "import", false, "import the configured catalog before serving")
	return cmd
}

// serve runs the API server until ctx is cancelled, then drains in-flight
// requests.
func serve(ctx context.Context, a *app, addr string) error {
	srv := api.New(a.eng, api.WithLogger(a.logger), api.WithTracerProvider(a.tracer))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(addr) }()

	select {
	case err := <-errCh:
		if err != nil {
			return WrapExitError(ExitCommandError, "http server", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitCommandError, "http shutdown", err)
	}
	if err := <-errCh; err != nil {
		return WrapExitError(ExitCommandError, "http server", err)
	}
	return nil
}
