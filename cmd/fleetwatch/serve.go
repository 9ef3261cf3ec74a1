package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/fleetwatch/fleetwatch/internal/adapter/auth"
	httpadapter "github.com/fleetwatch/fleetwatch/internal/adapter/http"
	"github.com/fleetwatch/fleetwatch/internal/adapter/persistence"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	migrate bool
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.migrate, "migrate", false, "Apply pending migrations before serving")

	return cmd
}

func runServe(ctx context.Context, flags serveFlags) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if flags.migrate {
		version, err := persistence.MigrateUp(a.db)
		if err != nil {
			return err
		}
		a.log.Info(ctx, "migrations applied", map[string]interface{}{"version": version})
	}

	server := httpadapter.NewServer(a.cfg.Server, httpadapter.Dependencies{
		Security:  a.cfg.Security,
		Tokens:    auth.NewTokenService(a.cfg.Security.JWTSecret, a.cfg.Security.JWTExpiration),
		Operators: a.operators,
		Logger:    a.log,
	}, a.mixers, a.tractors)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Error(shutdownCtx, "server forced to shutdown", err, nil)
		return err
	}

	a.log.Info(shutdownCtx, "server exited", nil)
	return nil
}
