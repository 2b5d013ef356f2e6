package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/camguard/internal/app"
	camhttp "github.com/dropDatabas3/camguard/internal/http"
	"github.com/dropDatabas3/camguard/internal/observability/logger"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr        string
		autoMigrate bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), opts, autoMigrate)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Dirección de escucha (pisa SERVER_ADDR)")
	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "Aplicar migraciones pendientes al arrancar")
	return cmd
}

func serve(ctx context.Context, opts *rootOptions, autoMigrate bool) error {
	cfg := opts.cfg
	log := logger.FromWithFields(ctx, logger.Component("serve"))

	c, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("close failed", logger.Err(err))
		}
	}()

	// Paso 1: esquema
	if autoMigrate {
		v, err := c.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if v >= 0 {
			log.Info("schema ready", logger.String("version", fmt.Sprint(v)))
		}
	}

	// Paso 2: primer admin
	res, err := c.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if res.GeneratedPassword != "" {
		// canal externo: la password va a stderr, nunca al log
		fmt.Fprintf(os.Stderr, "\nFirst admin created: %s\nGenerated password: %s\nChange it after the first login.\n\n",
			res.Username, res.GeneratedPassword)
	}

	// Paso 3: janitor + http
	janitor, err := c.Janitor()
	if err != nil {
		return err
	}
	janitor.Start()

	srv := camhttp.NewServer(cfg.Server.Addr, c.Handler(ctx), cfg.ShutdownTimeout())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		janitor.Stop(context.Background())
		return nil
	})

	err = g.Wait()
	log.Info("stopped")
	return err
}
