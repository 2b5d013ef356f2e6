// Command camguard sirve la API de autenticación y trae herramientas de
// operación (migraciones, bootstrap del primer admin, hash de passwords).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/camguard/internal/config"
	"github.com/dropDatabas3/camguard/internal/observability/logger"
)

// seteadas con -ldflags
var (
	version = "dev"
	commit  = "none"
)

type rootOptions struct {
	configPath string
	envFiles   []string
	cfg        *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "camguard",
		Short:         "Autenticación y autorización para la API de cámaras",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(opts.envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}
			opts.cfg = cfg

			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.App.LogLevel,
				ServiceName: "camguard",
				Version:     version,
			})
			cmd.SetContext(logger.ToContext(cmd.Context(), logger.L()))
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CAMGUARD_CONFIG"), "Archivo YAML de config (env CAMGUARD_CONFIG)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "Archivos .env a cargar (default .env)")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newBootstrapCmd(opts),
		newHashPasswordCmd(opts),
		newVersionCmd(),
	)
	return root
}
