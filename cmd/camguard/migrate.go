package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/camguard/internal/app"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones pendientes del storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.cfg.Validate(); err != nil {
				return err
			}
			c, err := app.Build(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			v, err := c.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if v < 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing to migrate\n", opts.cfg.Storage.Driver)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: schema at version %d\n", opts.cfg.Storage.Driver, v)
			return nil
		},
	}
}
