package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/camguard/internal/app"
	"github.com/dropDatabas3/camguard/internal/bootstrap"
	"github.com/dropDatabas3/camguard/internal/security/password"
)

func newBootstrapCmd(opts *rootOptions) *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Crea el primer admin si no hay usuarios",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if err := cfg.Validate(); err != nil {
				return err
			}
			if interactive {
				user, pw, err := bootstrap.PromptCredentials(os.Stdin, cmd.ErrOrStderr(), password.DefaultPolicy())
				if err != nil {
					return err
				}
				cfg.Bootstrap.AdminUsername = user
				cfg.Bootstrap.AdminPassword = pw
			}
			// pedido explícito: se ignora ENABLE_FIRST_USER_ADMIN
			enabled := true
			cfg.Bootstrap.EnableFirstUserAdmin = &enabled

			c, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			if _, err := c.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			res, err := c.Bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Created {
				fmt.Fprintf(out, "bootstrap skipped: %s\n", res.Skipped)
				return nil
			}
			fmt.Fprintf(out, "admin created: %s (%s)\n", res.Username, res.UserID)
			if res.GeneratedPassword != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "generated password: %s\n", res.GeneratedPassword)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Pedir usuario y password por terminal")
	return cmd
}
