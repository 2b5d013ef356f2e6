package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/camguard/internal/security/password"
)

// hash-password lee la password de stdin para que no quede en el historial.
func newHashPasswordCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Imprime el hash argon2id (PHC) de la password leída de stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no password on stdin")
			}
			plain := strings.TrimRight(line, "\r\n")
			a := opts.cfg.Password.Argon2
			h := password.NewHasher(password.Params{Memory: a.MemoryKiB, Time: a.Time, Parallelism: a.Parallelism})
			enc, err := h.Hash(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc)
			return nil
		},
	}
}
