package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)


func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Muestra la versión",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "camguard %s (%s) %s\n", version, commit, runtime.Version())
		},
	}
}
