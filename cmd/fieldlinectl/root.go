// fieldlinectl is the operator CLI for the fieldline access-control core:
// signing-key generation, password hashing, token inspection, and schema
// migrations.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "fieldlinectl",
	Short:         "Operator tooling for the fieldline access-control core",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString("error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
