package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a token signing key",
	Long: `Generate a random 256-bit signing key, base64-encoded.

Place the output into the server environment:

  export FIELDLINE_SIGNING_KEY="$(fieldlinectl keygen)"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		fmt.Println(base64.StdEncoding.EncodeToString(buf))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
