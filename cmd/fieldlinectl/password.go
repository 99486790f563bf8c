package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fieldline.dev/internal/credential"
)

var passwordIterations int

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Credential helpers",
}

var passwordHashCmd = &cobra.Command{
	Use:   "hash <password>",
	Short: "Hash a password with a fresh salt",
	Long: `Hash a password with a fresh random salt and print both values,
ready to be written into the users table.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "" {
			return errors.New("password must not be empty")
		}
		store, err := credential.NewStore(passwordIterations)
		if err != nil {
			return err
		}
		salt, digest, err := store.Rehash(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("password_salt: %s\npassword_hash: %s\n", salt, digest)
		return nil
	},
}

func init() {
	passwordHashCmd.Flags().IntVar(&passwordIterations, "iterations", credential.DefaultIterations, "PBKDF2 iteration count")
	passwordCmd.AddCommand(passwordHashCmd)
	rootCmd.AddCommand(passwordCmd)
}
