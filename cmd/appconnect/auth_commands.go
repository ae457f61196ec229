package main

import (
	"fmt"

	"github.com/loykin/appconnect/internal/auth"
	"github.com/spf13/cobra"
)

// createAuthCommand creates the auth command with subcommands
func createAuthCommand(appCommand command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers",
	}
	cmd.AddCommand(createAuthHashCommand(appCommand))
	return cmd
}

func createAuthHashCommand(appCommand command) *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash <password>",
		Short: "Print the bcrypt hash for a [[server.auth.users]] entry",
		Long: `Print the bcrypt hash of a password for the daemon config:

  [server.auth]
  enabled = true

  [[server.auth.users]]
  username = "ops"
  password_hash = "<output of this command>"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashPassword(args[0], cost)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(appCommand.out, h)
			return err
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default 10)")
	return cmd
}
