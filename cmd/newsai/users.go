package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/NewsAI/internal/apperr"
	"github.com/TobiSchelling/NewsAI/internal/auth"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage reader accounts",
}

var usersAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create a user; the password is read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Fprint(os.Stderr, "Password: ")
		password, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && password == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(password, "\r\n")

		user, err := auth.NewService(db, nil, logger).Register(ctx, auth.Credentials{Name: args[0], Password: password})
		if err != nil {
			if apperr.KindOf(err) != apperr.Internal {
				return errors.New(apperr.PublicMessage(err))
			}
			return err
		}
		fmt.Printf("Created user %s (%s)\n", user.Name, user.ID)
		return nil
	},
}

func init() {
	usersCmd.AddCommand(usersAddCmd)
}
