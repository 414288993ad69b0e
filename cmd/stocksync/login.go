package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/stockmaster/stocksync/internal/auth"
	"github.com/stockmaster/stocksync/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "auth",
	Short:   "Log in to the sync server",
	Long: `Exchange a username and password for a bearer token and store the
session locally. Missing credentials are prompted for on a terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		username, password, err := credentials(username, password)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.session.Login(cmd.Context(), username, password)
		if err != nil {
			return err
		}
		fmt.Printf("%s Logged in as %s\n", ui.RenderPass("✓"), ui.RenderBold(user.DisplayName()))
		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:     "signup <email>",
	GroupID: "auth",
	Short:   "Register a new account (does not log in)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fullName, _ := cmd.Flags().GetString("name")
		password, _ := cmd.Flags().GetString("password")
		_, password, err := credentials(args[0], password)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.session.Signup(cmd.Context(), args[0], password, fullName)
		if err != nil {
			return err
		}
		fmt.Printf("%s Registered %s. Run 'stocksync login' to start a session.\n", ui.RenderPass("✓"), user.DisplayName())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "auth",
	Short:   "End the session (local data is kept)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("%s Logged out\n", ui.RenderPass("✓"))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "auth",
	Short:   "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.session.Validate(ctx)
		switch {
		case errors.Is(err, auth.ErrNotLoggedIn):
			fmt.Println(ui.RenderWarn("Not logged in"))
			return errSilent
		case err != nil:
			// Offline: fall back to the stored profile.
			fmt.Printf("%s Could not reach the server: %v\n", ui.RenderWarn("⚠"), err)
			if user, err = a.session.User(ctx); err != nil {
				return err
			}
		}
		if user == nil {
			user = &auth.User{}
		}

		fmt.Printf("User:  %s\n", ui.RenderBold(user.DisplayName()))
		if user.Email != "" {
			fmt.Printf("Email: %s\n", user.Email)
		}
		if user.Role != "" {
			fmt.Printf("Role:  %s\n", user.Role)
		}
		token, _ := a.session.Token(ctx)
		if exp, ok := auth.Expiry(token); ok {
			fmt.Printf("Token: expires %s\n", exp.Local().Format(time.RFC1123))
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringP("username", "u", "", "username or email")
	loginCmd.Flags().StringP("password", "p", "", "password (prompted when omitted)")
	signupCmd.Flags().String("name", "", "full name")
	signupCmd.Flags().StringP("password", "p", "", "password (prompted when omitted)")

	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, whoamiCmd)
}
