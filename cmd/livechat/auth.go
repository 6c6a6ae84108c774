package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/attribution"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/gateway"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/session"
)

var registerEmail string

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create an account and log in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		res, err := a.gw.Register(cmd.Context(), gateway.RegisterRequest{Username: args[0], Password: password, Email: registerEmail})
		if err != nil {
			return err
		}
		if res.Token == "" {
			// Registered only: log in with the same credentials.
			if res, err = a.gw.Login(cmd.Context(), args[0], password); err != nil {
				return err
			}
		}
		return saveLogin(cmd, a, res)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in and remember the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		res, err := a.gw.Login(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}
		return saveLogin(cmd, a, res)
	},
}

var logoutPurge bool

// logoutCmd forgets the session. The attribution partition stays so the
// user's own sent messages are still attributed after the next login,
// unless --purge is given.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.sessions.Clear(); err != nil {
			return err
		}
		if !logoutPurge {
			return nil
		}
		users, err := attribution.DropAll(a.store)
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Fprintf(cmd.OutOrStdout(), "Removed sent-message history of %s\n", u)
		}
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "optional e-mail address")
	logoutCmd.Flags().BoolVar(&logoutPurge, "purge", false, "also delete every account's sent-message history on this machine")
	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd)
}

func saveLogin(cmd *cobra.Command, a *app, res *gateway.AuthResult) error {
	sess := session.Session{Token: res.Token, UserID: res.User.ID, User: res.User}
	if err := a.sessions.Save(sess); err != nil {
		return err
	}
	// Opening the partition purges the legacy global cache.
	if _, err := a.openCache(res.User.Username); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", res.User.Username)
	return nil
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise, so scripts can pipe the password in.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
