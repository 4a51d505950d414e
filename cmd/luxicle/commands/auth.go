package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/robby3000/luxicle/internal/auth"
	"github.com/robby3000/luxicle/internal/models"
	"github.com/robby3000/luxicle/internal/session"
	"github.com/robby3000/luxicle/pkg/di"
)

var (
	tokenPath     string
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and keep the session in the local token file",
	Long: `Sign in with email and password. The session is written to the token file
(default <user config dir>/luxicle/session.json) and reused by whoami and logout.

The password is read from stdin when --password is not given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, sess *session.Store) error {
			password := loginPassword
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			if err := sess.SignIn(ctx, models.SignInInput{Email: loginEmail, Password: password}); err != nil {
				return err
			}
			u := sess.State().User
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", u.Username, u.Email)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the stored session and delete the token file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, sess *session.Store) error {
			if err := sess.SignOut(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, sess *session.Store) error {
			state := sess.State()
			switch state.Status {
			case session.StatusAuthenticated:
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) id=%s\n", state.User.Username, state.User.Email, state.User.ID)
				return nil
			case session.StatusError:
				return state.Err
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
				return nil
			}
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, logoutCmd, whoamiCmd} {
		c.Flags().StringVar(&tokenPath, "token-file", "", "Session token file (default <user config dir>/luxicle/session.json)")
	}
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")
	_ = loginCmd.MarkFlagRequired("email")
}

// withSession runs fn with the container's session store, which reads and
// writes the token file.
func withSession(ctx context.Context, fn func(context.Context, *session.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	path := tokenPath
	if path == "" {
		p, err := auth.DefaultTokenPath()
		if err != nil {
			return errors.New("cannot locate the token file; pass --token-file")
		}
		path = p
	}

	c, err := di.NewContainer(ctx, cfg,
		di.WithLogger(log),
		di.WithTokenStore(auth.NewFileTokenStore(path)),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c.Session())
}
