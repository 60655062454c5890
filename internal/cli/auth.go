package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x6d61/necrosis/internal/auth"
	"github.com/0x6d61/necrosis/internal/notify"
	"github.com/0x6d61/necrosis/internal/profile"
	"github.com/0x6d61/necrosis/internal/session"
	"github.com/0x6d61/necrosis/internal/workspace"
)

func (a *app) authScreen() (*auth.Screen, error) {
	store, err := a.sessionStore()
	if err != nil {
		return nil, err
	}
	return auth.NewScreen(a.client, store, auth.WithLogger(a.log)), nil
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			screen, err := a.authScreen()
			if err != nil {
				return err
			}
			if screen.Login.Email, err = a.orPrompt(email, "Email: ", false); err != nil {
				return err
			}
			if screen.Login.Password, err = a.orPrompt(password, "Password: ", true); err != nil {
				return err
			}

			sc, err := screen.SubmitLogin(ctx)
			if err != nil {
				if fe := screen.LoginErrors(); len(fe) > 0 {
					return fe
				}
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("[+] Logged in as %s <%s>", sc.Username, sc.Email)))
			a.profileHint(ctx, sc)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted when omitted)")
	return cmd
}

func newSignupCmd(a *app) *cobra.Command {
	var form auth.SignupForm

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			screen, err := a.authScreen()
			if err != nil {
				return err
			}
			screen.SwitchTab(auth.TabSignup)

			f := form
			if f.Username, err = a.orPrompt(f.Username, "Username: ", false); err != nil {
				return err
			}
			if f.Email, err = a.orPrompt(f.Email, "Email: ", false); err != nil {
				return err
			}
			if f.Password, err = a.orPrompt(f.Password, "Password: ", true); err != nil {
				return err
			}
			if f.ConfirmPassword, err = a.orPrompt(f.ConfirmPassword, "Confirm password: ", true); err != nil {
				return err
			}
			if !f.Agreed {
				if f.Agreed, err = a.confirm("Do you agree to the Terms of Service and Privacy Policy?"); err != nil {
					return err
				}
			}
			screen.Signup = f

			if err := screen.SubmitSignup(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render("[+] "+screen.SignupSuccess()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&form.Username, "username", "u", "", "Username (letters only)")
	cmd.Flags().StringVarP(&form.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&form.Password, "password", "p", "", "Password (prompted when omitted)")
	cmd.Flags().StringVar(&form.ConfirmPassword, "confirm-password", "", "Password confirmation (prompted when omitted)")
	cmd.Flags().BoolVar(&form.Agreed, "agree", false, "Agree to the Terms of Service and Privacy Policy")
	return cmd
}

func newResetPasswordCmd(a *app) *cobra.Command {
	var form auth.ResetForm

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			screen, err := a.authScreen()
			if err != nil {
				return err
			}
			screen.OpenReset()
			defer screen.CloseReset()

			f := form
			if f.Email, err = a.orPrompt(f.Email, "Email: ", false); err != nil {
				return err
			}
			if f.NewPassword, err = a.orPrompt(f.NewPassword, "New password: ", true); err != nil {
				return err
			}
			if f.ConfirmPassword, err = a.orPrompt(f.ConfirmPassword, "Confirm new password: ", true); err != nil {
				return err
			}
			screen.Reset = f

			if err := screen.SubmitReset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render("[+] "+screen.ResetSuccess()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&form.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVar(&form.NewPassword, "new-password", "", "New password (prompted when omitted)")
	cmd.Flags().StringVar(&form.ConfirmPassword, "confirm-password", "", "Confirmation (prompted when omitted)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Purge session images on the server and forget the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			sc, err := a.currentSession(ctx)
			if err != nil {
				fmt.Fprintln(a.out, "[*] Not logged in.")
				return nil
			}
			a.logout(ctx, workspace.New(a.client, sc, workspace.WithLogger(a.log)))
			fmt.Fprintln(a.out, successStyle.Render("[+] Logged out."))
			return nil
		},
	}
}

// logout purges server-side images through the workspace and clears the
// stored session. Neither step can fail the logout.
func (a *app) logout(ctx context.Context, ws *workspace.Workspace) {
	ws.Logout(ctx)
	if a.store != nil {
		if err := a.store.Clear(ctx); err != nil {
			a.log.Warn("clearing stored session", zap.Error(err))
		}
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			sc, err := a.currentSession(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s <%s>\n", sc.Username, sc.Email)
			if !sc.CreatedAt.IsZero() {
				fmt.Fprintf(a.out, "Logged in: %s\n", sc.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			a.profileHint(ctx, sc)
			return nil
		},
	}
}

// profileHint prints a notice when the profile lacks contact details.
func (a *app) profileHint(ctx context.Context, sc *session.Context) {
	p := profile.New(a.client, sc, profile.WithLogger(a.log), profile.WithNotifier(notify.Discard))
	if p.Refresh(ctx) {
		fmt.Fprintln(a.out, infoStyle.Render("[*] Your profile is incomplete. Run `necrosis profile set` to add your contact and organisation."))
	}
}
