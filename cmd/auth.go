package cmd

import (
	"fmt"
	"time"

	"tld/internal/auth"
	"tld/internal/cli"
	"tld/internal/session"
	pkgauth "tld/pkg/auth"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication against the signing service",
		Long: `Manage the OAuth2 session used to sign URLs.

Examples:
  tld auth login     # Start a device authorization and store the token
  tld auth status    # Show the stored token and the active method
  tld auth whoami    # Show the authenticated user name
  tld auth logout    # Delete the stored token`,
	}

	authCmd.AddCommand(newAuthLoginCmd())
	authCmd.AddCommand(newAuthLogoutCmd())
	authCmd.AddCommand(newAuthStatusCmd())
	authCmd.AddCommand(newAuthWhoamiCmd())
	return authCmd
}

func newAuthLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with a device authorization grant",
		Long: `Start a new device authorization grant, even if a valid token is
already stored. Open the printed link (or scan the QR code) and approve
the request; the token is then stored in the configuration directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := appFactory(cmd)
			if err != nil {
				return err
			}
			endpoint := application.Settings().SigningEndpoint
			if err := application.Session.Login(cmd.Context()); err != nil {
				return cli.WrapError(err, endpoint)
			}

			user, err := application.Session.Username(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s\n", endpoint)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n", endpoint, text.Bold.Sprint(user))
			return nil
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	var yes bool
	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored OAuth2 token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := appFactory(cmd)
			if err != nil {
				return err
			}

			ok, err := promptFor(yes).Confirm("Delete the stored token")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}

			if err := application.Session.Logout(); err != nil {
				return fmt.Errorf("failed to delete the stored token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
	logoutCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return logoutCmd
}

func newAuthStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the authentication status",
		Long: `Show which authentication method signs requests and the state of the
stored OAuth2 token. No request is sent to the signing service.

Use -o json or -o yaml for a machine-readable document.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			application, err := appFactory(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			settings := application.Settings()
			status := application.Session.Status()

			if format == cli.FormatJSON || format == cli.FormatYAML {
				resp := buildStatus(settings.SigningEndpoint, application.Auth.Provider(), status)
				return cli.Render(out, format, cli.Table{Raw: resp})
			}

			fmt.Fprintln(out, "Signing service")
			fmt.Fprintf(out, "  Endpoint:  %s\n", settings.SigningEndpoint)
			fmt.Fprintf(out, "  Method:    %s\n", describeMethod(application.Auth.Provider()))
			fmt.Fprintf(out, "  Token:     %s\n", formatState(status.State))
			if !status.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "  Expires:   %s\n", formatExpiry(status.ExpiresAt, time.Now()))
			}
			if status.State != session.StateUninitialized {
				if status.HasRefreshToken {
					fmt.Fprintf(out, "  Refresh:   %s\n", text.FgGreen.Sprint("Available"))
				} else {
					fmt.Fprintf(out, "  Refresh:   %s\n", text.FgYellow.Sprint("Not available (re-auth required on expiry)"))
				}
			}
			return nil
		},
	}
	statusCmd.Flags().StringP("output", "o", "table", "Output format: table, json or yaml")
	return statusCmd
}

func newAuthWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := appFactory(cmd)
			if err != nil {
				return err
			}
			user, err := application.Session.Username(cmd.Context())
			if err != nil {
				return cli.WrapError(err, application.Settings().SigningEndpoint)
			}
			fmt.Fprintln(cmd.OutOrStdout(), user)
			return nil
		},
	}
}

func describeMethod(p auth.Provider) string {
	switch v := p.(type) {
	case auth.NoAuth:
		return text.FgHiBlack.Sprint("none (authentication disabled)")
	case auth.APIKeyProvider:
		return fmt.Sprintf("API key %s (from %s)", v.Key.AccessKey, v.Source)
	default:
		return "OAuth2 device authorization"
	}
}

// buildStatus converts the session snapshot into the status document.
func buildStatus(endpoint string, p auth.Provider, status session.Status) pkgauth.StatusResponse {
	resp := pkgauth.StatusResponse{Endpoint: endpoint}
	switch v := p.(type) {
	case auth.NoAuth:
		resp.Method.Kind = pkgauth.MethodNone
		return resp
	case auth.APIKeyProvider:
		resp.Method = pkgauth.MethodStatus{Kind: pkgauth.MethodAPIKey, AccessKey: v.Key.AccessKey, Source: v.Source}
		return resp
	}

	resp.Method.Kind = pkgauth.MethodOAuth2
	token := &pkgauth.TokenStatus{
		State:            status.State.String(),
		RefreshAvailable: status.HasRefreshToken,
	}
	if !status.IssuedAt.IsZero() {
		issued := status.IssuedAt.UTC()
		token.IssuedAt = &issued
	}
	if !status.ExpiresAt.IsZero() {
		expires := status.ExpiresAt.UTC()
		token.ExpiresAt = &expires
	}
	resp.Token = token
	return resp
}

func formatState(s session.AuthState) string {
	switch s {
	case session.StateValid:
		return text.FgGreen.Sprint("Valid")
	case session.StateNearExpiry:
		return text.FgYellow.Sprint("Expiring, will be refreshed on next use")
	case session.StateChallengeExpired:
		return text.FgRed.Sprint("Authorization link expired, run: tld auth login")
	default:
		return text.FgYellow.Sprint("Not authenticated, run: tld auth login")
	}
}

// formatExpiry renders an absolute time together with the time left.
func formatExpiry(at, now time.Time) string {
	local := at.Local().Format("2006-01-02 15:04:05")
	left := at.Sub(now).Round(time.Second)
	if left <= 0 {
		return fmt.Sprintf("%s (%s ago)", local, -left)
	}
	return fmt.Sprintf("%s (in %s)", local, left)
}

// promptFor returns the prompter honoring --yes.
func promptFor(yes bool) cli.Prompter {
	if yes {
		return cli.AssumeYes{}
	}
	return prompter
}

// prompter asks interactive questions. Tests replace it.
var prompter cli.Prompter = cli.NewTerminalPrompter()
