package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"strings"
	"time"

	"tld/internal/apikeys"
	"tld/internal/app"
	"tld/internal/auth"
	"tld/internal/cli"
	"tld/internal/credentials"
	pkgstrings "tld/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newAPIKeyCmd() *cobra.Command {
	apikeyCmd := &cobra.Command{
		Use:     "apikey",
		Aliases: []string{"apikeys"},
		Short:   "Manage API keys on the signing service",
		Long: `Create, list and revoke API keys, and register one locally so that
URLs are signed without an interactive login.

Examples:
  tld apikey register                 # Create a key and store it locally
  tld apikey list -o plain            # List keys without borders
  tld apikey revoke AKXXXXXXXX        # Revoke one key
  tld apikey remove --keep-remote     # Forget the local key, keep it valid`,
	}

	apikeyCmd.AddCommand(newAPIKeyCreateCmd())
	apikeyCmd.AddCommand(newAPIKeyListCmd())
	apikeyCmd.AddCommand(newAPIKeyRevokeCmd())
	apikeyCmd.AddCommand(newAPIKeyRevokeAllCmd())
	apikeyCmd.AddCommand(newAPIKeyRegisterCmd())
	apikeyCmd.AddCommand(newAPIKeyRemoveCmd())
	return apikeyCmd
}

func newAPIKeyCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create [description]",
		Short: "Create an API key and print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := appFactory(cmd)
			if err != nil {
				return err
			}
			key, err := createKey(cmd.Context(), application, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "access-key: %s\n", key.AccessKey)
			fmt.Fprintf(out, "secret-key: %s\n", key.SecretKey)
			fmt.Fprintln(cmd.ErrOrStderr(), text.FgYellow.Sprint("The secret key cannot be displayed again."))
			return nil
		},
	}
}

func newAPIKeyListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the API keys of the authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			application, err := appFactory(cmd)
			if err != nil {
				return err
			}
			keys, err := application.APIKeys.List(cmd.Context())
			if err != nil {
				return cli.WrapError(err, application.Settings().SigningEndpoint)
			}

			var local credentials.APIKey
			_ = application.Store.Load(&local)

			table := cli.Table{
				Headers: []string{"access key", "description", "created", "local"},
				Raw:     keys,
				Empty:   "No API keys",
			}
			for _, k := range keys {
				marker := ""
				if k.AccessKey == local.AccessKey {
					marker = "*"
				}
				table.Rows = append(table.Rows, []string{k.AccessKey, pkgstrings.Cell(k.Description, pkgstrings.CellMaxLen), k.Created, marker})
			}
			return cli.Render(cmd.OutOrStdout(), format, table)
		},
	}
	listCmd.Flags().StringP("output", "o", "table", "Output format: table, plain, json or yaml")
	return listCmd
}

func newAPIKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <access-key>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := appFactory(cmd)
			if err != nil {
				return err
			}
			if err := application.APIKeys.Revoke(cmd.Context(), args[0]); err != nil {
				return cli.WrapError(err, application.Settings().SigningEndpoint)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s\n", args[0])
			return nil
		},
	}
}

func newAPIKeyRevokeAllCmd() *cobra.Command {
	var yes bool
	revokeAllCmd := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revoke every API key of the authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := appFactory(cmd)
			if err != nil {
				return err
			}
			ok, err := promptFor(yes).Confirm("Revoke all API keys")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}

			revoked, err := application.APIKeys.RevokeAll(cmd.Context())
			for _, k := range revoked {
				fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s\n", k)
			}
			if err != nil {
				return cli.WrapError(err, application.Settings().SigningEndpoint)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d API key(s) revoked\n", len(revoked))
			return nil
		},
	}
	revokeAllCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return revokeAllCmd
}

func newAPIKeyRegisterCmd() *cobra.Command {
	var accessKey, secretKey string
	registerCmd := &cobra.Command{
		Use:   "register [description]",
		Short: "Store an API key locally, creating one if needed",
		Long: `Store an API key in the configuration directory. Later commands sign
URLs with it instead of the OAuth2 session.

Without --access-key a new key is created on the signing service. With
--access-key an existing key is stored; the secret is read from the
terminal when --secret-key is omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := appFactory(cmd)
			if err != nil {
				return err
			}

			var key credentials.APIKey
			if accessKey != "" {
				if secretKey == "" {
					secretKey, err = prompter.Secret("Secret key")
					if err != nil {
						return err
					}
				}
				key = credentials.APIKey{AccessKey: accessKey, SecretKey: secretKey}
				if !key.Valid() {
					return errors.New("both the access key and the secret key are required")
				}
			} else {
				key, err = createKey(cmd.Context(), application, args)
				if err != nil {
					return err
				}
			}

			if !application.Store.Persistent() {
				return errors.New("credential persistence is disabled, set --config-dir or TLD_CONFIG_DIR")
			}
			if err := application.Store.Save(key); err != nil {
				return fmt.Errorf("failed to store API key: %w", err)
			}
			application.Auth.Refresh()

			fmt.Fprintf(cmd.OutOrStdout(), "Registered API key %s in %s\n", key.AccessKey, application.Store.Path(credentials.KindAPIKey))
			return nil
		},
	}
	registerCmd.Flags().StringVar(&accessKey, "access-key", "", "Register this existing access key instead of creating one")
	registerCmd.Flags().StringVar(&secretKey, "secret-key", "", "Secret key matching --access-key")
	return registerCmd
}

func newAPIKeyRemoveCmd() *cobra.Command {
	var keepRemote bool
	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete the locally registered API key",
		Long: `Delete the API key stored in the configuration directory. The key is
also revoked on the signing service unless --keep-remote is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := appFactory(cmd)
			if err != nil {
				return err
			}

			var key credentials.APIKey
			if err := application.Store.Load(&key); err != nil {
				if errors.Is(err, credentials.ErrNotFound) {
					return errors.New("no API key is registered")
				}
				return err
			}

			if !keepRemote {
				if err := application.APIKeys.Revoke(cmd.Context(), key.AccessKey); err != nil {
					return cli.WrapError(err, application.Settings().SigningEndpoint)
				}
			}
			if err := application.Store.Delete(credentials.KindAPIKey); err != nil {
				return fmt.Errorf("failed to delete local API key: %w", err)
			}
			application.Auth.Refresh()

			if keepRemote {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed local API key %s (still valid on the service)\n", key.AccessKey)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Revoked and removed API key %s\n", key.AccessKey)
			}
			return nil
		},
	}
	removeCmd.Flags().BoolVar(&keepRemote, "keep-remote", false, "Do not revoke the key on the signing service")
	return removeCmd
}

// createKey creates a key described by args[0], or by a default description
// naming the user and the current time.
func createKey(ctx context.Context, application *app.Application, args []string) (credentials.APIKey, error) {
	description := ""
	if len(args) > 0 {
		description = strings.TrimSpace(args[0])
	}
	if description == "" {
		description = apikeys.DefaultDescription(currentUser(ctx, application), time.Now())
	}

	key, err := application.APIKeys.Create(ctx, description)
	if err != nil {
		return credentials.APIKey{}, cli.WrapError(err, application.Settings().SigningEndpoint)
	}
	return key, nil
}

// currentUser prefers the identity provider's user name and falls back to
// the local account.
func currentUser(ctx context.Context, application *app.Application) string {
	if application.Auth.Method() == auth.MethodOAuth2 {
		if name, err := application.Session.Username(ctx); err == nil && name != "" {
			return name
		}
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}
