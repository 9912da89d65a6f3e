package cmd

import (
	"fmt"
	"os"

	"tld/internal/app"
	"tld/internal/cli"
	"tld/pkg/metrics"

	"github.com/spf13/cobra"
)

// Persistent flags shared by every command.
var (
	configDir string
	endpoint  string
	debug     bool
	noQR      bool
	showStats bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tld",
	Short: "Sign storage URLs and manage credentials for the Teledetection services",
	Long: `tld exchanges storage URLs for short-lived signed URLs through the
Teledetection signing service.

It authenticates with an API key or with an OAuth2 device authorization
grant, keeps the resulting credentials in the configuration directory and
refreshes them when they are about to expire.`,
	// SilenceUsage keeps usage text out of runtime errors.
	SilenceUsage: true,
}

// appFactory builds the application a command runs against. Tests replace it.
var appFactory = func(cmd *cobra.Command) (*app.Application, error) {
	cfg := app.NewConfig(debug, configDir, endpoint)
	cfg.Presenter = cli.NewDevicePresenter(cmd.ErrOrStderr(), !noQR)
	return app.NewApplication(cfg)
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with the code matching the error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "tld version %s\n" .Version}}`)

	if err := run(rootCmd); err != nil {
		os.Exit(getExitCode(err))
	}
}

// run executes root. With --metrics the signing and authentication
// counters are written to stderr afterwards, whether the command failed or
// not.
func run(root *cobra.Command) error {
	err := root.Execute()
	if showStats {
		if werr := metrics.WriteText(root.ErrOrStderr()); werr != nil && err == nil {
			err = fmt.Errorf("failed to write metrics: %w", werr)
		}
	}
	return err
}

// getExitCode determines the exit code for scripting and automation.
func getExitCode(err error) int {
	return cli.ExitCode(err)
}

// outputFormat reads and validates the --output flag of cmd.
func outputFormat(cmd *cobra.Command) (cli.OutputFormat, error) {
	value, err := cmd.Flags().GetString("output")
	if err != nil {
		return cli.FormatTable, nil
	}
	format, err := cli.ParseOutputFormat(value)
	if err != nil {
		return "", fmt.Errorf("invalid --output: %w", err)
	}
	return format, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding config.yaml and credentials (default $TLD_CONFIG_DIR or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Signing service endpoint (overrides $TLD_SIGNING_ENDPOINT)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noQR, "no-qr", false, "Do not print a QR code during device authorization")
	rootCmd.PersistentFlags().BoolVar(&showStats, "metrics", false, "Print signing and authentication metrics to stderr on exit")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newAPIKeyCmd())
	rootCmd.AddCommand(newSignCmd())
	rootCmd.AddCommand(newPushCmd())
}
