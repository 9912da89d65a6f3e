package cmd

import (
	"fmt"

	"tld/internal/cli"
	"tld/internal/retryhttp"

	"github.com/spf13/cobra"
)

func newPushCmd() *cobra.Command {
	var printURL bool
	pushCmd := &cobra.Command{
		Use:   "push <local-file> <target-url>",
		Short: "Upload a local file to storage",
		Long: `Sign the target URL for writing and upload the local file to it.
Failed uploads are retried according to TLD_RETRY_TOTAL and
TLD_RETRY_BACKOFF_FACTOR.

Example:
  tld push scene.tif https://data.meso.umontpellier.fr/bucket/scene.tif`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := appFactory(cmd)
			if err != nil {
				return err
			}
			localPath, target := args[0], args[1]

			signed, err := application.Pusher.Push(cmd.Context(), localPath, target)
			if err != nil {
				return cli.WrapError(err, application.Settings().SigningEndpoint)
			}

			if printURL {
				fmt.Fprintln(cmd.OutOrStdout(), signed)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s\n", localPath, retryhttp.RedactURL(signed))
			}
			return nil
		},
	}
	pushCmd.Flags().BoolVar(&printURL, "print-url", false, "Print the presigned URL used for the upload")
	return pushCmd
}
