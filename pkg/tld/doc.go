// Package tld signs storage URLs from Go programs.
//
// It resolves its settings exactly as the tld binary does (defaults,
// config.yaml in the configuration directory, then TLD_* environment
// variables) and shares the credentials the binary stores there, so a
// user who ran "tld auth login" once is authenticated here too.
//
//	client, err := tld.New()
//	if err != nil {
//	    return err
//	}
//	signed, err := client.SignURL(ctx, "https://data.meso.umontpellier.fr/bucket/scene.tif")
//
// Unlike the binary, New never touches the process-wide logger. Log
// records go to slog.Default().
package tld
