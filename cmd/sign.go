package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"tld/internal/app"
	"tld/internal/cli"
	"tld/internal/signing"
	"tld/pkg/stac"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newSignCmd() *cobra.Command {
	var put, write bool
	var search string
	var maxItems int
	signCmd := &cobra.Command{
		Use:   "sign <url|file>...",
		Short: "Sign storage URLs or the URLs inside a local file",
		Long: `Sign storage URLs and print the signed URLs, one per line, in the
order given. URLs outside the storage domain or already signed are printed
unchanged.

Arguments naming a local file are signed as documents: JSON files (a STAC
item or collection, a GeoJSON FeatureCollection or a references manifest)
have their asset hrefs signed, other files (such as GDAL VRT) have every
embedded storage URL signed.

With --search, the items returned by a STAC API item search (GET, "next"
links followed) are fetched and printed as a FeatureCollection with every
asset href signed.

Examples:
  tld sign https://data.meso.umontpellier.fr/bucket/scene.tif
  tld sign --put https://data.meso.umontpellier.fr/bucket/new.tif
  tld sign mosaic.vrt > signed.vrt
  tld sign --write item.json
  tld sign --search "https://api.stac.teledetection.fr/search?collections=spot-6-7-drs&limit=50"`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && search == "" {
				return errors.New("requires at least one URL or file, or --search")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := appFactory(cmd)
			if err != nil {
				return err
			}
			endpoint := application.Settings().SigningEndpoint

			if search != "" {
				if put {
					return errors.New("--put cannot be combined with --search")
				}
				searcher := &stac.Search{URL: search, Client: application.HTTP.StandardClient(), MaxItems: maxItems}
				signed, err := application.Dispatcher.Sign(cmd.Context(), searcher)
				if err != nil {
					return cli.WrapError(err, endpoint)
				}
				if err := writeJSON(cmd.OutOrStdout(), signed); err != nil {
					return err
				}
			}

			route := signing.RouteRead
			if put {
				route = signing.RouteWrite
			}

			var urls []string
			for _, arg := range args {
				if isFile(application.Fs, arg) {
					if put {
						return fmt.Errorf("--put only applies to URLs, %s is a file", arg)
					}
					if err := signFile(cmd, application, arg, write); err != nil {
						return cli.WrapError(err, endpoint)
					}
					continue
				}
				urls = append(urls, arg)
			}
			if len(urls) == 0 {
				return nil
			}

			signed, err := application.Signer.SignMany(cmd.Context(), urls, route)
			if err != nil {
				return cli.WrapError(err, endpoint)
			}
			for _, u := range urls {
				fmt.Fprintln(cmd.OutOrStdout(), signed[u])
			}
			return nil
		},
	}
	signCmd.Flags().BoolVar(&put, "put", false, "Sign URLs for uploading (PUT) instead of reading")
	signCmd.Flags().BoolVarP(&write, "write", "w", false, "Rewrite files in place instead of printing them")
	signCmd.Flags().StringVar(&search, "search", "", "Sign the items of a STAC API search URL")
	signCmd.Flags().IntVar(&maxItems, "max-items", 0, "Stop the search after this many items (0 reads every page)")
	return signCmd
}

func isFile(fs afero.Fs, path string) bool {
	if strings.Contains(path, "://") {
		return false
	}
	info, err := fs.Stat(path)
	return err == nil && !info.IsDir()
}

func signFile(cmd *cobra.Command, application *app.Application, path string, write bool) error {
	data, err := afero.ReadFile(application.Fs, path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var out []byte
	if isJSON(path, data) {
		var doc map[string]interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("%s is not a JSON object: %w", path, err)
		}
		signed, err := application.Dispatcher.SignInPlace(cmd.Context(), doc)
		if err != nil {
			return fmt.Errorf("failed to sign %s: %w", path, err)
		}
		var buf bytes.Buffer
		if err := writeJSON(&buf, signed); err != nil {
			return err
		}
		out = buf.Bytes()
	} else {
		signed, err := application.Dispatcher.SignString(cmd.Context(), string(data))
		if err != nil {
			return fmt.Errorf("failed to sign %s: %w", path, err)
		}
		out = []byte(signed)
	}

	if write {
		info, err := application.Fs.Stat(path)
		if err != nil {
			return err
		}
		if err := afero.WriteFile(application.Fs, path, out, info.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Signed %s\n", path)
		return nil
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

// writeJSON indents v without escaping the ampersands of signed URLs.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isJSON(path string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".geojson":
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("{"))
}
