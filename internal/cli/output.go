package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// OutputFormat selects how list commands print their result.
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rounded go-pretty table
	FormatPlain OutputFormat = "plain" // Aligned columns without borders
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatTable, FormatPlain, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (expected table, plain, json or yaml)", s)
	}
}

// Table is tabular data together with the raw value it was built from,
// used by the JSON and YAML formats.
type Table struct {
	Headers []string
	Rows    [][]string
	Raw     interface{}

	// Empty is printed instead of an empty table.
	Empty string
}

// Render writes t to w in the requested format.
func Render(w io.Writer, format OutputFormat, t Table) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t.Raw)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(t.Raw); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(t.Rows) == 0 && t.Empty != "" {
		_, err := fmt.Fprintln(w, text.FgYellow.Sprint(t.Empty))
		return err
	}

	if format == FormatPlain {
		renderPlain(w, t.Headers, t.Rows)
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = text.FgHiCyan.Sprint(strings.ToUpper(h))
	}
	tw.AppendHeader(header)
	for _, row := range t.Rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}
	tw.Render()
	return nil
}

// renderPlain prints kubectl-style columns, separated by at least three
// spaces, for piping into grep, awk or cut.
func renderPlain(w io.Writer, headers []string, rows [][]string) {
	const padding = 3

	widths := make([]int, len(headers))
	upper := make([]string, len(headers))
	for i, h := range headers {
		upper[i] = strings.ToUpper(h)
		widths[i] = len(upper[i])
	}
	for _, row := range rows {
		for i := range headers {
			if i < len(row) && len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}

	printRow := func(row []string) {
		var sb strings.Builder
		for i := range headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			if i == len(headers)-1 {
				sb.WriteString(cell)
			} else {
				fmt.Fprintf(&sb, "%-*s", widths[i]+padding, cell)
			}
		}
		fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
	}

	printRow(upper)
	for _, row := range rows {
		printRow(row)
	}
}
