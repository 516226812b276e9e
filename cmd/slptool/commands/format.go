package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urbasus/goslp/internal/slp"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is
// not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// splitCommaList splits a comma-separated SLP list field, trimming
// whitespace and dropping empty elements.
func splitCommaList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// --- findsrvs output ---

type urlView struct {
	URL      string `json:"url"`
	Lifetime uint16 `json:"lifetime"`
}

func formatURLs(urls []slp.URLEntry, format string) (string, error) {
	switch format {
	case formatJSON:
		views := make([]urlView, 0, len(urls))
		for _, u := range urls {
			views = append(views, urlView{URL: u.URL, Lifetime: u.Lifetime})
		}
		return marshalIndented(views)
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "URL\tLIFETIME")
		for _, u := range urls {
			fmt.Fprintf(w, "%s\t%d\n", u.URL, u.Lifetime)
		}
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- findattrs output ---

func formatAttrs(attrLists []string, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndented(attrLists)
	case formatTable:
		var buf strings.Builder
		for _, attrs := range attrLists {
			for _, a := range splitCommaList(attrs) {
				fmt.Fprintln(&buf, a)
			}
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- findsrvtypes output ---

func formatSrvTypes(types []string, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndented(types)
	case formatTable:
		var buf strings.Builder
		for _, t := range types {
			fmt.Fprintln(&buf, t)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func marshalIndented(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
