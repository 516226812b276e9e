package slp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrStaticRecordMalformed indicates a static registration record did not
// match the grammar from spec.md §6.
var ErrStaticRecordMalformed = errors.New("slp: malformed static registration record")

// StaticRecord is one parsed line from the static registration file
// (spec.md §6: "service-url <ws> lifetime <ws> type <ws> \"scopes=\"
// <scope-list> <ws> attr-list").
type StaticRecord struct {
	URL         string
	Lifetime    uint16
	ServiceType string
	ScopeList   string
	AttrList    string
}

// ParseStaticRegistrations reads r record by record, one record per
// non-blank, non-comment line; comments begin with '#' and blank lines
// are skipped (spec.md §6 "Persisted state"). Each record is handed back as a
// StaticRecord; the caller inserts it into the Database with
// SourceStatic, matching the loader's documented responsibility.
func ParseStaticRegistrations(r io.Reader) ([]StaticRecord, error) {
	scanner := bufio.NewScanner(r)
	var records []StaticRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseStaticRecordLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read static registration file: %w", err)
	}
	return records, nil
}

// parseStaticRecordLine parses one "service-url lifetime type
// scopes=<list> attr-list" line. Fields are whitespace-separated except
// attr-list, which is everything remaining after the scopes= field and
// may itself contain spaces inside parenthesized attribute values.
func parseStaticRecordLine(line string) (StaticRecord, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return StaticRecord{}, fmt.Errorf("expected at least 4 fields, got %d: %w", len(fields), ErrStaticRecordMalformed)
	}

	url := fields[0]
	lifetime, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return StaticRecord{}, fmt.Errorf("lifetime %q: %w", fields[1], ErrStaticRecordMalformed)
	}
	svcType := fields[2]

	scopesField := fields[3]
	if !strings.HasPrefix(scopesField, "scopes=") {
		return StaticRecord{}, fmt.Errorf("expected scopes= field, got %q: %w", scopesField, ErrStaticRecordMalformed)
	}
	scopeList := strings.TrimPrefix(scopesField, "scopes=")

	attrList := ""
	if idx := strings.Index(line, scopesField); idx >= 0 {
		rest := line[idx+len(scopesField):]
		attrList = strings.TrimSpace(rest)
	}

	return StaticRecord{
		URL:         url,
		Lifetime:    uint16(lifetime), //nolint:gosec // bounded by the ParseUint bit size above
		ServiceType: svcType,
		ScopeList:   scopeList,
		AttrList:    attrList,
	}, nil
}

// ToSrvReg converts a parsed record into the SrvRegBody shape
// Database.Insert expects, ready to be wrapped in a Registration with
// SourceStatic.
func (r StaticRecord) ToSrvReg() SrvRegBody {
	return SrvRegBody{
		URL:         URLEntry{Lifetime: r.Lifetime, URL: r.URL},
		ServiceType: r.ServiceType,
		ScopeList:   r.ScopeList,
		AttrList:    r.AttrList,
	}
}
