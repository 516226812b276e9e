package commands

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/urbasus/goslp/internal/slp"
)

func TestSplitCommaListTrimsAndDropsEmpty(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b"}, splitCommaList(" a, ,b "))
	require.Nil(t, splitCommaList(""))
	require.Nil(t, splitCommaList("   "))
}

func TestFormatURLsTable(t *testing.T) {
	t.Parallel()

	out, err := formatURLs([]slp.URLEntry{{URL: "service:foo://10.0.0.1", Lifetime: 60}}, formatTable)
	require.NoError(t, err)
	require.Contains(t, out, "service:foo://10.0.0.1")
	require.Contains(t, out, "URL")
}

func TestFormatURLsJSON(t *testing.T) {
	t.Parallel()

	out, err := formatURLs([]slp.URLEntry{{URL: "service:foo://10.0.0.1", Lifetime: 60}}, formatJSON)
	require.NoError(t, err)
	require.Contains(t, out, `"url": "service:foo://10.0.0.1"`)
}

func TestFormatURLsUnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, err := formatURLs(nil, "xml")
	require.ErrorIs(t, err, errUnsupportedFormat)
}

func TestFormatAttrsTable(t *testing.T) {
	t.Parallel()

	out, err := formatAttrs([]string{"(port=80),(tls=false)"}, formatTable)
	require.NoError(t, err)
	require.Contains(t, out, "(port=80)")
	require.Contains(t, out, "(tls=false)")
}

func TestFormatSrvTypesJSON(t *testing.T) {
	t.Parallel()

	out, err := formatSrvTypes([]string{"service:foo", "service:bar"}, formatJSON)
	require.NoError(t, err)
	require.Contains(t, out, "service:foo")
}

func TestErrorCodeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "OK", slp.ErrNone.String())
	require.Equal(t, "AUTHENTICATION_FAILED", slp.ErrAuthenticationFailed.String())
	require.Contains(t, slp.ErrorCode(999).String(), "999")
}
