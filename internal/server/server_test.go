package server_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/urbasus/goslp/internal/server"
	"github.com/urbasus/goslp/internal/slp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAgent() *slp.Agent {
	cfg := slp.Config{UseScopes: "default"}
	return slp.NewAgent(slp.RoleDA, cfg, testLogger(), nil, nil, 1)
}

func TestListRegistrationsEmpty(t *testing.T) {
	t.Parallel()

	agent := testAgent()
	_, handler := server.New(agent, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/registrations", nil)
	handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Empty(t, got)
}

func TestListRegistrationsReturnsInserted(t *testing.T) {
	t.Parallel()

	agent := testAgent()
	now := time.Now()
	reg := slp.Registration{
		Reg: slp.SrvRegBody{
			URL:         slp.URLEntry{Lifetime: 300, URL: "service:foo://10.0.0.1"},
			ServiceType: "service:foo",
			ScopeList:   "default",
		},
		Source:    slp.SourceRemote,
		PeerAddr:  netip.MustParseAddr("10.0.0.1"),
		Inserted:  now,
		ExpiresAt: now.Add(300 * time.Second),
	}
	require.NoError(t, agent.DB.Insert(reg, true))

	_, handler := server.New(agent, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/registrations", nil)
	handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "service:foo://10.0.0.1", got[0]["url"])
	require.Equal(t, "default", got[0]["scope_list"])
	require.Equal(t, "remote", got[0]["source"])
	require.Equal(t, "10.0.0.1", got[0]["peer_addr"])
}

func TestListKnownDAs(t *testing.T) {
	t.Parallel()

	agent := testAgent()
	agent.KnownDAs.Observe(slp.ErrNone, netip.MustParseAddr("10.0.0.2"), 42, "default", "service:directory-agent://10.0.0.2", "", time.Now())

	_, handler := server.New(agent, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/knownda", nil)
	handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "10.0.0.2", got[0]["addr"])
	require.Equal(t, float64(42), got[0]["boot_time"])
	require.Equal(t, "default", got[0]["scope_list"])
}

func TestStats(t *testing.T) {
	t.Parallel()

	agent := testAgent()
	now := time.Now()
	require.NoError(t, agent.DB.Insert(slp.Registration{
		Reg:       slp.SrvRegBody{URL: slp.URLEntry{Lifetime: 300, URL: "service:foo://10.0.0.1"}, ServiceType: "service:foo", ScopeList: "default"},
		Source:    slp.SourceRemote,
		PeerAddr:  netip.MustParseAddr("10.0.0.1"),
		Inserted:  now,
		ExpiresAt: now.Add(300 * time.Second),
	}, true))
	agent.KnownDAs.Observe(slp.ErrNone, netip.MustParseAddr("10.0.0.2"), 1, "default", "service:directory-agent://10.0.0.2", "", now)

	_, handler := server.New(agent, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/stats", nil)
	handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, float64(1), got["registrations"])
	require.Equal(t, float64(1), got["known_das"])
}

func TestUnknownRouteReturns404(t *testing.T) {
	t.Parallel()

	agent := testAgent()
	_, handler := server.New(agent, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/does-not-exist", nil)
	handler.ServeHTTP(rec, req)

	require.Equal(t, 404, rec.Code)
}
