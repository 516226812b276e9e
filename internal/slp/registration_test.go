package slp_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/urbasus/goslp/internal/slp"
)

func reg(url, scopeList string, lifetimeSec int, now time.Time) slp.Registration {
	return slp.Registration{
		Reg: slp.SrvRegBody{
			URL:         slp.URLEntry{Lifetime: uint16(lifetimeSec), URL: url},
			ServiceType: "service:x",
			ScopeList:   scopeList,
		},
		Source:    slp.SourceRemote,
		Inserted:  now,
		ExpiresAt: now.Add(time.Duration(lifetimeSec) * time.Second),
	}
}

// TestSrvRegDuplicateWithoutFresh covers spec.md §8 scenario 3: a
// re-registration without FRESH and a shorter lifetime must be rejected,
// leaving the stored entry untouched.
func TestSrvRegDuplicateWithoutFresh(t *testing.T) {
	t.Parallel()

	db := slp.NewDatabase()
	now := time.Unix(0, 0)

	require.NoError(t, db.Insert(reg("service:x://host/1", "a", 3600, now), false))
	err := db.Insert(reg("service:x://host/1", "a", 1800, now), false)
	require.ErrorIs(t, err, slp.ErrRegistrationUpdateRejected)

	entries, err := db.FindByType("service:x", "a", "", now)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.EqualValues(t, 3600, entries[0].Reg.URL.Lifetime)
}

// TestSrvRegWithFresh covers spec.md §8 scenario 4: the same
// re-registration succeeds when FRESH is set.
func TestSrvRegWithFresh(t *testing.T) {
	t.Parallel()

	db := slp.NewDatabase()
	now := time.Unix(0, 0)

	require.NoError(t, db.Insert(reg("service:x://host/1", "a", 3600, now), false))
	require.NoError(t, db.Insert(reg("service:x://host/1", "a", 1800, now), true))

	entries, err := db.FindByType("service:x", "a", "", now)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.EqualValues(t, 1800, entries[0].Reg.URL.Lifetime)
}

// TestExpiry covers spec.md §8 scenario 5.
func TestExpiry(t *testing.T) {
	t.Parallel()

	db := slp.NewDatabase()
	t0 := time.Unix(0, 0)
	require.NoError(t, db.Insert(reg("service:x://host/1", "a", 1, t0), true))

	t2 := time.Unix(2, 0)
	removed := db.Age(t2)
	require.Equal(t, 1, removed)

	entries, err := db.FindByType("service:x", "a", "", t2)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestDBIdentityInvariant covers spec.md §8's "DB identity" property:
// no two stored entries ever share an identity, across a mixed sequence
// of inserts and deregisters.
func TestDBIdentityInvariant(t *testing.T) {
	t.Parallel()

	db := slp.NewDatabase()
	now := time.Unix(0, 0)

	require.NoError(t, db.Insert(reg("service:x://host/1", "a", 3600, now), true))
	require.NoError(t, db.Insert(reg("service:x://host/1", "a", 7200, now), true))
	require.Equal(t, 1, db.Len())

	require.NoError(t, db.Insert(reg("service:x://host/2", "a", 3600, now), true))
	require.Equal(t, 2, db.Len())

	keys := noAuthKeyStore{}
	require.NoError(t, db.Deregister(keys, netip.Addr{}, false, "service:x://host/1", "a", nil, now))
	require.Equal(t, 1, db.Len())
}

type noAuthKeyStore struct{}

func (noAuthKeyStore) LookupKey(string) (slp.AuthKey, error) { return slp.AuthKey{}, slp.ErrAuthUnknownSPI }
func (noAuthKeyStore) CurrentKey() slp.AuthKey                { return slp.AuthKey{} }

func TestDeregisterRequiresAuthWhenStoredEntryHasOne(t *testing.T) {
	t.Parallel()

	db := slp.NewDatabase()
	now := time.Unix(0, 0)

	r := reg("service:x://host/1", "a", 3600, now)
	r.Reg.AttrAuth = []slp.AuthBlock{{SPI: "mySPI", Timestamp: 1}}
	require.NoError(t, db.Insert(r, true))

	err := db.Deregister(noAuthKeyStore{}, netip.Addr{}, false, "service:x://host/1", "a", nil, now)
	require.Error(t, err)
	require.Equal(t, 1, db.Len())
}

func TestScopeCanonicalizationMatchesAcrossOrderAndCase(t *testing.T) {
	t.Parallel()

	db := slp.NewDatabase()
	now := time.Unix(0, 0)
	require.NoError(t, db.Insert(reg("service:x://host/1", "B, a", 3600, now), true))

	entries, err := db.FindByType("service:x", "a,b", "", now)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestReplaceSourceAddsRefreshesAndEvicts(t *testing.T) {
	t.Parallel()

	db := slp.NewDatabase()
	now := time.Unix(0, 0)

	r1 := reg("service:x://host/1", "a", 3600, now)
	r1.Source = slp.SourceStatic
	r2 := reg("service:x://host/2", "a", 3600, now)
	r2.Source = slp.SourceStatic
	remote := reg("service:x://host/3", "a", 3600, now)
	remote.Source = slp.SourceRemote

	require.NoError(t, db.Insert(r1, true))
	require.NoError(t, db.Insert(r2, true))
	require.NoError(t, db.Insert(remote, true))
	require.Equal(t, 3, db.Len())

	// Reload drops host/2, keeps host/1 refreshed, adds host/4; host/3
	// (a different source) must survive untouched.
	r1Refreshed := reg("service:x://host/1", "a", 7200, now)
	r1Refreshed.Source = slp.SourceStatic
	r4 := reg("service:x://host/4", "a", 3600, now)
	r4.Source = slp.SourceStatic

	db.ReplaceSource(slp.SourceStatic, []slp.Registration{r1Refreshed, r4})

	entries := db.Snapshot()
	require.Len(t, entries, 3)

	byURL := make(map[string]slp.Registration, len(entries))
	for _, e := range entries {
		byURL[e.Reg.URL.URL] = e
	}

	_, gone := byURL["service:x://host/2"]
	require.False(t, gone)

	require.Equal(t, uint16(7200), byURL["service:x://host/1"].Reg.URL.Lifetime)
	require.Contains(t, byURL, "service:x://host/4")
	require.Contains(t, byURL, "service:x://host/3")
}
