package slp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/urbasus/goslp/internal/slp"
)

func TestStaticKeyStoreLookupUnknownSPI(t *testing.T) {
	t.Parallel()

	store := slp.NewStaticKeyStore()
	_, err := store.LookupKey("spi1")
	require.ErrorIs(t, err, slp.ErrAuthUnknownSPI)
}

func TestStaticKeyStoreAddAndLookup(t *testing.T) {
	t.Parallel()

	store := slp.NewStaticKeyStore()
	store.Add(slp.AuthKey{SPI: "spi1"})

	got, err := store.LookupKey("spi1")
	require.NoError(t, err)
	require.Equal(t, "spi1", got.SPI)
}

func TestStaticKeyStoreFirstAddedBecomesCurrent(t *testing.T) {
	t.Parallel()

	store := slp.NewStaticKeyStore()
	store.Add(slp.AuthKey{SPI: "spi1"})
	store.Add(slp.AuthKey{SPI: "spi2"})

	require.Equal(t, "spi1", store.CurrentKey().SPI)
}

func TestStaticKeyStoreSetCurrent(t *testing.T) {
	t.Parallel()

	store := slp.NewStaticKeyStore()
	store.Add(slp.AuthKey{SPI: "spi1"})
	store.Add(slp.AuthKey{SPI: "spi2"})
	store.SetCurrent("spi2")

	require.Equal(t, "spi2", store.CurrentKey().SPI)
}

func TestStaticKeyStoreCurrentKeyEmptyWhenNoneAdded(t *testing.T) {
	t.Parallel()

	store := slp.NewStaticKeyStore()
	require.Equal(t, "", store.CurrentKey().SPI)
}
