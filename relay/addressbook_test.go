package relay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeBook(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "linkers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAddressBookMissingPathReturnsEmpty(t *testing.T) {
	book, err := LoadAddressBook("")
	require.NoError(t, err)
	require.Empty(t, book.Linkers)

	book, err = LoadAddressBook(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Empty(t, book.Linkers)
}

func TestLoadAddressBookParsesEntries(t *testing.T) {
	path := writeBook(t, `
linkers:
  - network: chain-remote
    address: "0x00000000000000000000000000000000000000AB"
  - network: chain-sidecar
    address: "0x00000000000000000000000000000000000000AC"
`)
	book, err := LoadAddressBook(path)
	require.NoError(t, err)
	require.Len(t, book.Linkers, 2)
	require.Equal(t, "chain-remote", book.Linkers[0].Network)
}

func TestLoadAddressBookRejectsDuplicatesAndBlanks(t *testing.T) {
	path := writeBook(t, `
linkers:
  - network: chain-remote
    address: "0xAB"
  - network: " chain-remote "
    address: "0xAC"
`)
	_, err := LoadAddressBook(path)
	require.ErrorContains(t, err, "twice")

	path = writeBook(t, `
linkers:
  - network: chain-remote
    address: ""
`)
	_, err = LoadAddressBook(path)
	require.ErrorContains(t, err, "empty address")
}

func TestSeedRegistersEntries(t *testing.T) {
	admin := [20]byte{0xA1}
	registry := NewRegistry(admin, nil)
	book := &AddressBook{Linkers: []AddressBookEntry{
		{Network: "chain-remote", Address: "0xAB"},
		{Network: "chain-sidecar", Address: "0xAC"},
	}}

	require.NoError(t, book.Seed(registry, admin))
	got, ok := registry.Resolve("chain-remote")
	require.True(t, ok)
	require.Equal(t, "0xAB", got)
	require.ElementsMatch(t, []string{"chain-remote", "chain-sidecar"}, registry.Networks())
}
