package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryStore() *Store {
	ring := keyring.NewArrayKeyring(nil)
	return &Store{Open: func() (keyring.Keyring, error) { return ring, nil }}
}

func TestStore_SetGet(t *testing.T) {
	s := memoryStore()
	require.NoError(t, s.Set(BackendTokenKey, "tok-1"))

	got, err := s.Get(BackendTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)
}

func TestResolveToken_PrefersConfigured(t *testing.T) {
	s := memoryStore()
	require.NoError(t, s.Set(BackendTokenKey, "from-keyring"))

	got, err := s.ResolveToken(" from-env ")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}

func TestResolveToken_FallsBackToKeyring(t *testing.T) {
	s := memoryStore()
	require.NoError(t, s.Set(BackendTokenKey, "from-keyring"))

	got, err := s.ResolveToken("")
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", got)
}

func TestResolveToken_MissingEntryIsEmpty(t *testing.T) {
	got, err := memoryStore().ResolveToken("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
