package secretstore

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	kc := NewMemoryKeychain()
	store := Open(kc, "chase")

	key := Key{Domain: "chase.com", Name: "password"}
	require.NoError(t, store.Set(key, "hunter2"))

	got, err := store.Get(key)
	require.NoError(t, err)
	require.Equal(t, "hunter2", got)

	require.NoError(t, store.Delete(key))
	_, err = store.Get(key)
	require.Error(t, err)
}

func TestEnumerateReflectsSetAndDelete(t *testing.T) {
	kc := NewMemoryKeychain()
	store := Open(kc, "chase")

	require.NoError(t, store.Set(Key{Domain: "chase.com", Name: "password"}, "a"))
	require.NoError(t, store.Set(Key{Domain: "chase.com", Name: "mfa_seed"}, "b"))

	keys, err := store.Enumerate()
	require.NoError(t, err)
	require.Len(t, keys, 2)

	require.NoError(t, store.Delete(Key{Domain: "chase.com", Name: "password"}))
	keys, err = store.Enumerate()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "mfa_seed", keys[0].Name)
}

func TestAllValuesForScrubbing(t *testing.T) {
	kc := NewMemoryKeychain()
	store := Open(kc, "chase")

	require.NoError(t, store.Set(Key{Domain: "chase.com", Name: "password"}, "hunter2"))
	require.NoError(t, store.Set(Key{Domain: "chase.com", Name: "mfa_seed"}, "abcd1234"))

	values, err := store.AllValues()
	require.NoError(t, err)
	sort.Strings(values)
	require.Equal(t, []string{"abcd1234", "hunter2"}, values)
}

func TestKeyRejectsEmptyDomainOrName(t *testing.T) {
	kc := NewMemoryKeychain()
	store := Open(kc, "chase")

	err := store.Set(Key{Domain: "", Name: "password"}, "x")
	require.Error(t, err)

	err = store.Set(Key{Domain: "chase.com", Name: ""}, "x")
	require.Error(t, err)
}

func TestKeyRejectsReservedIndexDomain(t *testing.T) {
	kc := NewMemoryKeychain()
	store := Open(kc, "chase")

	err := store.Set(Key{Domain: "_index", Name: "anything"}, "x")
	require.Error(t, err)
}

func TestStoresAreIsolatedByService(t *testing.T) {
	kc := NewMemoryKeychain()
	chase := Open(kc, "chase")
	wells := Open(kc, "wells-fargo")

	require.NoError(t, chase.Set(Key{Domain: "chase.com", Name: "password"}, "a"))

	_, err := wells.Get(Key{Domain: "chase.com", Name: "password"})
	require.Error(t, err)
}

func TestHostMatchesDomainCaseInsensitive(t *testing.T) {
	require.True(t, HostMatchesDomain("Chase.com", "chase.com"))
	require.False(t, HostMatchesDomain("evil.com", "chase.com"))
}
