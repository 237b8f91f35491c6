package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yonran/refreshmint/internal/secretstore"
)

func TestStoreResolverMatchesDomainCaseInsensitively(t *testing.T) {
	store := secretstore.Open(secretstore.NewMemoryKeychain(), "chase-login")
	require.NoError(t, store.Set(secretstore.Key{Domain: "Chase.com", Name: "bank-password"}, "s3cr3t-value"))

	resolver := NewStoreResolver(store)

	value, ok := resolver.Resolve("chase.com", "bank-password")
	require.True(t, ok)
	require.Equal(t, "s3cr3t-value", value)

	_, ok = resolver.Resolve("evil.com", "bank-password")
	require.False(t, ok)
}

func TestStoreResolverAllValuesIncludesEveryStoredSecret(t *testing.T) {
	store := secretstore.Open(secretstore.NewMemoryKeychain(), "chase-login")
	require.NoError(t, store.Set(secretstore.Key{Domain: "chase.com", Name: "bank-password"}, "s3cr3t-value"))
	require.NoError(t, store.Set(secretstore.Key{Domain: "chase.com", Name: "api-key"}, "topsecret123"))

	resolver := NewStoreResolver(store)
	require.ElementsMatch(t, []string{"s3cr3t-value", "topsecret123"}, resolver.AllValues())
}
