package sandbox

import "github.com/yonran/refreshmint/internal/secretstore"

// SecretResolver is the sandbox's view of the Secret Store: resolve a
// (domain, name) pair at fill time, and enumerate every stored value so
// the output scrubber can redact them.
type SecretResolver interface {
	Resolve(domain, name string) (string, bool)
	AllValues() []string
}

type storeResolver struct {
	store *secretstore.Store
}

// NewStoreResolver adapts a keychain-backed Store to SecretResolver.
func NewStoreResolver(store *secretstore.Store) SecretResolver {
	return &storeResolver{store: store}
}

// Resolve matches domain against every stored key's domain
// case-insensitively (secretstore.HostMatchesDomain), since the page
// host passed in here and the domain a secret was set under may differ
// only in case.
func (r *storeResolver) Resolve(domain, name string) (string, bool) {
	keys, err := r.store.Enumerate()
	if err != nil {
		return "", false
	}
	for _, k := range keys {
		if k.Name != name || !secretstore.HostMatchesDomain(domain, k.Domain) {
			continue
		}
		v, err := r.store.Get(k)
		if err != nil {
			return "", false
		}
		return v, true
	}
	return "", false
}

func (r *storeResolver) AllValues() []string {
	values, err := r.store.AllValues()
	if err != nil {
		return nil
	}
	return values
}

// noSecrets is used when a Runtime is built without a Secret Store (e.g.
// driver scripts that never touch page.fill with a secret name).
type noSecrets struct{}

func (noSecrets) Resolve(string, string) (string, bool) { return "", false }
func (noSecrets) AllValues() []string                   { return nil }
