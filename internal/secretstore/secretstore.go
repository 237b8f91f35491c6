// Package secretstore implements the (domain, name) -> value secret
// store backed by the OS keychain. Because keychain APIs
// cannot enumerate their own entries, a sidecar index entry under the
// reserved user "_index" tracks every live key; every Set updates it and
// every Delete prunes it.
package secretstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yonran/refreshmint/internal/rmerrors"
)

// indexUser is the reserved keychain user that stores the JSON-encoded
// enumeration index for a service. It can never itself be a valid
// domain/name key, since Key rejects empty domains.
const indexUser = "_index"

// KeychainProvider is the minimal surface the OS keychain must expose.
// Implementations wrap the platform API (Keychain Services on macOS,
// Credential Manager on Windows, Secret Service on Linux); MemoryKeychain
// below is the in-process reference implementation used by tests and by
// any platform without a native keychain.
type KeychainProvider interface {
	// SetItem stores value under (service, user), creating or overwriting it.
	SetItem(service, user, value string) error
	// GetItem retrieves the value stored at (service, user).
	GetItem(service, user string) (string, error)
	// DeleteItem removes the entry at (service, user), if present.
	DeleteItem(service, user string) error
}

// Store is a keychain-backed secret store scoped to one logical account,
// identified by a keychain service string.
type Store struct {
	provider KeychainProvider
	service  string
}

// Open binds a Store to the given keychain service (typically the
// login's identifier).
func Open(provider KeychainProvider, service string) *Store {
	return &Store{provider: provider, service: service}
}

// Key identifies one secret as a (domain, name) pair.
type Key struct {
	Domain string
	Name   string
}

func (k Key) user() (string, error) {
	if k.Domain == "" || k.Name == "" {
		return "", rmerrors.InvalidInput("key", "domain and name must both be non-empty")
	}
	if k.Domain == indexUser {
		return "", rmerrors.InvalidInput("key", "domain must not be the reserved index user")
	}
	return k.Domain + "/" + k.Name, nil
}

func parseUser(user string) (Key, bool) {
	domain, name, ok := strings.Cut(user, "/")
	if !ok || domain == "" || name == "" {
		return Key{}, false
	}
	return Key{Domain: domain, Name: name}, true
}

// Get retrieves the secret value for key.
func (s *Store) Get(key Key) (string, error) {
	user, err := key.user()
	if err != nil {
		return "", err
	}
	value, err := s.provider.GetItem(s.service, user)
	if err != nil {
		return "", rmerrors.Wrap(rmerrors.KindNotFound, fmt.Sprintf("secret %s not found", user), err)
	}
	return value, nil
}

// Set stores value for key and updates the enumeration index.
func (s *Store) Set(key Key, value string) error {
	user, err := key.user()
	if err != nil {
		return err
	}
	if err := s.provider.SetItem(s.service, user, value); err != nil {
		return rmerrors.IOFault("write secret", err)
	}
	return s.addToIndex(user)
}

// Delete removes key's secret and prunes the enumeration index.
func (s *Store) Delete(key Key) error {
	user, err := key.user()
	if err != nil {
		return err
	}
	if err := s.provider.DeleteItem(s.service, user); err != nil {
		return rmerrors.IOFault("delete secret", err)
	}
	return s.removeFromIndex(user)
}

// Enumerate lists every (domain, name) key currently stored.
func (s *Store) Enumerate() ([]Key, error) {
	users, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(users))
	for _, u := range users {
		if k, ok := parseUser(u); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// AllValues returns every stored secret value. It exists solely so the
// sandbox's output scrubber can redact those exact byte sequences from
// anything a driver script reads back from the page.
func (s *Store) AllValues() ([]string, error) {
	users, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(users))
	for _, u := range users {
		v, err := s.provider.GetItem(s.service, u)
		if err != nil {
			continue // the index may lag a keychain entry removed out of band
		}
		if v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}

func (s *Store) readIndex() ([]string, error) {
	raw, err := s.provider.GetItem(s.service, indexUser)
	if err != nil {
		return nil, nil // no index yet means no secrets yet
	}
	var users []string
	if raw == "" {
		return users, nil
	}
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return nil, rmerrors.Wrap(rmerrors.KindParseError, "decode secret index", err)
	}
	return users, nil
}

func (s *Store) writeIndex(users []string) error {
	sort.Strings(users)
	raw, err := json.Marshal(users)
	if err != nil {
		return rmerrors.Wrap(rmerrors.KindIOFault, "encode secret index", err)
	}
	if err := s.provider.SetItem(s.service, indexUser, string(raw)); err != nil {
		return rmerrors.IOFault("write secret index", err)
	}
	return nil
}

func (s *Store) addToIndex(user string) error {
	users, err := s.readIndex()
	if err != nil {
		return err
	}
	for _, u := range users {
		if u == user {
			return nil
		}
	}
	return s.writeIndex(append(users, user))
}

func (s *Store) removeFromIndex(user string) error {
	users, err := s.readIndex()
	if err != nil {
		return err
	}
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u != user {
			out = append(out, u)
		}
	}
	return s.writeIndex(out)
}

// MemoryKeychain is an in-process KeychainProvider reference
// implementation, used by tests and by platforms with no native
// keychain.
type MemoryKeychain struct {
	mu    sync.Mutex
	items map[string]string // "service\x00user" -> value
}

// NewMemoryKeychain returns an empty MemoryKeychain.
func NewMemoryKeychain() *MemoryKeychain {
	return &MemoryKeychain{items: make(map[string]string)}
}

func memKey(service, user string) string { return service + "\x00" + user }

func (m *MemoryKeychain) SetItem(service, user, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[memKey(service, user)] = value
	return nil
}

func (m *MemoryKeychain) GetItem(service, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[memKey(service, user)]
	if !ok {
		return "", rmerrors.NotFound("secret", user)
	}
	return v, nil
}

func (m *MemoryKeychain) DeleteItem(service, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, memKey(service, user))
	return nil
}

// HostMatchesDomain reports whether host (as seen by the browser driver,
// scheme and port already stripped) matches a secret's domain,
// case-insensitively.
func HostMatchesDomain(host, domain string) bool {
	return strings.EqualFold(strings.TrimSpace(host), strings.TrimSpace(domain))
}
