package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/yonran/refreshmint/internal/secretstore"
)

// loginKeychains caches one in-process keychain per login for the
// lifetime of a single invocation. A real deployment would back this
// with the platform keychain; no such provider appears anywhere in the
// example pack, so MemoryKeychain (secretstore's own reference
// implementation) stands in here and is documented as a stdlib-only gap.
var loginKeychains = map[string]*secretstore.MemoryKeychain{}

func keychainFor(login string) *secretstore.MemoryKeychain {
	if kc, ok := loginKeychains[login]; ok {
		return kc
	}
	kc := secretstore.NewMemoryKeychain()
	loginKeychains[login] = kc
	return kc
}

func (a *app) handleSecrets(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("secrets: expected a subcommand (set, get, delete, list)")
	}
	switch args[0] {
	case "set":
		return secretsSet(args[1:])
	case "get":
		return secretsGet(args[1:])
	case "delete":
		return secretsDelete(args[1:])
	case "list":
		return secretsList(args[1:])
	default:
		return fmt.Errorf("secrets: unknown subcommand %q", args[0])
	}
}

func secretsSet(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: refreshmint secrets set <login> <domain> <name>")
	}
	store := secretstore.Open(keychainFor(args[0]), args[0])
	fmt.Fprint(os.Stderr, "value: ")
	value, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return err
	}
	for len(value) > 0 && (value[len(value)-1] == '\n' || value[len(value)-1] == '\r') {
		value = value[:len(value)-1]
	}
	return store.Set(secretstore.Key{Domain: args[1], Name: args[2]}, value)
}

func secretsGet(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: refreshmint secrets get <login> <domain> <name>")
	}
	store := secretstore.Open(keychainFor(args[0]), args[0])
	value, err := store.Get(secretstore.Key{Domain: args[1], Name: args[2]})
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func secretsDelete(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: refreshmint secrets delete <login> <domain> <name>")
	}
	store := secretstore.Open(keychainFor(args[0]), args[0])
	return store.Delete(secretstore.Key{Domain: args[1], Name: args[2]})
}

func secretsList(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: refreshmint secrets list <login>")
	}
	store := secretstore.Open(keychainFor(args[0]), args[0])
	keys, err := store.Enumerate()
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Printf("%s\t%s\n", k.Domain, k.Name)
	}
	return nil
}
