// Package ledger owns the ledger directory lifecycle: creating and
// opening a "<name>.refreshmint/" directory, gating it against the
// engine's compiled version, and managing the logins/labels tree
// underneath it.
package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yonran/refreshmint/internal/gl"
	"github.com/yonran/refreshmint/internal/journal"
	"github.com/yonran/refreshmint/internal/rmerrors"
	"github.com/yonran/refreshmint/internal/vcs"
	"github.com/yonran/refreshmint/pkg/version"
)

// Suffix is the reserved directory name suffix every ledger directory
// must end with.
const Suffix = ".refreshmint"

// manifestName is the version manifest file at the ledger root.
const manifestName = "refreshmint.json"

// Manifest is the on-disk shape of refreshmint.json.
type Manifest struct {
	Version string `json:"version"`
}

// Ledger is an opened ledger directory.
type Ledger struct {
	Dir      string
	Manifest Manifest
	Repo     *vcs.Repo
}

var filenameSafe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName checks that name (a login or label) contains only
// filesystem- and filename-safe characters.
func ValidateName(name string) error {
	if name == "" || !filenameSafe.MatchString(name) {
		return rmerrors.InvalidInput("name", "must be non-empty and contain only letters, digits, '_' or '-'")
	}
	return nil
}

// Create makes a new ledger directory at dir, which must end in Suffix.
// It writes the version manifest, an empty general journal, an empty
// operations log, empty logins/ and extensions/ trees, and
// git-initializes the directory with an initial commit.
func Create(dir string) (*Ledger, error) {
	if !strings.HasSuffix(dir, Suffix) {
		return nil, rmerrors.InvalidInput("dir", "ledger directory name must end with "+Suffix)
	}
	if _, err := os.Stat(dir); err == nil {
		return nil, rmerrors.Conflict("ledger directory already exists: " + dir)
	}

	if err := os.MkdirAll(filepath.Join(dir, "logins"), 0o755); err != nil {
		return nil, rmerrors.IOFault("create logins directory", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "extensions"), 0o755); err != nil {
		return nil, rmerrors.IOFault("create extensions directory", err)
	}

	manifest := Manifest{Version: version.Version}
	if err := writeManifest(dir, manifest); err != nil {
		return nil, err
	}
	if err := gl.WriteAtomic(filepath.Join(dir, "general.journal"), nil); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "operations.jsonl"), nil, 0o644); err != nil {
		return nil, rmerrors.IOFault("create operations log", err)
	}

	repo, err := vcs.Init(dir)
	if err != nil {
		return nil, err
	}

	return &Ledger{Dir: dir, Manifest: manifest, Repo: repo}, nil
}

// Open opens an existing ledger directory, validating its name suffix
// and checking the version manifest against the engine's compiled
// version. It fails with KindUnsupported if the ledger's major version
// exceeds the engine's; a lower minor version is accepted as a migration
// hook point for a future internal/ledger/migrate.go.
func Open(dir string) (*Ledger, error) {
	if !strings.HasSuffix(dir, Suffix) {
		return nil, rmerrors.InvalidInput("dir", "ledger directory name must end with "+Suffix)
	}

	manifest, err := readManifest(dir)
	if err != nil {
		return nil, err
	}

	engineVersion, err := version.ParseSemver(version.Version)
	if err != nil {
		return nil, rmerrors.Wrap(rmerrors.KindIOFault, "parse engine version", err)
	}
	ledgerVersion, err := version.ParseSemver(manifest.Version)
	if err != nil {
		return nil, rmerrors.Wrap(rmerrors.KindParseError, "parse ledger manifest version", err).
			WithDetail("file", manifestName)
	}
	if !version.CompatibleWith(engineVersion, ledgerVersion) {
		return nil, rmerrors.Unsupported("ledger version " + manifest.Version + " is not compatible with engine version " + version.Version)
	}

	repo, err := vcs.Open(dir)
	if err != nil {
		return nil, err
	}

	return &Ledger{Dir: dir, Manifest: manifest, Repo: repo}, nil
}

func writeManifest(dir string, m Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return rmerrors.Wrap(rmerrors.KindIOFault, "encode ledger manifest", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), raw, 0o644); err != nil {
		return rmerrors.IOFault("write ledger manifest", err)
	}
	return nil
}

func readManifest(dir string) (Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, rmerrors.NotFound("ledger manifest", dir)
		}
		return Manifest{}, rmerrors.IOFault("read ledger manifest", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, rmerrors.Wrap(rmerrors.KindParseError, "decode ledger manifest", err)
	}
	return m, nil
}

// LoginDir returns the path to a login's directory under this ledger.
func (l *Ledger) LoginDir(login string) string {
	return filepath.Join(l.Dir, "logins", login)
}

// LabelDir returns the path to a label's account directory under a login.
func (l *Ledger) LabelDir(login, label string) string {
	return filepath.Join(l.LoginDir(login), "accounts", label)
}

// DocumentsDir returns the downloaded-statements directory for a label.
func (l *Ledger) DocumentsDir(login, label string) string {
	return filepath.Join(l.LabelDir(login, label), "documents")
}

// GeneralJournalPath returns the path to the ledger's general.journal.
func (l *Ledger) GeneralJournalPath() string {
	return filepath.Join(l.Dir, "general.journal")
}

// OperationsLogPath returns the path to the ledger's top-level
// operations.jsonl.
func (l *Ledger) OperationsLogPath() string {
	return filepath.Join(l.Dir, "operations.jsonl")
}

// LabelConfig maps one label to its general-ledger account name.
type LabelConfig struct {
	GLAccount string `json:"gl_account"`
}

// LoginConfig is the on-disk shape of logins/<login>/config.json: the
// login's default driver extension and its label -> GL account map
//.
type LoginConfig struct {
	Extension string                 `json:"extension,omitempty"`
	Accounts  map[string]LabelConfig `json:"accounts"`
}

// LoginLockPath returns the advisory lock file serializing mutation of
// one login's accounts.
func (l *Ledger) LoginLockPath(login string) string {
	return filepath.Join(l.LoginDir(login), ".lock")
}

func (l *Ledger) loginConfigPath(login string) string {
	return filepath.Join(l.LoginDir(login), "config.json")
}

// ReadLoginConfig loads logins/<login>/config.json.
func (l *Ledger) ReadLoginConfig(login string) (LoginConfig, error) {
	raw, err := os.ReadFile(l.loginConfigPath(login))
	if err != nil {
		if os.IsNotExist(err) {
			return LoginConfig{}, rmerrors.NotFound("login", login)
		}
		return LoginConfig{}, rmerrors.IOFault("read login config", err)
	}
	var cfg LoginConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return LoginConfig{}, rmerrors.Wrap(rmerrors.KindParseError, "decode login config", err)
	}
	return cfg, nil
}

func (l *Ledger) writeLoginConfig(login string, cfg LoginConfig) error {
	if cfg.Accounts == nil {
		cfg.Accounts = map[string]LabelConfig{}
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return rmerrors.Wrap(rmerrors.KindIOFault, "encode login config", err)
	}
	if err := os.WriteFile(l.loginConfigPath(login), raw, 0o644); err != nil {
		return rmerrors.IOFault("write login config", err)
	}
	return nil
}

// CreateLogin creates logins/<login>/ with its config.json, advisory
// .lock file, and an empty accounts/ tree, and commits the change.
// extension names the login's default driver extension bundle and may
// be empty.
func (l *Ledger) CreateLogin(login, extension string) error {
	if err := ValidateName(login); err != nil {
		return err
	}
	dir := l.LoginDir(login)
	if _, err := os.Stat(dir); err == nil {
		return rmerrors.Conflict("login already exists: " + login)
	}
	if err := os.MkdirAll(filepath.Join(dir, "accounts"), 0o755); err != nil {
		return rmerrors.IOFault("create login directory", err)
	}
	if err := os.WriteFile(l.LoginLockPath(login), nil, 0o644); err != nil {
		return rmerrors.IOFault("create login lock file", err)
	}
	if err := l.writeLoginConfig(login, LoginConfig{Extension: extension}); err != nil {
		return err
	}

	return l.Repo.CommitAll("login: create " + login)
}

// RenameLogin moves logins/<from>/ to logins/<to>/ and commits the
// change. GL source locators in general.journal are not rewritten;
// callers renaming a login with posted entries re-post or hand-edit.
func (l *Ledger) RenameLogin(from, to string) error {
	if err := ValidateName(to); err != nil {
		return err
	}
	if _, err := os.Stat(l.LoginDir(from)); os.IsNotExist(err) {
		return rmerrors.NotFound("login", from)
	}
	if _, err := os.Stat(l.LoginDir(to)); err == nil {
		return rmerrors.Conflict("login already exists: " + to)
	}
	if err := os.Rename(l.LoginDir(from), l.LoginDir(to)); err != nil {
		return rmerrors.IOFault("rename login directory", err)
	}
	return l.Repo.CommitAll("login: rename " + from + " to " + to)
}

// RemoveLogin deletes logins/<login>/ entirely and commits the removal.
func (l *Ledger) RemoveLogin(login string) error {
	dir := l.LoginDir(login)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return rmerrors.NotFound("login", login)
	}
	if err := os.RemoveAll(dir); err != nil {
		return rmerrors.IOFault("remove login directory", err)
	}
	return l.Repo.CommitAll("login: remove " + login)
}

// CreateLabel creates accounts/<label>/ under login with an empty
// account.journal, operations.jsonl, and documents/, registers the
// label's GL account in the login config, and commits the change.
func (l *Ledger) CreateLabel(login, label, glAccount string) error {
	if err := ValidateName(label); err != nil {
		return err
	}
	cfg, err := l.ReadLoginConfig(login)
	if err != nil {
		return err
	}

	dir := l.LabelDir(login, label)
	if _, err := os.Stat(dir); err == nil {
		return rmerrors.Conflict("label already exists: " + label)
	}
	if err := os.MkdirAll(filepath.Join(dir, "documents"), 0o755); err != nil {
		return rmerrors.IOFault("create label directory", err)
	}
	if err := journal.WriteAtomic(filepath.Join(dir, "account.journal"), nil); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "operations.jsonl"), nil, 0o644); err != nil {
		return rmerrors.IOFault("create operations log", err)
	}

	if cfg.Accounts == nil {
		cfg.Accounts = map[string]LabelConfig{}
	}
	cfg.Accounts[label] = LabelConfig{GLAccount: glAccount}
	if err := l.writeLoginConfig(login, cfg); err != nil {
		return err
	}

	return l.Repo.CommitAll("label: create " + login + "/" + label)
}

// RemoveLabel deletes accounts/<label>/ under login, prunes it from the
// login config, and commits the removal.
func (l *Ledger) RemoveLabel(login, label string) error {
	dir := l.LabelDir(login, label)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return rmerrors.NotFound("label", label)
	}
	if err := os.RemoveAll(dir); err != nil {
		return rmerrors.IOFault("remove label directory", err)
	}
	if cfg, err := l.ReadLoginConfig(login); err == nil {
		delete(cfg.Accounts, label)
		if err := l.writeLoginConfig(login, cfg); err != nil {
			return err
		}
	}
	return l.Repo.CommitAll("label: remove " + login + "/" + label)
}

// AccountJournalLocator returns the path of a label's account journal
// relative to the ledger root, the form used in GL source tags.
func AccountJournalLocator(login, label string) string {
	return "logins/" + login + "/accounts/" + label + "/account.journal"
}

// ExtensionManifest is the on-disk shape of
// extensions/<ext>/manifest.json.
type ExtensionManifest struct {
	Name    string `json:"name"`
	Extract string `json:"extract,omitempty"`
	Rules   string `json:"rules,omitempty"`
	IDField string `json:"id_field,omitempty"`
}

// Extension describes a discovered extension bundle.
type Extension struct {
	Name     string
	Dir      string
	Manifest ExtensionManifest
	Runnable bool // true iff driver.mjs is present alongside the manifest
}

// ListExtensions discovers every extensions/<ext>/manifest.json bundle.
func (l *Ledger) ListExtensions() ([]Extension, error) {
	root := filepath.Join(l.Dir, "extensions")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Extension{}, nil
		}
		return nil, rmerrors.IOFault("list extensions", err)
	}

	var out []Extension
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		extDir := filepath.Join(root, entry.Name())
		manifestPath := filepath.Join(extDir, "manifest.json")
		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			continue // not a bundle, just a stray directory
		}
		var m ExtensionManifest
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, rmerrors.Wrap(rmerrors.KindParseError, "decode extension manifest", err).
				WithDetail("file", manifestPath)
		}
		_, driverErr := os.Stat(filepath.Join(extDir, "driver.mjs"))
		out = append(out, Extension{
			Name:     entry.Name(),
			Dir:      extDir,
			Manifest: m,
			Runnable: driverErr == nil,
		})
	}
	return out, nil
}
