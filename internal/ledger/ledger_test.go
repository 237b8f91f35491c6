package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yonran/refreshmint/internal/rmerrors"
	"github.com/yonran/refreshmint/pkg/version"
)

func TestCreateRejectsWrongSuffix(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mybooks")
	_, err := Create(dir)
	require.Error(t, err)
}

func TestCreateThenOpenRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mybooks.refreshmint")
	created, err := Create(dir)
	require.NoError(t, err)
	require.Equal(t, version.Version, created.Manifest.Version)

	opened, err := Open(dir)
	require.NoError(t, err)
	require.Equal(t, created.Manifest.Version, opened.Manifest.Version)

	_, err = os.Stat(filepath.Join(dir, "general.journal"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, ".git"))
	require.NoError(t, err)
}

func TestCreateFailsIfDirectoryAlreadyExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mybooks.refreshmint")
	_, err := Create(dir)
	require.NoError(t, err)

	_, err = Create(dir)
	require.Error(t, err)
}

func TestOpenRejectsIncompatibleMajorVersion(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mybooks.refreshmint")
	_, err := Create(dir)
	require.NoError(t, err)

	require.NoError(t, writeManifest(dir, Manifest{Version: "99.0.0"}))

	_, err = Open(dir)
	require.Error(t, err)
	rmErr, ok := rmerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rmerrors.KindUnsupported, rmErr.Kind)
}

func TestOpenAcceptsLowerMinorVersion(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mybooks.refreshmint")
	_, err := Create(dir)
	require.NoError(t, err)

	engineVersion, err := version.ParseSemver(version.Version)
	require.NoError(t, err)
	require.NoError(t, writeManifest(dir, Manifest{Version: (version.Semver{
		Major: engineVersion.Major,
		Minor: 0,
		Patch: 0,
	}).String()}))

	_, err = Open(dir)
	require.NoError(t, err)
}

func TestCreateAndRemoveLoginAndLabel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mybooks.refreshmint")
	l, err := Create(dir)
	require.NoError(t, err)

	require.NoError(t, l.CreateLogin("chase", "chase-bank"))
	require.NoError(t, l.CreateLabel("chase", "checking", "Assets:Checking"))

	_, err = os.Stat(filepath.Join(l.LabelDir("chase", "checking"), "account.journal"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(l.LabelDir("chase", "checking"), "documents"))
	require.NoError(t, err)
	_, err = os.Stat(l.LoginLockPath("chase"))
	require.NoError(t, err)

	cfg, err := l.ReadLoginConfig("chase")
	require.NoError(t, err)
	require.Equal(t, "chase-bank", cfg.Extension)
	require.Equal(t, "Assets:Checking", cfg.Accounts["checking"].GLAccount)

	require.NoError(t, l.RemoveLabel("chase", "checking"))
	cfg, err = l.ReadLoginConfig("chase")
	require.NoError(t, err)
	require.NotContains(t, cfg.Accounts, "checking")
	_, err = os.Stat(l.LabelDir("chase", "checking"))
	require.True(t, os.IsNotExist(err))

	require.NoError(t, l.RemoveLogin("chase"))
	_, err = os.Stat(l.LoginDir("chase"))
	require.True(t, os.IsNotExist(err))
}

func TestRenameLoginMovesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mybooks.refreshmint")
	l, err := Create(dir)
	require.NoError(t, err)

	require.NoError(t, l.CreateLogin("chase", ""))
	require.NoError(t, l.RenameLogin("chase", "chase-personal"))

	_, err = os.Stat(l.LoginDir("chase"))
	require.True(t, os.IsNotExist(err))
	cfg, err := l.ReadLoginConfig("chase-personal")
	require.NoError(t, err)
	require.NotNil(t, cfg.Accounts)
}

func TestCreateLoginRejectsUnsafeName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mybooks.refreshmint")
	l, err := Create(dir)
	require.NoError(t, err)

	err = l.CreateLogin("../escape", "")
	require.Error(t, err)
}

func TestCreateLabelRequiresExistingLogin(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mybooks.refreshmint")
	l, err := Create(dir)
	require.NoError(t, err)

	err = l.CreateLabel("nonexistent", "checking", "Assets:Checking")
	require.Error(t, err)
}

func TestListExtensionsDiscoversManifestsAndRunnability(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mybooks.refreshmint")
	l, err := Create(dir)
	require.NoError(t, err)

	extDir := filepath.Join(dir, "extensions", "chase-bank")
	require.NoError(t, os.MkdirAll(extDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(extDir, "manifest.json"),
		[]byte(`{"name":"Chase Bank","extract":"extract.mjs","id_field":"bankId"}`), 0o644))

	exts, err := l.ListExtensions()
	require.NoError(t, err)
	require.Len(t, exts, 1)
	require.Equal(t, "Chase Bank", exts[0].Manifest.Name)
	require.Equal(t, "extract.mjs", exts[0].Manifest.Extract)
	require.False(t, exts[0].Runnable)

	require.NoError(t, os.WriteFile(filepath.Join(extDir, "driver.mjs"), []byte("export default {}"), 0o644))
	exts, err = l.ListExtensions()
	require.NoError(t, err)
	require.True(t, exts[0].Runnable)
}
