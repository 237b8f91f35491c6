package vcs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitCreatesRepositoryWithInitialCommit(t *testing.T) {
	dir := t.TempDir()

	repo, err := Init(dir)
	require.NoError(t, err)
	require.NotEmpty(t, repo.Head())

	_, err = os.Stat(filepath.Join(dir, ".git"))
	require.NoError(t, err)
}

func TestCommitFilesOnlyStagesGivenPaths(t *testing.T) {
	dir := t.TempDir()
	repo, err := Init(dir)
	require.NoError(t, err)
	firstHead := repo.Head()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "general.journal"), []byte("data"), 0o644))
	require.NoError(t, repo.CommitFiles("post: record a transaction", []string{"general.journal"}))

	require.NotEqual(t, firstHead, repo.Head())
}

func TestCommitIsNoopWhenNothingChanged(t *testing.T) {
	dir := t.TempDir()
	repo, err := Init(dir)
	require.NoError(t, err)
	head := repo.Head()

	require.NoError(t, repo.CommitAll("post: nothing to commit"))
	require.Equal(t, head, repo.Head())
}

func TestOpenExistingRepository(t *testing.T) {
	dir := t.TempDir()
	_, err := Init(dir)
	require.NoError(t, err)

	repo, err := Open(dir)
	require.NoError(t, err)
	require.NotEmpty(t, repo.Head())
}

func TestCommitMessagePrefix(t *testing.T) {
	require.Equal(t, "post:", CommitMessagePrefix("post"))
	require.Equal(t, "unpost:", CommitMessagePrefix("unpost"))
}
