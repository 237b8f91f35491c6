// Package vcs wraps the embedded version-control repository every ledger
// directory carries. Each mutating reconciliation or ledger-layout
// operation commits its own change set, so "what changed and why" is
// recoverable from git history without the engine maintaining its own
// undo log on top of the journal files themselves.
package vcs

import (
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/yonran/refreshmint/internal/rmerrors"
)

// Repo is a thin wrapper over a go-git repository rooted at a ledger
// directory.
type Repo struct {
	repo *git.Repository
	now  func() time.Time
}

// Init creates a new repository at dir and records an initial commit.
// It is called once, when internal/ledger creates a new ledger directory.
func Init(dir string) (*Repo, error) {
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return nil, rmerrors.Wrap(rmerrors.KindIOFault, "initialize ledger repository", err)
	}
	r := &Repo{repo: repo, now: time.Now}
	if err := r.CommitAll("init: create ledger"); err != nil {
		return nil, err
	}
	if r.Head() == "" {
		// An empty directory leaves nothing to stage; record the initial
		// commit anyway so the repository always has a HEAD.
		wt, err := repo.Worktree()
		if err != nil {
			return nil, rmerrors.Wrap(rmerrors.KindIOFault, "open ledger worktree", err)
		}
		sig := &object.Signature{Name: "refreshmint", Email: "refreshmint@localhost", When: r.now()}
		if _, err := wt.Commit("init: create ledger", &git.CommitOptions{Author: sig, AllowEmptyCommits: true}); err != nil {
			return nil, rmerrors.Wrap(rmerrors.KindIOFault, "commit ledger change", err)
		}
	}
	return r, nil
}

// Open opens the repository already present at dir.
func Open(dir string) (*Repo, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, rmerrors.Wrap(rmerrors.KindIOFault, "open ledger repository", err)
	}
	return &Repo{repo: repo, now: time.Now}, nil
}

// CommitFiles stages the given paths (relative to the repository root)
// and commits them with msg. A mutating operation that only touches a
// known set of files (an account journal, general.journal, an operations
// log) should call this rather than CommitAll, so the commit's diff is
// exactly the files that operation changed.
func (r *Repo) CommitFiles(msg string, paths []string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return rmerrors.Wrap(rmerrors.KindIOFault, "open ledger worktree", err)
	}
	for _, p := range paths {
		if _, err := wt.Add(p); err != nil {
			return rmerrors.Wrap(rmerrors.KindIOFault, "stage "+p, err)
		}
	}
	return r.commit(wt, msg)
}

// CommitAll stages every tracked and untracked change under the
// repository root and commits it with msg. Used for whole-directory
// operations like ledger creation and login/label creation, where the
// exact file list is not known in advance.
func (r *Repo) CommitAll(msg string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return rmerrors.Wrap(rmerrors.KindIOFault, "open ledger worktree", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return rmerrors.Wrap(rmerrors.KindIOFault, "stage ledger changes", err)
	}
	return r.commit(wt, msg)
}

func (r *Repo) commit(wt *git.Worktree, msg string) error {
	status, err := wt.Status()
	if err != nil {
		return rmerrors.Wrap(rmerrors.KindIOFault, "read ledger worktree status", err)
	}
	if status.IsClean() {
		return nil
	}

	sig := &object.Signature{
		Name:  "refreshmint",
		Email: "refreshmint@localhost",
		When:  r.now(),
	}
	if _, err := wt.Commit(msg, &git.CommitOptions{Author: sig}); err != nil {
		return rmerrors.Wrap(rmerrors.KindIOFault, "commit ledger change", err)
	}
	return nil
}

// Head returns the current HEAD commit hash as a string, or "" if the
// repository has no commits yet.
func (r *Repo) Head() string {
	ref, err := r.repo.Head()
	if err != nil {
		return ""
	}
	return ref.Hash().String()
}

// CommitMessagePrefix returns the conventional message prefix for an
// operation kind, e.g. "post:", "unpost:", used by internal/reconcile so
// every commit's one-line summary is greppable by operation type.
func CommitMessagePrefix(kind string) string {
	return kind + ":"
}
