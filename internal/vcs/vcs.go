// Package vcs looks up the git revision of the content tree so build
// reports can name the commit they were produced from.
package vcs

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
)

// Revision describes the checked-out state of a repository.
type Revision struct {
	Commit string
	Branch string
	Dirty  bool
}

// Short returns the abbreviated commit, suffixed with "-dirty" when the
// worktree has uncommitted changes.
func (r Revision) Short() string {
	c := r.Commit
	if len(c) > 12 {
		c = c[:12]
	}
	if r.Dirty && c != "" {
		c += "-dirty"
	}
	return c
}

// ErrNotRepository is returned when dir is not inside a git repository.
var ErrNotRepository = git.ErrRepositoryNotExists

// Head returns the revision of the repository containing dir. Parent
// directories are searched for .git.
func Head(dir string) (Revision, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if stderrors.Is(err, git.ErrRepositoryNotExists) {
			return Revision{}, ErrNotRepository
		}
		return Revision{}, errors.WrapError(err, errors.CategoryIO, "open git repository").
			WithContext("path", dir).
			Build()
	}

	ref, err := repo.Head()
	if err != nil {
		// An empty repository has no HEAD commit yet.
		return Revision{}, errors.WrapError(err, errors.CategoryIO, "resolve HEAD").
			WithContext("path", dir).
			Build()
	}

	rev := Revision{Commit: ref.Hash().String()}
	if ref.Name().IsBranch() {
		rev.Branch = ref.Name().Short()
	}

	if wt, err := repo.Worktree(); err == nil {
		if status, err := wt.Status(); err == nil {
			rev.Dirty = !status.IsClean()
		}
	}
	return rev, nil
}

// RevisionFunc returns a lookup suitable for build.WithRevision. Lookup
// failures are logged and yield an empty revision; a tree outside any
// repository is not an error.
func RevisionFunc(dir string, logger *slog.Logger) func(context.Context) string {
	if logger == nil {
		logger = slog.Default()
	}
	return func(context.Context) string {
		rev, err := Head(dir)
		if err != nil {
			if !stderrors.Is(err, ErrNotRepository) {
				logger.Debug("Unable to determine source revision", logfields.Path(dir), logfields.Error(err))
			}
			return ""
		}
		return rev.Short()
	}
}
