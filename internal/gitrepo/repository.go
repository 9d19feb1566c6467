// Package gitrepo provides git repository access using go-git: commit
// resolution, zero-context tree diffs, changed-range extraction, rewrite
// key hashing, and attribution notes under refs/notes.
//
// Repository handles are not safe for concurrent use. Callers should
// extract plain data and drop the handle before long-lived store work.
package gitrepo

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo wraps a go-git repository opened from a working directory path.
type Repo struct {
	repo *git.Repository
	path string
}

// Open opens an existing git repository at repoPath.
func Open(repoPath string) (*Repo, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("open git repo at %s: %w", repoPath, err)
	}
	return &Repo{repo: repo, path: repoPath}, nil
}

// Path returns the repository's working directory path.
func (r *Repo) Path() string {
	return r.path
}

// Commit resolves a hex commit sha to its commit object.
func (r *Repo) Commit(sha string) (*object.Commit, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return nil, fmt.Errorf("resolve commit %s: %w", sha, err)
	}
	return c, nil
}

// Head returns the sha of the current HEAD commit.
func (r *Repo) Head() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// DefaultSignature returns the configured committer identity, falling
// back to the given name and email when the repository (and global
// config) has none.
func (r *Repo) DefaultSignature(fallbackName, fallbackEmail string) (name, email string) {
	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil || cfg.User.Name == "" || cfg.User.Email == "" {
		return fallbackName, fallbackEmail
	}
	return cfg.User.Name, cfg.User.Email
}

// FileLines returns the text lines of a file as it exists in a commit.
// A path missing from the commit's tree returns an error.
func (r *Repo) FileLines(sha, filePath string) ([]string, error) {
	c, err := r.Commit(sha)
	if err != nil {
		return nil, err
	}
	f, err := c.File(filePath)
	if err != nil {
		return nil, fmt.Errorf("file %s at %s: %w", filePath, sha, err)
	}
	lines, err := f.Lines()
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", filePath, sha, err)
	}
	return lines, nil
}

// commitChanges diffs a commit against its first parent (or the empty
// tree for root commits) with rename detection, so content-identical
// renames produce no line changes.
func (r *Repo) commitChanges(c *object.Commit) (object.Changes, error) {
	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("first parent of %s: %w", c.Hash, err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("parent tree of %s: %w", c.Hash, err)
		}
	}

	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("tree of %s: %w", c.Hash, err)
	}

	changes, err := object.DiffTreeWithOptions(context.Background(), parentTree, tree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("diff trees of %s: %w", c.Hash, err)
	}
	return changes, nil
}

// changePath returns the post-image path of a change, falling back to the
// pre-image path for deletions.
func changePath(change *object.Change) string {
	if change.To.Name != "" {
		return change.To.Name
	}
	return change.From.Name
}
