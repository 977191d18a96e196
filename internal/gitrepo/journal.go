// Package gitrepo keeps an append-only git history of catalog edits for the
// flat-file backend. Every admin mutation becomes one commit, so the journal
// doubles as an audit trail.
package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

type Journal struct {
	dir string
}

// CommitInfo is one journal entry, newest first in History results.
type CommitInfo struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// Open initializes (or reopens) the journal repository at dir.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	_, err := git.PlainInit(dir, false)
	if err != nil && !errors.Is(err, git.ErrRepositoryAlreadyExists) {
		return nil, fmt.Errorf("init journal repo: %w", err)
	}
	return &Journal{dir: dir}, nil
}

func (j *Journal) Dir() string {
	return j.dir
}

// Record writes contents to name inside the repository and commits it with
// the given message and author. No-op commits are allowed so repeated saves
// of identical data do not fail.
func (j *Journal) Record(name, message, author string, contents []byte) (CommitInfo, error) {
	path := filepath.Join(j.dir, name)
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write journal file: %w", err)
	}

	repo, err := git.PlainOpen(j.dir)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open journal repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("journal worktree: %w", err)
	}
	if _, err := worktree.Add(name); err != nil {
		return CommitInfo{}, fmt.Errorf("stage %s: %w", name, err)
	}

	signature := &object.Signature{Name: author, Email: author + "@pustak.local", When: time.Now()}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author:            signature,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit journal: %w", err)
	}

	return CommitInfo{
		Hash:    hash.String(),
		Message: message,
		Author:  author,
		When:    signature.When,
	}, nil
}

// History returns up to limit commits, newest first. An empty repository
// yields an empty slice.
func (j *Journal) History(limit int) ([]CommitInfo, error) {
	repo, err := git.PlainOpen(j.dir)
	if err != nil {
		return nil, fmt.Errorf("open journal repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		// No commits yet.
		return []CommitInfo{}, nil
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("journal log: %w", err)
	}
	defer iter.Close()

	entries := make([]CommitInfo, 0, limit)
	err = iter.ForEach(func(c *object.Commit) error {
		entries = append(entries, CommitInfo{
			Hash:    c.Hash.String(),
			Message: c.Message,
			Author:  c.Author.Name,
			When:    c.Author.When,
		})
		if limit > 0 && len(entries) >= limit {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, fmt.Errorf("iterate journal log: %w", err)
	}
	return entries, nil
}

var errStopIteration = errors.New("stop iteration")
