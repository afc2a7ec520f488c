// Package archive keeps a git history of each container's show notes.
// Every archived snapshot is one commit holding outline.md and outline.json.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"podnotes/api/internal/outline"
)

const (
	markdownFile = "outline.md"
	nodesFile    = "outline.json"
	branch       = "main"
)

var (
	ErrNotFound = errors.New("archive not found")
	// ErrUnchanged is returned when a snapshot matches the latest commit.
	ErrUnchanged = errors.New("archive unchanged")
)

type Snapshot struct {
	Markdown string
	Nodes    []outline.NodeView
}

type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	now     func() time.Time
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// Save commits snap to the container's repository, creating it on first use.
func (s *Service) Save(containerID string, snap Snapshot, author, message string) (Commit, error) {
	lock := s.containerLock(containerID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(containerID)
	if err != nil {
		return Commit{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, fmt.Errorf("open worktree: %w", err)
	}

	nodes := snap.Nodes
	if nodes == nil {
		nodes = []outline.NodeView{}
	}
	payload, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return Commit{}, fmt.Errorf("marshal nodes: %w", err)
	}
	root := worktree.Filesystem.Root()
	files := map[string][]byte{
		markdownFile: []byte(snap.Markdown),
		nodesFile:    append(payload, '\n'),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(root, name), data, 0o644); err != nil {
			return Commit{}, fmt.Errorf("write %s: %w", name, err)
		}
		if _, err := worktree.Add(name); err != nil {
			return Commit{}, fmt.Errorf("git add %s: %w", name, err)
		}
	}

	status, err := worktree.Status()
	if err != nil {
		return Commit{}, fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		return Commit{}, ErrUnchanged
	}

	if message == "" {
		message = "Archive show notes"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@podnotes.local", sanitizeEmail(author)),
			When:  s.now(),
		},
	})
	if err != nil {
		return Commit{}, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

// History lists the newest commits first. A container that was never
// archived has an empty history.
func (s *Service) History(containerID string, limit int) ([]Commit, error) {
	lock := s.containerLock(containerID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(containerID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Read returns the Markdown archived by the commit hash (full or abbreviated).
func (s *Service) Read(containerID, hash string) (string, Commit, error) {
	lock := s.containerLock(containerID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(containerID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", Commit{}, ErrNotFound
	}
	if err != nil {
		return "", Commit{}, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return "", Commit{}, fmt.Errorf("resolve %s: %w", hash, ErrNotFound)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return "", Commit{}, fmt.Errorf("read commit %s: %w", hash, ErrNotFound)
	}
	file, err := commitObj.File(markdownFile)
	if err != nil {
		return "", Commit{}, fmt.Errorf("load %s: %w", markdownFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return "", Commit{}, fmt.Errorf("read %s: %w", markdownFile, err)
	}
	return contents, toCommit(commitObj), nil
}

func (s *Service) openOrInit(containerID string) (*git.Repository, error) {
	path := s.repoPath(containerID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", branch, err)
	}
	return repo, nil
}

func (s *Service) repoPath(containerID string) string {
	return filepath.Join(s.baseDir, filepath.Base(containerID))
}

func (s *Service) containerLock(containerID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[containerID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[containerID] = lock
	return lock
}

func toCommit(commitObj *object.Commit) Commit {
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
