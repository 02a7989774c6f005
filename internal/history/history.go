// Package history keeps the revision history of every article in its own git
// repository. Each save commits the Markdown source as content.md.
package history

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

const contentFile = "content.md"

var ErrRevisionNotFound = errors.New("revision not found")

// Revision describes one commit in an article's history.
type Revision struct {
	Hash      string    `json:"hash"`
	ShortHash string    `json:"shortHash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Added     int       `json:"added"`
	Removed   int       `json:"removed"`
}

type Service struct {
	baseDir string
	logger  *zap.Logger
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	now     func() time.Time
}

func New(baseDir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		baseDir: baseDir,
		logger:  logger.Named("history"),
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// Record commits content as the newest revision of the article, creating the
// repository on first use. When the content equals the current head no commit
// is made and the head revision is returned with changed=false.
func (s *Service) Record(articleID, content, author, message string) (Revision, bool, error) {
	if err := validateID(articleID); err != nil {
		return Revision{}, false, err
	}
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	repo, fresh, err := s.openOrInit(articleID)
	if err != nil {
		return Revision{}, false, err
	}

	if !fresh {
		head, err := headCommit(repo)
		if err != nil {
			return Revision{}, false, err
		}
		current, err := readContent(head)
		if err == nil && current == content {
			return toRevision(head), false, nil
		}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, false, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.repoPath(articleID), contentFile), []byte(content), 0o644); err != nil {
		return Revision{}, false, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return Revision{}, false, fmt.Errorf("git add content: %w", err)
	}

	if strings.TrimSpace(message) == "" {
		message = "Update article"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: fresh,
		Author:            s.signature(author),
	})
	if err != nil {
		return Revision{}, false, fmt.Errorf("commit content: %w", err)
	}

	if fresh {
		if err := pointHeadAtMain(repo, hash); err != nil {
			return Revision{}, false, err
		}
	}

	commit, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toRevisionWithStats(commit, s.logger), true, nil
}

// History lists revisions newest first. An article without a repository has
// an empty history.
func (s *Service) History(articleID string, limit int) ([]Revision, error) {
	if err := validateID(articleID); err != nil {
		return nil, err
	}
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(articleID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commit *object.Commit) error {
		items = append(items, toRevisionWithStats(commit, s.logger))
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

// ContentAt returns the Markdown source stored at the given revision. Short
// hashes are accepted.
func (s *Service) ContentAt(articleID, hash string) (string, Revision, error) {
	if err := validateID(articleID); err != nil {
		return "", Revision{}, err
	}
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(articleID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", Revision{}, ErrRevisionNotFound
	}
	if err != nil {
		return "", Revision{}, fmt.Errorf("open repo: %w", err)
	}

	commit, err := resolveCommit(repo, hash)
	if err != nil {
		return "", Revision{}, err
	}
	content, err := readContent(commit)
	if err != nil {
		return "", Revision{}, err
	}
	return content, toRevision(commit), nil
}

// Remove deletes the article's repository.
func (s *Service) Remove(articleID string) error {
	if err := validateID(articleID); err != nil {
		return err
	}
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(articleID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

func (s *Service) openOrInit(articleID string) (*git.Repository, bool, error) {
	path := s.repoPath(articleID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, false, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, false, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, false, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, false, fmt.Errorf("init repo: %w", err)
	}
	return repo, true, nil
}

func pointHeadAtMain(repo *git.Repository, hash plumbing.Hash) error {
	main := plumbing.NewBranchReferenceName("main")
	if err := repo.Storer.SetReference(plumbing.NewHashReference(main, hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, main)); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	if err := repo.Storer.RemoveReference(plumbing.Master); err != nil {
		return fmt.Errorf("remove master ref: %w", err)
	}
	return nil
}

func (s *Service) repoPath(articleID string) string {
	return filepath.Join(s.baseDir, articleID)
}

func (s *Service) articleLock(articleID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[articleID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[articleID] = lock
	}
	return lock
}

func (s *Service) signature(author string) *object.Signature {
	name := strings.TrimSpace(author)
	if name == "" {
		name = "Anonymous"
	}
	return &object.Signature{
		Name:  name,
		Email: sanitizeEmail(name) + "@users.kgr.local",
		When:  s.now(),
	}
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commit, nil
}

func resolveCommit(repo *git.Repository, hash string) (*object.Commit, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, ErrRevisionNotFound
	}
	var resolved plumbing.Hash
	if len(hash) == 40 {
		resolved = plumbing.NewHash(hash)
	} else {
		h, err := repo.ResolveRevision(plumbing.Revision(hash))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrRevisionNotFound, hash)
		}
		resolved = *h
	}
	commit, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRevisionNotFound, hash)
	}
	return commit, nil
}

func readContent(commit *object.Commit) (string, error) {
	file, err := commit.File(contentFile)
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	content, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", contentFile, err)
	}
	return content, nil
}

func toRevision(commit *object.Commit) Revision {
	hash := commit.Hash.String()
	return Revision{
		Hash:      hash,
		ShortHash: hash[:7],
		Message:   strings.TrimSpace(commit.Message),
		Author:    commit.Author.Name,
		CreatedAt: commit.Author.When,
	}
}

func toRevisionWithStats(commit *object.Commit, logger *zap.Logger) Revision {
	rev := toRevision(commit)
	stats, err := commit.Stats()
	if err != nil {
		logger.Debug("commit stats unavailable", zap.String("hash", rev.ShortHash), zap.Error(err))
		return rev
	}
	for _, file := range stats {
		rev.Added += file.Addition
		rev.Removed += file.Deletion
	}
	return rev
}

// validateID keeps article ids from escaping the repository root.
func validateID(articleID string) error {
	if articleID == "" || articleID == "." || articleID == ".." || strings.ContainsAny(articleID, `/\`) {
		return fmt.Errorf("invalid article id %q", articleID)
	}
	return nil
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range strings.ToLower(input) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
