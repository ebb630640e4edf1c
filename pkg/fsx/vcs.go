package fsx

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// VCSMatcher answers "would git ignore this path?" for one repository,
// combining the repository's .gitignore chain with an unconditional skip of
// .git directories. A nil matcher ignores only paths inside .git, so callers
// can use the result of NewVCSMatcher without checking whether a repository
// was found.
type VCSMatcher struct {
	repoRoot string
	matcher  gitignore.Matcher
}

// vcsCache holds one parsed matcher per repository root, plus the negative
// results, so repeated folder indexing runs don't re-read .gitignore files.
var vcsCache = struct {
	sync.Mutex
	byRoot map[string]*VCSMatcher
	noRepo map[string]bool
}{
	byRoot: make(map[string]*VCSMatcher),
	noRepo: make(map[string]bool),
}

// NewVCSMatcher finds the git repository containing basePath and loads its
// ignore patterns. A path outside any repository returns (nil, nil): not an
// error, just nothing to ignore.
func NewVCSMatcher(basePath string) (*VCSMatcher, error) {
	vcsCache.Lock()
	defer vcsCache.Unlock()

	if vcsCache.noRepo[basePath] {
		return nil, nil
	}

	// DetectDotGit searches up the directory tree for .git.
	repo, err := git.PlainOpenWithOptions(basePath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		slog.Debug("no git repository found", "directory", basePath)
		vcsCache.noRepo[basePath] = true
		return nil, nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	repoRoot := worktree.Filesystem.Root()

	if cached, ok := vcsCache.byRoot[repoRoot]; ok {
		return cached, nil
	}

	patterns, err := gitignore.ReadPatterns(worktree.Filesystem, nil)
	if err != nil {
		return nil, err
	}

	m := &VCSMatcher{
		repoRoot: repoRoot,
		matcher:  gitignore.NewMatcher(patterns),
	}
	vcsCache.byRoot[repoRoot] = m
	slog.Debug("loaded gitignore patterns", "repository", repoRoot)
	return m, nil
}

// ShouldIgnore reports whether git would ignore path. Paths inside .git
// are always ignored; paths outside the matcher's repository never are.
func (m *VCSMatcher) ShouldIgnore(path string) bool {
	if isGitInternal(path) {
		return true
	}
	if m == nil {
		return false
	}

	absPath, err := filepath.Abs(path)
	if err != nil || !strings.HasPrefix(absPath, m.repoRoot) {
		return false
	}
	relPath, err := filepath.Rel(m.repoRoot, absPath)
	if err != nil {
		return false
	}

	info, err := os.Stat(path)
	isDir := err == nil && info.IsDir()

	return m.matcher.Match(strings.Split(filepath.ToSlash(relPath), "/"), isDir)
}

// isGitInternal reports whether path names a .git directory or anything
// inside one.
func isGitInternal(path string) bool {
	if filepath.Base(path) == ".git" {
		return true
	}
	slashed := filepath.ToSlash(path)
	return strings.Contains(slashed, "/.git/") || strings.HasPrefix(slashed, ".git/")
}
