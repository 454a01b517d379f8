// Package localgit implements vcs.Host on plain git repositories under a
// local directory. It serves single-machine installs and tests; review
// requests are tracked in memory by the host.
package localgit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"

	"github.com/fyrsmithlabs/launchpad/internal/sanitize"
	"github.com/fyrsmithlabs/launchpad/internal/vcs"
)

// Options configures a Host.
type Options struct {
	// AuthorName and AuthorEmail sign every commit.
	AuthorName  string
	AuthorEmail string

	// DefaultBranch is the branch new repositories start on. Default: main.
	DefaultBranch string
}

// Host stores repositories at <root>/<owner>/<name>.
type Host struct {
	root string
	opts Options

	mu      sync.Mutex
	reviews map[string][]*vcs.ReviewRequest
	now     func() time.Time
}

var _ vcs.Host = (*Host)(nil)

// New creates a host rooted at root.
func New(root string, opts Options) (*Host, error) {
	if opts.AuthorName == "" {
		opts.AuthorName = "launchpad"
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = "launchpad@localhost"
	}
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = "main"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("localgit: create root: %w", err)
	}
	return &Host{root: root, opts: opts, reviews: make(map[string][]*vcs.ReviewRequest), now: time.Now}, nil
}

func (h *Host) path(repo *vcs.Repository) string {
	return filepath.Join(h.root, repo.Owner, repo.Name)
}

func (h *Host) signature() *object.Signature {
	return &object.Signature{Name: h.opts.AuthorName, Email: h.opts.AuthorEmail, When: h.now()}
}

func (h *Host) open(repo *vcs.Repository) (*git.Repository, error) {
	r, err := git.PlainOpen(h.path(repo))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: repository %s", vcs.ErrNotFound, repo.FullName())
	}
	return r, err
}

func (h *Host) CreateRepository(ctx context.Context, name, owner, description string) (*vcs.Repository, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	repo := &vcs.Repository{
		ID:            uuid.New().String(),
		Name:          name,
		Owner:         owner,
		DefaultBranch: h.opts.DefaultBranch,
		CreatedAt:     h.now(),
	}
	dir := h.path(repo)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("localgit: repository %s already exists", repo.FullName())
	}

	r, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(h.opts.DefaultBranch)},
	})
	if err != nil {
		return nil, fmt.Errorf("localgit: init: %w", err)
	}

	// Mirror hosted auto-init so the default branch exists.
	readme := fmt.Sprintf("# %s\n\n%s\n", name, description)
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte(readme), 0o644); err != nil {
		return nil, err
	}
	w, err := r.Worktree()
	if err != nil {
		return nil, err
	}
	if _, err := w.Add("README.md"); err != nil {
		return nil, err
	}
	if _, err := w.Commit("Initial commit", &git.CommitOptions{Author: h.signature()}); err != nil {
		return nil, fmt.Errorf("localgit: initial commit: %w", err)
	}
	repo.URL = "file://" + dir
	return repo, nil
}

func (h *Host) DeleteRepository(ctx context.Context, repo *vcs.Repository) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.reviews, repo.FullName())
	return os.RemoveAll(h.path(repo))
}

func (h *Host) RepositoryExists(ctx context.Context, repo *vcs.Repository) (bool, error) {
	_, err := h.open(repo)
	if errors.Is(err, vcs.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (h *Host) Commit(ctx context.Context, repo *vcs.Repository, branch string, files map[string][]byte, message string) (vcs.CommitID, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("localgit: commit: no files")
	}
	if message == "" {
		message = vcs.DefaultCommitMessage(len(files))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.open(repo)
	if err != nil {
		return "", err
	}
	w, err := r.Worktree()
	if err != nil {
		return "", err
	}
	ref := plumbing.NewBranchReferenceName(branch)
	if err := w.Checkout(&git.CheckoutOptions{Branch: ref, Force: true}); err != nil {
		return "", fmt.Errorf("localgit: checkout %s: %w", branch, vcsNotFound(err))
	}
	defer h.checkoutDefault(w, repo)

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		full, err := sanitize.WithinRoot(h.path(repo), p)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(full, files[p], 0o644); err != nil {
			return "", err
		}
		if _, err := w.Add(filepath.ToSlash(p)); err != nil {
			return "", fmt.Errorf("localgit: add %s: %w", p, err)
		}
	}

	hash, err := w.Commit(message, &git.CommitOptions{Author: h.signature()})
	if err != nil {
		return "", fmt.Errorf("localgit: commit: %w", err)
	}
	return vcs.CommitID(hash.String()), nil
}

func (h *Host) checkoutDefault(w *git.Worktree, repo *vcs.Repository) {
	_ = w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(repo.DefaultBranch),
		Force:  true,
	})
}

func vcsNotFound(err error) error {
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("%w: %v", vcs.ErrNotFound, err)
	}
	return err
}

// writeCommit stores a commit object with tree and parents and points branch
// at it. The worktree is reset when branch is checked out.
func (h *Host) writeCommit(r *git.Repository, branch string, tree plumbing.Hash, parents []plumbing.Hash, message string) (plumbing.Hash, error) {
	sig := h.signature()
	c := &object.Commit{
		Author:       *sig,
		Committer:    *sig,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	}
	obj := r.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	hash, err := r.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	ref := plumbing.NewBranchReferenceName(branch)
	if err := r.Storer.SetReference(plumbing.NewHashReference(ref, hash)); err != nil {
		return plumbing.ZeroHash, err
	}

	if head, err := r.Head(); err == nil && head.Name() == ref {
		w, err := r.Worktree()
		if err != nil {
			return hash, err
		}
		if err := w.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
			return hash, fmt.Errorf("localgit: reset worktree: %w", err)
		}
	}
	return hash, nil
}

func branchHead(r *git.Repository, branch string) (*object.Commit, error) {
	ref, err := r.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return nil, vcsNotFound(err)
	}
	return r.CommitObject(ref.Hash())
}

func (h *Host) RevertCommit(ctx context.Context, repo *vcs.Repository, branch string, commit vcs.CommitID) (vcs.CommitID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.revert(repo, branch, commit)
}

func (h *Host) revert(repo *vcs.Repository, branch string, commit vcs.CommitID) (vcs.CommitID, error) {
	r, err := h.open(repo)
	if err != nil {
		return "", err
	}
	target, err := r.CommitObject(plumbing.NewHash(string(commit)))
	if err != nil {
		return "", fmt.Errorf("localgit: revert: %w", err)
	}
	if target.NumParents() == 0 {
		return "", fmt.Errorf("localgit: revert: commit %s has no parent", commit)
	}
	parent, err := target.Parent(0)
	if err != nil {
		return "", err
	}
	head, err := branchHead(r, branch)
	if err != nil {
		return "", err
	}

	msg := fmt.Sprintf("Revert %q\n\nThis reverts commit %s.\n", firstLine(target.Message), commit)
	hash, err := h.writeCommit(r, branch, parent.TreeHash, []plumbing.Hash{head.Hash}, msg)
	if err != nil {
		return "", err
	}
	return vcs.CommitID(hash.String()), nil
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}

func (h *Host) CreateBranch(ctx context.Context, repo *vcs.Repository, name, from string) (*vcs.Branch, error) {
	if err := sanitize.ValidateBranch(name); err != nil {
		return nil, err
	}
	if from == "" {
		from = repo.DefaultBranch
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.open(repo)
	if err != nil {
		return nil, err
	}
	if _, err := r.Reference(plumbing.NewBranchReferenceName(name), false); err == nil {
		return nil, fmt.Errorf("localgit: branch %s already exists", name)
	}
	base, err := branchHead(r, from)
	if err != nil {
		return nil, err
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), base.Hash)
	if err := r.Storer.SetReference(ref); err != nil {
		return nil, err
	}
	return &vcs.Branch{Name: name, Head: vcs.CommitID(base.Hash.String())}, nil
}

func (h *Host) BranchExists(ctx context.Context, repo *vcs.Repository, name string) (bool, error) {
	r, err := h.open(repo)
	if err != nil {
		return false, err
	}
	_, err = r.Reference(plumbing.NewBranchReferenceName(name), false)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	return err == nil, err
}

// canMerge reports whether target is an ancestor of (or equal to) source, the
// only case this host merges without a content-level three-way merge.
func canMerge(source, target *object.Commit) (bool, error) {
	if source.Hash == target.Hash {
		return true, nil
	}
	return target.IsAncestor(source)
}

func (h *Host) merge(repo *vcs.Repository, source, target, message string) (vcs.CommitID, error) {
	r, err := h.open(repo)
	if err != nil {
		return "", err
	}
	src, err := branchHead(r, source)
	if err != nil {
		return "", err
	}
	dst, err := branchHead(r, target)
	if err != nil {
		return "", err
	}
	ok, err := canMerge(src, dst)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s has diverged from %s", vcs.ErrConflict, source, target)
	}
	if message == "" {
		message = fmt.Sprintf("Merge branch '%s' into %s", source, target)
	}
	hash, err := h.writeCommit(r, target, src.TreeHash, []plumbing.Hash{dst.Hash, src.Hash}, message)
	if err != nil {
		return "", err
	}
	return vcs.CommitID(hash.String()), nil
}

func (h *Host) MergeBranches(ctx context.Context, repo *vcs.Repository, source, target, message string) (vcs.CommitID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.merge(repo, source, target, message)
}

func (h *Host) OpenReviewRequest(ctx context.Context, repo *vcs.Repository, in vcs.ReviewRequestInput) (*vcs.ReviewRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.open(repo)
	if err != nil {
		return nil, err
	}
	for _, b := range []string{in.SourceBranch, in.TargetBranch} {
		if _, err := branchHead(r, b); err != nil {
			return nil, err
		}
	}

	key := repo.FullName()
	rr := &vcs.ReviewRequest{
		Number:       len(h.reviews[key]) + 1,
		Title:        in.Title,
		Body:         in.Body,
		SourceBranch: in.SourceBranch,
		TargetBranch: in.TargetBranch,
		State:        vcs.ReviewOpen,
		CreatedAt:    h.now(),
	}
	rr.ID = key + "#" + strconv.Itoa(rr.Number)
	rr.URL = "file://" + h.path(repo) + "#review-" + strconv.Itoa(rr.Number)
	h.reviews[key] = append(h.reviews[key], rr)

	out := *rr
	return &out, nil
}

func (h *Host) lookup(repo *vcs.Repository, rr *vcs.ReviewRequest) (*vcs.ReviewRequest, error) {
	for _, stored := range h.reviews[repo.FullName()] {
		if stored.Number == rr.Number {
			return stored, nil
		}
	}
	return nil, fmt.Errorf("%w: review request %d", vcs.ErrNotFound, rr.Number)
}

// Review returns a copy of the stored review request.
func (h *Host) Review(repo *vcs.Repository, number int) (*vcs.ReviewRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stored, err := h.lookup(repo, &vcs.ReviewRequest{Number: number})
	if err != nil {
		return nil, err
	}
	out := *stored
	return &out, nil
}

func (h *Host) CloseReviewRequest(ctx context.Context, repo *vcs.Repository, rr *vcs.ReviewRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	stored, err := h.lookup(repo, rr)
	if err != nil {
		return err
	}
	stored.State = vcs.ReviewClosed
	return nil
}

func (h *Host) Mergeable(ctx context.Context, repo *vcs.Repository, rr *vcs.ReviewRequest) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.open(repo)
	if err != nil {
		return false, err
	}
	src, err := branchHead(r, rr.SourceBranch)
	if err != nil {
		return false, err
	}
	dst, err := branchHead(r, rr.TargetBranch)
	if err != nil {
		return false, err
	}
	return canMerge(src, dst)
}

func (h *Host) MergeReviewRequest(ctx context.Context, repo *vcs.Repository, rr *vcs.ReviewRequest) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stored, err := h.lookup(repo, rr)
	if err != nil {
		return false, err
	}
	if stored.State != vcs.ReviewOpen {
		return false, nil
	}
	msg := fmt.Sprintf("Merge review request #%d from %s\n\n%s", rr.Number, rr.SourceBranch, rr.Title)
	commit, err := h.merge(repo, rr.SourceBranch, rr.TargetBranch, msg)
	if errors.Is(err, vcs.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	stored.State = vcs.ReviewMerged
	stored.MergeCommit = commit
	rr.MergeCommit = commit
	return true, nil
}

func (h *Host) RevertMerge(ctx context.Context, repo *vcs.Repository, rr *vcs.ReviewRequest) error {
	if rr.MergeCommit == "" {
		return fmt.Errorf("localgit: review request %d has no merge commit", rr.Number)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.revert(repo, rr.TargetBranch, rr.MergeCommit)
	return err
}

// Files returns the content of every file at the head of branch.
func (h *Host) Files(repo *vcs.Repository, branch string) (map[string]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.open(repo)
	if err != nil {
		return nil, err
	}
	head, err := branchHead(r, branch)
	if err != nil {
		return nil, err
	}
	iter, err := head.Files()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	err = iter.ForEach(func(f *object.File) error {
		content, err := f.Contents()
		if err != nil {
			return err
		}
		out[f.Name] = content
		return nil
	})
	return out, err
}
