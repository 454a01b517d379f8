package githubhost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/vcs"
)

// Options configures a Host.
type Options struct {
	// User is the authenticated login. Repositories owned by User are created
	// under the user account, all others under the owner organisation.
	User string

	// Private creates private repositories.
	Private bool

	// RequestsPerSecond limits client-side request rate. Zero disables it.
	RequestsPerSecond float64

	// Burst is the limiter burst size. Default: 1.
	Burst int

	// Retry configures transport-level retries.
	Retry RetryConfig

	// MergeablePolls bounds how often a pull request is re-read while GitHub
	// computes mergeability. Default: 5.
	MergeablePolls int

	// MergeableWait is the pause between mergeability reads. Default: 1s.
	MergeableWait time.Duration
}

// Host is a vcs.Host backed by GitHub.
type Host struct {
	client  *github.Client
	opts    Options
	limiter *rate.Limiter
	logger  *logging.Logger
}

var _ vcs.Host = (*Host)(nil)

// New creates a GitHub host. logger may be nil.
func New(client *github.Client, opts Options, logger *logging.Logger) *Host {
	if opts.MergeablePolls <= 0 {
		opts.MergeablePolls = 5
	}
	if opts.MergeableWait <= 0 {
		opts.MergeableWait = time.Second
	}
	h := &Host{client: client, opts: opts, logger: logger}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return h
}

// Client returns the underlying GitHub client.
func (h *Host) Client() *github.Client { return h.client }

// Do runs fn through the host's rate limiter and retry policy. Other
// GitHub-backed components use it to share both.
func (h *Host) Do(ctx context.Context, op string, fn func() (*github.Response, error)) error {
	return h.call(ctx, op, fn)
}

// call runs one idempotent API operation through the limiter and retry
// policy and converts failures into *vcs.HostError.
func (h *Host) call(ctx context.Context, op string, fn func() (*github.Response, error)) error {
	return h.do(ctx, op, isRetryableError, fn)
}

// create is call for operations that create an object. Only rate-limit
// rejections are retried here; anything else surfaces to the pipeline,
// whose network recovery re-runs the whole stage.
func (h *Host) create(ctx context.Context, op string, fn func() (*github.Response, error)) error {
	return h.do(ctx, op, isRejectedByRateLimit, fn)
}

func (h *Host) do(ctx context.Context, op string, retryable func(error, *github.Response) bool, fn func() (*github.Response, error)) error {
	resp, err := retryOperation(ctx, h.opts.Retry, h.logger, op, retryable, func() (*github.Response, error) {
		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return fn()
	})
	if err == nil {
		return nil
	}
	return hostError(op, resp, err)
}

func hostError(op string, resp *github.Response, err error) error {
	code := statusCode(resp)
	switch code {
	case http.StatusNotFound:
		err = fmt.Errorf("%w: %v", vcs.ErrNotFound, err)
	case http.StatusConflict:
		err = fmt.Errorf("%w: %v", vcs.ErrConflict, err)
	}
	return &vcs.HostError{Op: op, Status: code, Err: err}
}

func (h *Host) CreateRepository(ctx context.Context, name, owner, description string) (*vcs.Repository, error) {
	org := owner
	if owner == "" || strings.EqualFold(owner, h.opts.User) {
		org = ""
	}

	var created *github.Repository
	err := h.create(ctx, "create_repository", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		created, resp, err = h.client.Repositories.Create(ctx, org, &github.Repository{
			Name:        github.String(name),
			Description: github.String(description),
			Private:     github.Bool(h.opts.Private),
			AutoInit:    github.Bool(true),
		})
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	repo := &vcs.Repository{
		ID:            strconv.FormatInt(created.GetID(), 10),
		Name:          created.GetName(),
		Owner:         created.GetOwner().GetLogin(),
		DefaultBranch: created.GetDefaultBranch(),
		URL:           created.GetHTMLURL(),
		CreatedAt:     created.GetCreatedAt().Time,
	}
	if repo.Owner == "" {
		repo.Owner = owner
	}
	if repo.DefaultBranch == "" {
		repo.DefaultBranch = "main"
	}
	return repo, nil
}

func (h *Host) DeleteRepository(ctx context.Context, repo *vcs.Repository) error {
	return h.call(ctx, "delete_repository", func() (*github.Response, error) {
		return h.client.Repositories.Delete(ctx, repo.Owner, repo.Name)
	})
}

func (h *Host) RepositoryExists(ctx context.Context, repo *vcs.Repository) (bool, error) {
	err := h.call(ctx, "get_repository", func() (*github.Response, error) {
		_, resp, err := h.client.Repositories.Get(ctx, repo.Owner, repo.Name)
		return resp, err
	})
	return existence(err)
}

func existence(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, vcs.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (h *Host) headOf(ctx context.Context, repo *vcs.Repository, branch string) (string, error) {
	var ref *github.Reference
	err := h.call(ctx, "get_ref", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		ref, resp, err = h.client.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return ref.GetObject().GetSHA(), nil
}

func (h *Host) getCommit(ctx context.Context, repo *vcs.Repository, sha string) (*github.Commit, error) {
	var c *github.Commit
	err := h.call(ctx, "get_commit", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		c, resp, err = h.client.Git.GetCommit(ctx, repo.Owner, repo.Name, sha)
		return resp, err
	})
	return c, err
}

// commitTree creates a commit with tree on top of parent and moves branch to it.
func (h *Host) commitTree(ctx context.Context, repo *vcs.Repository, branch, treeSHA, parent, message string) (vcs.CommitID, error) {
	var created *github.Commit
	err := h.call(ctx, "create_commit", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		created, resp, err = h.client.Git.CreateCommit(ctx, repo.Owner, repo.Name, &github.Commit{
			Message: github.String(message),
			Tree:    &github.Tree{SHA: github.String(treeSHA)},
			Parents: []*github.Commit{{SHA: github.String(parent)}},
		})
		return resp, err
	})
	if err != nil {
		return "", err
	}

	err = h.call(ctx, "update_ref", func() (*github.Response, error) {
		_, resp, err := h.client.Git.UpdateRef(ctx, repo.Owner, repo.Name, &github.Reference{
			Ref:    github.String("refs/heads/" + branch),
			Object: &github.GitObject{SHA: created.SHA},
		}, false)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return vcs.CommitID(created.GetSHA()), nil
}

func (h *Host) Commit(ctx context.Context, repo *vcs.Repository, branch string, files map[string][]byte, message string) (vcs.CommitID, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("commit: no files")
	}
	if message == "" {
		message = vcs.DefaultCommitMessage(len(files))
	}

	head, err := h.headOf(ctx, repo, branch)
	if err != nil {
		return "", err
	}
	base, err := h.getCommit(ctx, repo, head)
	if err != nil {
		return "", err
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	entries := make([]*github.TreeEntry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, &github.TreeEntry{
			Path:    github.String(p),
			Mode:    github.String("100644"),
			Type:    github.String("blob"),
			Content: github.String(string(files[p])),
		})
	}

	var tree *github.Tree
	err = h.call(ctx, "create_tree", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		tree, resp, err = h.client.Git.CreateTree(ctx, repo.Owner, repo.Name, base.GetTree().GetSHA(), entries)
		return resp, err
	})
	if err != nil {
		return "", err
	}

	return h.commitTree(ctx, repo, branch, tree.GetSHA(), head, message)
}

func (h *Host) RevertCommit(ctx context.Context, repo *vcs.Repository, branch string, commit vcs.CommitID) (vcs.CommitID, error) {
	target, err := h.getCommit(ctx, repo, string(commit))
	if err != nil {
		return "", err
	}
	if len(target.Parents) == 0 {
		return "", fmt.Errorf("revert: commit %s has no parent", commit)
	}
	parent, err := h.getCommit(ctx, repo, target.Parents[0].GetSHA())
	if err != nil {
		return "", err
	}
	head, err := h.headOf(ctx, repo, branch)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("Revert %q\n\nThis reverts commit %s.", firstLine(target.GetMessage()), commit)
	return h.commitTree(ctx, repo, branch, parent.GetTree().GetSHA(), head, msg)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (h *Host) CreateBranch(ctx context.Context, repo *vcs.Repository, name, from string) (*vcs.Branch, error) {
	if from == "" {
		from = repo.DefaultBranch
	}
	head, err := h.headOf(ctx, repo, from)
	if err != nil {
		return nil, err
	}
	err = h.create(ctx, "create_ref", func() (*github.Response, error) {
		_, resp, err := h.client.Git.CreateRef(ctx, repo.Owner, repo.Name, &github.Reference{
			Ref:    github.String("refs/heads/" + name),
			Object: &github.GitObject{SHA: github.String(head)},
		})
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return &vcs.Branch{Name: name, Head: vcs.CommitID(head)}, nil
}

func (h *Host) BranchExists(ctx context.Context, repo *vcs.Repository, name string) (bool, error) {
	_, err := h.headOf(ctx, repo, name)
	return existence(err)
}

func (h *Host) MergeBranches(ctx context.Context, repo *vcs.Repository, source, target, message string) (vcs.CommitID, error) {
	var merged *github.RepositoryCommit
	err := h.create(ctx, "merge_branches", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		merged, resp, err = h.client.Repositories.Merge(ctx, repo.Owner, repo.Name, &github.RepositoryMergeRequest{
			Base:          github.String(target),
			Head:          github.String(source),
			CommitMessage: github.String(message),
		})
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return vcs.CommitID(merged.GetSHA()), nil
}

func (h *Host) OpenReviewRequest(ctx context.Context, repo *vcs.Repository, in vcs.ReviewRequestInput) (*vcs.ReviewRequest, error) {
	var pr *github.PullRequest
	err := h.create(ctx, "open_pull_request", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		pr, resp, err = h.client.PullRequests.Create(ctx, repo.Owner, repo.Name, &github.NewPullRequest{
			Title: github.String(in.Title),
			Body:  github.String(in.Body),
			Head:  github.String(in.SourceBranch),
			Base:  github.String(in.TargetBranch),
		})
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return &vcs.ReviewRequest{
		ID:           strconv.FormatInt(pr.GetID(), 10),
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		Body:         pr.GetBody(),
		SourceBranch: in.SourceBranch,
		TargetBranch: in.TargetBranch,
		State:        vcs.ReviewOpen,
		URL:          pr.GetHTMLURL(),
		CreatedAt:    pr.GetCreatedAt().Time,
	}, nil
}

func (h *Host) CloseReviewRequest(ctx context.Context, repo *vcs.Repository, rr *vcs.ReviewRequest) error {
	return h.call(ctx, "close_pull_request", func() (*github.Response, error) {
		_, resp, err := h.client.PullRequests.Edit(ctx, repo.Owner, repo.Name, rr.Number, &github.PullRequest{
			State: github.String("closed"),
		})
		return resp, err
	})
}

func (h *Host) Mergeable(ctx context.Context, repo *vcs.Repository, rr *vcs.ReviewRequest) (bool, error) {
	for i := 0; i < h.opts.MergeablePolls; i++ {
		var pr *github.PullRequest
		err := h.call(ctx, "get_pull_request", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			pr, resp, err = h.client.PullRequests.Get(ctx, repo.Owner, repo.Name, rr.Number)
			return resp, err
		})
		if err != nil {
			return false, err
		}
		if pr.Mergeable != nil {
			return pr.GetMergeable(), nil
		}
		if i < h.opts.MergeablePolls-1 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(h.opts.MergeableWait):
			}
		}
	}
	// GitHub never reported conflicts.
	return true, nil
}

func (h *Host) MergeReviewRequest(ctx context.Context, repo *vcs.Repository, rr *vcs.ReviewRequest) (bool, error) {
	var result *github.PullRequestMergeResult
	err := h.create(ctx, "merge_pull_request", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		result, resp, err = h.client.PullRequests.Merge(ctx, repo.Owner, repo.Name, rr.Number, "",
			&github.PullRequestOptions{MergeMethod: "merge"})
		return resp, err
	})
	if err != nil {
		var he *vcs.HostError
		if errors.As(err, &he) && he.Status == http.StatusMethodNotAllowed {
			return false, nil
		}
		return false, err
	}
	if !result.GetMerged() {
		return false, nil
	}
	rr.MergeCommit = vcs.CommitID(result.GetSHA())
	return true, nil
}

func (h *Host) RevertMerge(ctx context.Context, repo *vcs.Repository, rr *vcs.ReviewRequest) error {
	if rr.MergeCommit == "" {
		return fmt.Errorf("revert merge: review request %d has no merge commit", rr.Number)
	}
	_, err := h.RevertCommit(ctx, repo, rr.TargetBranch, rr.MergeCommit)
	return err
}
