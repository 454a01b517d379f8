// Package vcs defines the version-control host contract the pipeline uses to
// create repositories, commit artifacts and drive review requests.
//
// Implementations: vcs/github (GitHub REST API) and vcs/localgit (on-disk
// repositories through go-git).
package vcs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a repository, branch or review request does
// not exist.
var ErrNotFound = errors.New("vcs: not found")

// ErrConflict is returned when a merge cannot be applied cleanly.
var ErrConflict = errors.New("vcs: merge conflict")

// Repository is a repository on the host.
type Repository struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Owner         string    `json:"owner"`
	DefaultBranch string    `json:"default_branch"`
	URL           string    `json:"url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// FullName returns owner/name.
func (r *Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// CommitID identifies a commit.
type CommitID string

// Branch is a named ref.
type Branch struct {
	Name string   `json:"name"`
	Head CommitID `json:"head"`
}

// ReviewState is the state of a review request.
type ReviewState string

const (
	ReviewOpen   ReviewState = "open"
	ReviewMerged ReviewState = "merged"
	ReviewClosed ReviewState = "closed"
)

// ReviewRequestInput describes a review request to open.
type ReviewRequestInput struct {
	Title        string
	Body         string
	SourceBranch string
	TargetBranch string
}

// ReviewRequest is an open, merged or closed review request.
type ReviewRequest struct {
	ID           string      `json:"id"`
	Number       int         `json:"number"`
	Title        string      `json:"title"`
	Body         string      `json:"body,omitempty"`
	SourceBranch string      `json:"source_branch"`
	TargetBranch string      `json:"target_branch"`
	State        ReviewState `json:"state"`
	URL          string      `json:"url,omitempty"`
	MergeCommit  CommitID    `json:"merge_commit,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Host is the version-control host contract.
type Host interface {
	CreateRepository(ctx context.Context, name, owner, description string) (*Repository, error)
	DeleteRepository(ctx context.Context, repo *Repository) error
	RepositoryExists(ctx context.Context, repo *Repository) (bool, error)

	// Commit writes files to branch in one commit. An empty message is
	// replaced by a generated one.
	Commit(ctx context.Context, repo *Repository, branch string, files map[string][]byte, message string) (CommitID, error)

	// RevertCommit adds a commit on branch that restores the tree from before
	// commit.
	RevertCommit(ctx context.Context, repo *Repository, branch string, commit CommitID) (CommitID, error)

	CreateBranch(ctx context.Context, repo *Repository, name, from string) (*Branch, error)
	BranchExists(ctx context.Context, repo *Repository, name string) (bool, error)

	// MergeBranches merges source into target outside of any review request.
	MergeBranches(ctx context.Context, repo *Repository, source, target, message string) (CommitID, error)

	OpenReviewRequest(ctx context.Context, repo *Repository, in ReviewRequestInput) (*ReviewRequest, error)
	CloseReviewRequest(ctx context.Context, repo *Repository, rr *ReviewRequest) error

	// Mergeable reports whether the review request merges without conflicts.
	Mergeable(ctx context.Context, repo *Repository, rr *ReviewRequest) (bool, error)

	// MergeReviewRequest merges rr. It returns false when the host declined
	// the merge without an error.
	MergeReviewRequest(ctx context.Context, repo *Repository, rr *ReviewRequest) (bool, error)

	// RevertMerge restores the target branch to its state before rr merged.
	RevertMerge(ctx context.Context, repo *Repository, rr *ReviewRequest) error
}

// HostError carries the host's status code so callers can classify it.
type HostError struct {
	Op     string
	Status int
	Err    error
}

func (e *HostError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *HostError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status reported by the host, or 0.
func (e *HostError) StatusCode() int { return e.Status }

// DefaultCommitMessage builds the message used when none is given.
func DefaultCommitMessage(fileCount int) string {
	return fmt.Sprintf("Add %d generated artifact file(s)", fileCount)
}
