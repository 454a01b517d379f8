// Package pipelinetest provides deterministic in-memory implementations of
// every external system the pipeline calls, for tests.
//
// Each fake records its calls and accepts scripted errors through FailNext:
// the n-th queued error is returned by the n-th call of that method.
package pipelinetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/catalog"
	"github.com/fyrsmithlabs/launchpad/internal/ci"
	"github.com/fyrsmithlabs/launchpad/internal/deploy"
	"github.com/fyrsmithlabs/launchpad/internal/notify"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
	"github.com/fyrsmithlabs/launchpad/internal/vcs"
)

// script records calls and hands out queued errors.
type script struct {
	mu     sync.Mutex
	calls  []string
	errors map[string][]error
}

// FailNext queues errs for the next calls of method.
func (s *script) FailNext(method string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errors == nil {
		s.errors = map[string][]error{}
	}
	s.errors[method] = append(s.errors[method], errs...)
}

// Calls returns every recorded call in order.
func (s *script) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Count returns how often method was called.
func (s *script) Count(method string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

func (s *script) call(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, method)
	if q := s.errors[method]; len(q) > 0 {
		s.errors[method] = q[1:]
		return q[0]
	}
	return nil
}

type repoState struct {
	repo     vcs.Repository
	branches map[string]vcs.CommitID
	reviews  map[int]*vcs.ReviewRequest
}

// Host is an in-memory vcs.Host.
type Host struct {
	script

	// Conflicts makes Mergeable report conflicts.
	Conflicts bool

	// DeclineMerge makes MergeReviewRequest return false.
	DeclineMerge bool

	// OnCall, when set, runs at the start of CreateRepository and Commit
	// with the context the call received.
	OnCall func(ctx context.Context, method string)

	mu      sync.Mutex
	repos   map[string]*repoState
	commits int
	reviews int
}

var _ vcs.Host = (*Host)(nil)

// NewHost creates an empty host.
func NewHost() *Host {
	return &Host{repos: map[string]*repoState{}}
}

func (h *Host) nextCommit() vcs.CommitID {
	h.commits++
	return vcs.CommitID(fmt.Sprintf("c%04d", h.commits))
}

func (h *Host) state(repo *vcs.Repository) (*repoState, error) {
	st, ok := h.repos[repo.FullName()]
	if !ok {
		return nil, fmt.Errorf("repository %s: %w", repo.FullName(), vcs.ErrNotFound)
	}
	return st, nil
}

func (h *Host) CreateRepository(ctx context.Context, name, owner, _ string) (*vcs.Repository, error) {
	if h.OnCall != nil {
		h.OnCall(ctx, "CreateRepository")
	}
	if err := h.call("CreateRepository"); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	repo := vcs.Repository{
		ID:            owner + "/" + name,
		Name:          name,
		Owner:         owner,
		DefaultBranch: "main",
		URL:           "https://git.example.com/" + owner + "/" + name,
		CreatedAt:     time.Now().UTC(),
	}
	if _, exists := h.repos[repo.FullName()]; exists {
		return nil, fmt.Errorf("repository %s already exists", repo.FullName())
	}
	h.repos[repo.FullName()] = &repoState{
		repo:     repo,
		branches: map[string]vcs.CommitID{"main": h.nextCommit()},
		reviews:  map[int]*vcs.ReviewRequest{},
	}
	out := repo
	return &out, nil
}

func (h *Host) DeleteRepository(_ context.Context, repo *vcs.Repository) error {
	if err := h.call("DeleteRepository"); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.repos, repo.FullName())
	return nil
}

func (h *Host) RepositoryExists(_ context.Context, repo *vcs.Repository) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.repos[repo.FullName()]
	return ok, nil
}

// Exists reports whether owner/name exists.
func (h *Host) Exists(fullName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.repos[fullName]
	return ok
}

func (h *Host) Commit(ctx context.Context, repo *vcs.Repository, branch string, _ map[string][]byte, _ string) (vcs.CommitID, error) {
	if h.OnCall != nil {
		h.OnCall(ctx, "Commit")
	}
	if err := h.call("Commit"); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st, err := h.state(repo)
	if err != nil {
		return "", err
	}
	if _, ok := st.branches[branch]; !ok {
		return "", fmt.Errorf("branch %s: %w", branch, vcs.ErrNotFound)
	}
	id := h.nextCommit()
	st.branches[branch] = id
	return id, nil
}

func (h *Host) RevertCommit(_ context.Context, repo *vcs.Repository, branch string, _ vcs.CommitID) (vcs.CommitID, error) {
	if err := h.call("RevertCommit"); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st, err := h.state(repo)
	if err != nil {
		return "", err
	}
	id := h.nextCommit()
	st.branches[branch] = id
	return id, nil
}

func (h *Host) CreateBranch(_ context.Context, repo *vcs.Repository, name, from string) (*vcs.Branch, error) {
	if err := h.call("CreateBranch"); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st, err := h.state(repo)
	if err != nil {
		return nil, err
	}
	head, ok := st.branches[from]
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", from, vcs.ErrNotFound)
	}
	st.branches[name] = head
	return &vcs.Branch{Name: name, Head: head}, nil
}

func (h *Host) BranchExists(_ context.Context, repo *vcs.Repository, name string) (bool, error) {
	if err := h.call("BranchExists"); err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st, err := h.state(repo)
	if err != nil {
		return false, err
	}
	_, ok := st.branches[name]
	return ok, nil
}

// DeleteBranch removes a branch behind the pipeline's back.
func (h *Host) DeleteBranch(fullName, branch string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.repos[fullName]; ok {
		delete(st.branches, branch)
	}
}

func (h *Host) MergeBranches(_ context.Context, repo *vcs.Repository, source, target, _ string) (vcs.CommitID, error) {
	if err := h.call("MergeBranches"); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st, err := h.state(repo)
	if err != nil {
		return "", err
	}
	if _, ok := st.branches[source]; !ok {
		return "", fmt.Errorf("branch %s: %w", source, vcs.ErrNotFound)
	}
	id := h.nextCommit()
	st.branches[target] = id
	return id, nil
}

func (h *Host) OpenReviewRequest(_ context.Context, repo *vcs.Repository, in vcs.ReviewRequestInput) (*vcs.ReviewRequest, error) {
	if err := h.call("OpenReviewRequest"); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st, err := h.state(repo)
	if err != nil {
		return nil, err
	}
	h.reviews++
	rr := &vcs.ReviewRequest{
		ID:           fmt.Sprintf("rr-%d", h.reviews),
		Number:       h.reviews,
		Title:        in.Title,
		Body:         in.Body,
		SourceBranch: in.SourceBranch,
		TargetBranch: in.TargetBranch,
		State:        vcs.ReviewOpen,
		URL:          fmt.Sprintf("%s/pull/%d", st.repo.URL, h.reviews),
		CreatedAt:    time.Now().UTC(),
	}
	st.reviews[rr.Number] = rr
	out := *rr
	return &out, nil
}

func (h *Host) CloseReviewRequest(_ context.Context, repo *vcs.Repository, rr *vcs.ReviewRequest) error {
	if err := h.call("CloseReviewRequest"); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st, err := h.state(repo)
	if err != nil {
		return err
	}
	if stored, ok := st.reviews[rr.Number]; ok {
		stored.State = vcs.ReviewClosed
	}
	rr.State = vcs.ReviewClosed
	return nil
}

func (h *Host) Mergeable(_ context.Context, _ *vcs.Repository, _ *vcs.ReviewRequest) (bool, error) {
	if err := h.call("Mergeable"); err != nil {
		return false, err
	}
	return !h.Conflicts, nil
}

func (h *Host) MergeReviewRequest(_ context.Context, repo *vcs.Repository, rr *vcs.ReviewRequest) (bool, error) {
	if err := h.call("MergeReviewRequest"); err != nil {
		return false, err
	}
	if h.DeclineMerge {
		return false, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st, err := h.state(repo)
	if err != nil {
		return false, err
	}
	id := h.nextCommit()
	st.branches[rr.TargetBranch] = id
	if stored, ok := st.reviews[rr.Number]; ok {
		stored.State = vcs.ReviewMerged
		stored.MergeCommit = id
	}
	rr.State = vcs.ReviewMerged
	rr.MergeCommit = id
	return true, nil
}

func (h *Host) RevertMerge(_ context.Context, repo *vcs.Repository, rr *vcs.ReviewRequest) error {
	if err := h.call("RevertMerge"); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st, err := h.state(repo)
	if err != nil {
		return err
	}
	st.branches[rr.TargetBranch] = h.nextCommit()
	return nil
}

// Review returns the stored review request.
func (h *Host) Review(fullName string, number int) (vcs.ReviewRequest, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.repos[fullName]
	if !ok {
		return vcs.ReviewRequest{}, false
	}
	rr, ok := st.reviews[number]
	if !ok {
		return vcs.ReviewRequest{}, false
	}
	return *rr, true
}

// Provider is a ci.Provider that replays scripted statuses. Successive
// Status calls return Statuses in order; the last one repeats.
type Provider struct {
	script

	KindValue ci.Kind
	Statuses  []ci.RunStatus

	mu   sync.Mutex
	next int
}

var _ ci.Provider = (*Provider)(nil)

// PassingProvider completes with report.
func PassingProvider(kind ci.Kind, report *validation.Report) *Provider {
	return &Provider{
		KindValue: kind,
		Statuses: []ci.RunStatus{
			{Status: ci.StatusQueued},
			{Status: ci.StatusRunning},
			{Status: ci.StatusCompleted, Report: report},
		},
	}
}

func (p *Provider) Kind() ci.Kind { return p.KindValue }

func (p *Provider) Trigger(_ context.Context, req ci.Request) (ci.RunID, error) {
	if err := p.call("Trigger"); err != nil {
		return "", err
	}
	return ci.RunID("run-" + req.Ref), nil
}

func (p *Provider) Status(_ context.Context, id ci.RunID) (ci.RunStatus, error) {
	if err := p.call("Status"); err != nil {
		return ci.RunStatus{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Statuses) == 0 {
		return ci.RunStatus{ID: id, Status: ci.StatusQueued}, nil
	}
	st := p.Statuses[p.next]
	if p.next < len(p.Statuses)-1 {
		p.next++
	}
	st.ID = id
	return st, nil
}

// Target is an in-memory deploy.Target.
type Target struct {
	script

	// VerifyResult is returned by Verify (default false, set it to pass).
	VerifyResult bool

	mu         sync.Mutex
	deployed   int
	Undeployed []string
}

var _ deploy.Target = (*Target)(nil)

func (t *Target) Deploy(_ context.Context, bundle *artifact.Bundle) (*deploy.Result, error) {
	if err := t.call("Deploy"); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deployed++
	id := fmt.Sprintf("deploy-%d", t.deployed)
	return &deploy.Result{
		ID:         id,
		Name:       bundle.Name,
		Owner:      bundle.Owner,
		Location:   "/srv/templates/" + id,
		Files:      bundle.Paths(),
		Steps:      deploy.Steps(),
		Success:    true,
		DeployedAt: time.Now().UTC(),
	}, nil
}

func (t *Target) Verify(_ context.Context, _ *deploy.Result) bool {
	_ = t.call("Verify")
	return t.VerifyResult
}

func (t *Target) Undeploy(_ context.Context, res *deploy.Result) error {
	if err := t.call("Undeploy"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Undeployed = append(t.Undeployed, res.ID)
	return nil
}

// Catalog is an in-memory catalog.Catalog and catalog.Queue.
type Catalog struct {
	script

	mu      sync.Mutex
	Records []catalog.Record
	Pending []catalog.Record
}

var (
	_ catalog.Catalog = (*Catalog)(nil)
	_ catalog.Queue   = (*Catalog)(nil)
)

func (c *Catalog) Register(_ context.Context, rec catalog.Record) (*catalog.Record, error) {
	if err := c.call("Register"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec.ID = fmt.Sprintf("rec-%d", len(c.Records)+1)
	rec.RegisteredAt = time.Now().UTC()
	rec.UpdatedAt = rec.RegisteredAt
	c.Records = append(c.Records, rec)
	return &rec, nil
}

func (c *Catalog) Defer(_ context.Context, rec catalog.Record, _ string) error {
	if err := c.call("Defer"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Pending = append(c.Pending, rec)
	return nil
}

// Notifier records every event.
type Notifier struct {
	mu     sync.Mutex
	events []notify.Event
}

var _ notify.Notifier = (*Notifier)(nil)

func (n *Notifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

// Events returns the recorded events.
func (n *Notifier) Events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

// Kinds returns the recorded event kinds in order.
func (n *Notifier) Kinds() []notify.Kind {
	var out []notify.Kind
	for _, ev := range n.Events() {
		out = append(out, ev.Kind)
	}
	return out
}

// PassingReport is a report with a passed verdict.
func PassingReport(bundle string) *validation.Report {
	checks := []validation.Check{
		{Name: validation.CheckSyntax, Passed: true},
		{Name: validation.CheckParameters, Passed: true},
		{Name: validation.CheckSteps, Passed: true},
	}
	security := validation.SecuritySummary{Findings: []validation.Finding{}}
	quality := validation.QualityGate{Score: 100, Threshold: 70, Passed: true}
	return &validation.Report{
		Bundle:   bundle,
		Checks:   checks,
		Security: security,
		Quality:  quality,
		Verdict:  validation.Aggregate(checks, security, quality),
	}
}

// Bundle returns a small valid bundle.
func Bundle() *artifact.Bundle {
	return artifact.Minimal(artifact.Specification{
		Name:        "Payments Service",
		Owner:       "platform",
		Description: "Scaffolds a payments service with CI",
	})
}
