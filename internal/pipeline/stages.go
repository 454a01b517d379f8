package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/catalog"
	"github.com/fyrsmithlabs/launchpad/internal/ci"
	"github.com/fyrsmithlabs/launchpad/internal/compensation"
	"github.com/fyrsmithlabs/launchpad/internal/deploy"
	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/notify"
	"github.com/fyrsmithlabs/launchpad/internal/poller"
	"github.com/fyrsmithlabs/launchpad/internal/sanitize"
	"github.com/fyrsmithlabs/launchpad/internal/secrets"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
	"github.com/fyrsmithlabs/launchpad/internal/vcs"
)

const component = "pipeline"

// ReleaseManifestPath is committed on the review branch.
const ReleaseManifestPath = ".launchpad/release.yaml"

// DetailRecord carries the catalog record of a failed registration.
const DetailRecord = "record"

// ErrNoSubstitute is returned when a handler cannot use a recovery result.
var ErrNoSubstitute = errors.New("pipeline: stage does not accept a substitute result")

// Deps are the external systems the stages call.
type Deps struct {
	Host      vcs.Host
	Providers *ci.Set
	Poller    *poller.Poller
	Target    deploy.Target
	Catalog   catalog.Catalog
	Notifier  notify.Notifier

	// Scanner runs the final security check before merge; nil skips it.
	Scanner *secrets.Scanner

	// Generators build a bundle from a specification (default: artifact.DefaultGenerators).
	Generators []artifact.Generator

	Logger *logging.Logger

	// Now is the clock used for branch names (default: time.Now).
	Now func() time.Time
}

// Stages builds the stage handlers over a set of dependencies.
type Stages struct {
	deps Deps
}

// NewStages validates deps and fills in defaults.
func NewStages(deps Deps) (*Stages, error) {
	switch {
	case deps.Host == nil:
		return nil, fmt.Errorf("pipeline: version-control host is required")
	case deps.Providers == nil:
		return nil, fmt.Errorf("pipeline: validation providers are required")
	case deps.Target == nil:
		return nil, fmt.Errorf("pipeline: deployment target is required")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("pipeline: catalog is required")
	}
	if deps.Poller == nil {
		deps.Poller = poller.New(poller.DefaultOptions())
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard{}
	}
	if len(deps.Generators) == 0 {
		deps.Generators = artifact.DefaultGenerators()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Stages{deps: deps}, nil
}

// Notifier returns the configured notifier.
func (s *Stages) Notifier() notify.Notifier { return s.deps.Notifier }

// Handlers returns every stage handler in execution order.
func (s *Stages) Handlers() []Handler {
	return []Handler{
		&handler{stage: StageGenerate, exec: s.generate, subst: s.substituteBundle},
		&handler{stage: StageCreateRepository, prereqs: []Stage{StageGenerate}, exec: s.createRepository},
		&handler{stage: StageCommitArtifacts, prereqs: []Stage{StageCreateRepository}, exec: s.commitArtifacts},
		&handler{stage: StageOpenReview, prereqs: []Stage{StageCommitArtifacts}, exec: s.openReview},
		&handler{stage: StageTriggerValidation, prereqs: []Stage{StageOpenReview}, exec: s.triggerValidation},
		&handler{stage: StageProcessValidation, prereqs: []Stage{StageTriggerValidation}, exec: s.processValidation},
		&handler{stage: StageMerge, prereqs: []Stage{StageProcessValidation}, exec: s.merge},
		&handler{stage: StageDeploy, prereqs: []Stage{StageMerge}, exec: s.deploy},
		&handler{stage: StageVerify, prereqs: []Stage{StageDeploy}, exec: s.verify},
		&handler{stage: StageRegister, prereqs: []Stage{StageDeploy, StageVerify}, exec: s.register, subst: s.substituteRecord},
	}
}

type handler struct {
	stage   Stage
	prereqs []Stage
	exec    func(ctx context.Context, run *Run) (Outcome, error)
	subst   func(run *Run, result any) (Outcome, error)
}

func (h *handler) Stage() Stage            { return h.stage }
func (h *handler) Prerequisites() []Stage { return h.prereqs }

func (h *handler) Execute(ctx context.Context, run *Run) (Outcome, error) {
	return h.exec(ctx, run)
}

func (h *handler) Substitute(run *Run, result any) (Outcome, error) {
	if h.subst == nil {
		return Outcome{}, ErrNoSubstitute
	}
	return h.subst(run, result)
}

// CheckPrerequisites fails when a prerequisite of h has no success
// checkpoint in run.
func CheckPrerequisites(run *Run, h Handler) error {
	for _, p := range h.Prerequisites() {
		if !run.Op.HasSucceeded(string(p)) {
			return failure.New(failure.KindConfiguration, component, string(h.Stage()),
				fmt.Sprintf("prerequisite %s has not succeeded", p), false).
				WithDetail("prerequisite", string(p))
		}
	}
	return nil
}

func classify(stage Stage, err error, fallback failure.Kind, recoverable bool) *failure.Error {
	return failure.Classify(component, string(stage), err, fallback, recoverable)
}

func transition(run *Run, stage Stage, to State) error {
	if err := run.Transition(to); err != nil {
		return failure.Wrap(failure.KindResource, component, string(stage), err, false)
	}
	return nil
}

func (s *Stages) notify(ctx context.Context, run *Run, ev notify.Event) {
	ev.OperationID = run.Op.ID()
	if run.Repository != nil {
		ev.Repository = run.Repository.FullName()
	}
	if err := s.deps.Notifier.Notify(ctx, ev); err != nil && s.deps.Logger != nil {
		s.deps.Logger.Warn(ctx, "notification failed",
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
	}
}

func (s *Stages) generate(_ context.Context, run *Run) (Outcome, error) {
	if run.Bundle == nil {
		bundle, err := artifact.Assemble(*run.Input.Specification, s.deps.Generators...)
		if err != nil {
			return Outcome{}, failure.Wrap(failure.KindTemplateGeneration, component, string(StageGenerate), err, true)
		}
		run.Bundle = bundle
	}
	if err := run.Bundle.Validate(); err != nil {
		return Outcome{}, failure.Wrap(failure.KindTemplateGeneration, component, string(StageGenerate), err,
			run.Input.Specification != nil)
	}
	return Outcome{Snapshot: run.Bundle}, nil
}

func (s *Stages) substituteBundle(run *Run, result any) (Outcome, error) {
	bundle, ok := result.(*artifact.Bundle)
	if !ok || bundle == nil {
		return Outcome{}, fmt.Errorf("%w: got %T, want bundle", ErrNoSubstitute, result)
	}
	if err := bundle.Validate(); err != nil {
		return Outcome{}, err
	}
	run.Bundle = bundle
	return Outcome{Snapshot: bundle}, nil
}

func (s *Stages) createRepository(ctx context.Context, run *Run) (Outcome, error) {
	host := s.deps.Host
	name := sanitize.RepositoryName(run.Bundle.Name)
	repo, err := host.CreateRepository(ctx, name, run.Bundle.Owner, run.Bundle.Description)
	if err != nil {
		return Outcome{}, classify(StageCreateRepository, err, failure.KindGitOps, false)
	}
	run.Repository = repo
	if err := transition(run, StageCreateRepository, StateCreated); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Snapshot: *repo,
		Compensate: &compensation.Action{
			ID:          "delete_repository",
			Description: "delete repository " + repo.FullName(),
			Reverse: func(ctx context.Context) error {
				return host.DeleteRepository(ctx, repo)
			},
			Reversible: s.repositoryExists(repo),
		},
	}, nil
}

func (s *Stages) repositoryExists(repo *vcs.Repository) func(context.Context) bool {
	return func(ctx context.Context) bool {
		ok, err := s.deps.Host.RepositoryExists(ctx, repo)
		return err == nil && ok
	}
}

func (s *Stages) commitArtifacts(ctx context.Context, run *Run) (Outcome, error) {
	host, repo := s.deps.Host, run.Repository
	msg := run.Input.CommitMessage
	if msg == "" {
		msg = vcs.DefaultCommitMessage(len(run.Bundle.Files))
	}
	commit, err := host.Commit(ctx, repo, repo.DefaultBranch, run.Bundle.Contents(), msg)
	if err != nil {
		return Outcome{}, classify(StageCommitArtifacts, err, failure.KindGitOps, false)
	}
	run.Commit = commit
	if err := transition(run, StageCommitArtifacts, StateCommitted); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Snapshot: commit,
		Compensate: &compensation.Action{
			ID:          "revert_commit",
			Description: fmt.Sprintf("revert commit %s on %s", commit, repo.DefaultBranch),
			Reverse: func(ctx context.Context) error {
				_, err := host.RevertCommit(ctx, repo, repo.DefaultBranch, commit)
				return err
			},
			Reversible: s.repositoryExists(repo),
		},
	}, nil
}

type releaseManifest struct {
	Template  string    `yaml:"template"`
	Owner     string    `yaml:"owner"`
	Commit    string    `yaml:"commit"`
	Files     []string  `yaml:"files"`
	Risk      Risk      `yaml:"risk"`
	Reviewers int       `yaml:"reviewers"`
	Requested time.Time `yaml:"requested"`
}

func (s *Stages) openReview(ctx context.Context, run *Run) (Outcome, error) {
	host, repo := s.deps.Host, run.Repository
	now := s.deps.Now()
	branch := BranchName(now)

	if _, err := host.CreateBranch(ctx, repo, branch, repo.DefaultBranch); err != nil {
		return Outcome{}, classify(StageOpenReview, err, failure.KindGitOps, false)
	}
	run.Branch = branch

	review := Describe(run.Bundle)
	data, err := yaml.Marshal(releaseManifest{
		Template:  run.Bundle.Name,
		Owner:     run.Bundle.Owner,
		Commit:    string(run.Commit),
		Files:     run.Bundle.Paths(),
		Risk:      review.Risk,
		Reviewers: review.Reviewers,
		Requested: now.UTC(),
	})
	if err != nil {
		return Outcome{}, failure.Wrap(failure.KindGitOps, component, string(StageOpenReview), err, false)
	}
	if _, err := host.Commit(ctx, repo, branch, map[string][]byte{ReleaseManifestPath: data},
		"Request release of "+run.Bundle.Name); err != nil {
		return Outcome{}, classify(StageOpenReview, err, failure.KindGitOps, false)
	}

	rr, err := host.OpenReviewRequest(ctx, repo, vcs.ReviewRequestInput{
		Title:        review.Title,
		Body:         review.Body(),
		SourceBranch: branch,
		TargetBranch: repo.DefaultBranch,
	})
	if err != nil {
		return Outcome{}, classify(StageOpenReview, err, failure.KindGitOps, false)
	}
	run.Review = &review
	run.ReviewRequest = rr

	if review.Risk == RiskHigh {
		s.notify(ctx, run, notify.Event{
			Kind:  notify.KindStakeholderReview,
			Title: "high-risk review request opened",
			Message: fmt.Sprintf("%s needs %d reviewers (estimated %s)",
				rr.URL, review.Reviewers, review.EstimatedReview),
			Fields: map[string]string{
				"risk":   string(review.Risk),
				"branch": branch,
			},
		})
	}
	if err := transition(run, StageOpenReview, StateReviewOpen); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Snapshot: review,
		Compensate: &compensation.Action{
			ID:          "close_review_request",
			Description: fmt.Sprintf("close review request %d", rr.Number),
			Reverse: func(ctx context.Context) error {
				return host.CloseReviewRequest(ctx, repo, rr)
			},
			Reversible: func(context.Context) bool {
				return rr.State == vcs.ReviewOpen
			},
		},
	}, nil
}

func (s *Stages) triggerValidation(ctx context.Context, run *Run) (Outcome, error) {
	provider, err := s.deps.Providers.Resolve(run.Input.Provider)
	if err != nil {
		return Outcome{}, classify(StageTriggerValidation, err, failure.KindConfiguration, false)
	}
	id, err := provider.Trigger(ctx, ci.Request{
		Repository: *run.Repository,
		Ref:        run.Branch,
		Bundle:     run.Bundle,
	})
	if err != nil {
		return Outcome{}, classify(StageTriggerValidation, err, failure.KindValidation, false)
	}
	run.ValidationRun = id
	if err := transition(run, StageTriggerValidation, StateValidationRunning); err != nil {
		return Outcome{}, err
	}
	return Outcome{Snapshot: id}, nil
}

func (s *Stages) processValidation(ctx context.Context, run *Run) (Outcome, error) {
	provider, err := s.deps.Providers.Resolve(run.Input.Provider)
	if err != nil {
		return Outcome{}, classify(StageProcessValidation, err, failure.KindConfiguration, false)
	}

	status, err := s.deps.Poller.Wait(ctx, provider, run.ValidationRun, func(st ci.RunStatus) {
		if s.deps.Logger != nil {
			s.deps.Logger.Info(ctx, "validation status changed",
				zap.String("run_id", string(st.ID)),
				zap.String("status", string(st.Status)),
				zap.String("message", st.Message))
		}
	})
	if err != nil {
		return Outcome{}, classify(StageProcessValidation, err, failure.KindValidation, false)
	}

	fail := func(msg string) error {
		if err := transition(run, StageProcessValidation, StateValidationFailed); err != nil {
			return err
		}
		return failure.New(failure.KindValidation, component, string(StageProcessValidation), msg, false).
			WithDetail("run_id", string(status.ID)).
			WithDetail("status", string(status.Status))
	}

	switch {
	case !status.Status.Terminal():
		return Outcome{}, fail(fmt.Sprintf("validation run %s still %s after %s",
			status.ID, status.Status, s.deps.Poller.Options().Timeout))
	case status.Status != ci.StatusCompleted:
		return Outcome{}, fail(fmt.Sprintf("validation run %s %s: %s", status.ID, status.Status, status.Message))
	case status.Report == nil:
		return Outcome{}, fail(fmt.Sprintf("validation run %s completed without a report", status.ID))
	}

	report := status.Report
	run.Report = report
	switch report.Verdict {
	case validation.VerdictPassed:
		s.notify(ctx, run, notify.Event{Kind: notify.KindValidationPassed, Title: "validation passed", Message: report.Summary()})
	case validation.VerdictWarning:
		s.notify(ctx, run, notify.Event{Kind: notify.KindValidationWarning, Title: "validation passed with warnings", Message: report.Summary()})
	default:
		if err := transition(run, StageProcessValidation, StateValidationFailed); err != nil {
			return Outcome{}, err
		}
		return Outcome{}, failure.New(failure.KindValidation, component, string(StageProcessValidation),
			"validation failed: "+report.Summary(), false).
			WithDetail("verdict", string(report.Verdict)).
			WithDetail("problems", report.Problems())
	}

	if err := transition(run, StageProcessValidation, StateValidationPassed); err != nil {
		return Outcome{}, err
	}
	return Outcome{Snapshot: report}, nil
}

func (s *Stages) merge(ctx context.Context, run *Run) (Outcome, error) {
	host, repo, rr := s.deps.Host, run.Repository, run.ReviewRequest
	if err := s.checkMerge(ctx, run); err != nil {
		return Outcome{}, err
	}

	merged, err := host.MergeReviewRequest(ctx, repo, rr)
	if err != nil {
		return Outcome{}, classify(StageMerge, err, failure.KindGitOps, false)
	}
	if !merged {
		return Outcome{}, failure.New(failure.KindGitOps, component, string(StageMerge),
			fmt.Sprintf("host declined to merge review request %d", rr.Number), true)
	}
	rr.State = vcs.ReviewMerged
	if err := transition(run, StageMerge, StateMerged); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Snapshot: *rr,
		Compensate: &compensation.Action{
			ID:          "revert_merge",
			Description: fmt.Sprintf("revert merge of review request %d", rr.Number),
			Reverse: func(ctx context.Context) error {
				return host.RevertMerge(ctx, repo, rr)
			},
			Reversible: s.repositoryExists(repo),
		},
	}, nil
}

func (s *Stages) deploy(ctx context.Context, run *Run) (Outcome, error) {
	target := s.deps.Target
	res, err := target.Deploy(ctx, run.Bundle)
	if err != nil {
		ferr := classify(StageDeploy, err, failure.KindDeployment, false)
		var stepErr *deploy.StepError
		if errors.As(err, &stepErr) {
			ferr = ferr.WithDetail("step", stepErr.Step)
		}
		return Outcome{}, ferr
	}
	run.Deployment = res
	if err := transition(run, StageDeploy, StateDeployed); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Snapshot: *res,
		Compensate: &compensation.Action{
			ID:          "undeploy",
			Description: "undeploy " + res.ID,
			Reverse: func(ctx context.Context) error {
				return target.Undeploy(ctx, res)
			},
			Reversible: func(context.Context) bool {
				return res.Success
			},
		},
	}, nil
}

func (s *Stages) verify(ctx context.Context, run *Run) (Outcome, error) {
	if !s.deps.Target.Verify(ctx, run.Deployment) {
		if err := transition(run, StageVerify, StateVerificationFailed); err != nil {
			return Outcome{}, err
		}
		return Outcome{}, failure.New(failure.KindDeployment, component, string(StageVerify),
			fmt.Sprintf("deployment %s failed verification", run.Deployment.ID), false).
			WithDetail("deployment_id", run.Deployment.ID)
	}
	run.Verified = true
	if err := transition(run, StageVerify, StateVerified); err != nil {
		return Outcome{}, err
	}
	return Outcome{Snapshot: true}, nil
}

func (s *Stages) register(ctx context.Context, run *Run) (Outcome, error) {
	if !run.Verified || run.Deployment == nil || !run.Deployment.Success {
		return Outcome{}, failure.New(failure.KindRegistry, component, string(StageRegister),
			"deployment is not verified", false)
	}
	rec := catalog.Record{
		Name:         run.Repository.Name,
		Owner:        run.Repository.Owner,
		Description:  run.Bundle.Description,
		Repository:   run.Repository.FullName(),
		DeploymentID: run.Deployment.ID,
		Location:     run.Deployment.Location,
		Degraded:     run.Bundle.Fallback,
	}
	if run.ReviewRequest != nil {
		rec.ReviewURL = run.ReviewRequest.URL
	}

	stored, err := s.deps.Catalog.Register(ctx, rec)
	if err != nil {
		return Outcome{}, failure.Wrap(failure.KindRegistry, component, string(StageRegister), err, true).
			WithDetail(DetailRecord, rec)
	}
	run.Record = stored
	return Outcome{Snapshot: *stored}, nil
}

func (s *Stages) substituteRecord(run *Run, result any) (Outcome, error) {
	rec, ok := result.(*catalog.Record)
	if !ok || rec == nil {
		return Outcome{}, fmt.Errorf("%w: got %T, want catalog record", ErrNoSubstitute, result)
	}
	run.Record = rec
	run.RegistrationDeferred = true
	return Outcome{Snapshot: *rec}, nil
}
