package pipeline

import "fmt"

// Stage names a unit of pipeline work.
type Stage string

const (
	StageGenerate          Stage = "generate"
	StageCreateRepository  Stage = "create_repository"
	StageCommitArtifacts   Stage = "commit_artifacts"
	StageOpenReview        Stage = "open_review"
	StageTriggerValidation Stage = "trigger_validation"
	StageProcessValidation Stage = "process_validation"
	StageMerge             Stage = "merge"
	StageDeploy            Stage = "deploy"
	StageVerify            Stage = "verify"
	StageRegister          Stage = "register"
)

// AllStages returns every stage in execution order.
func AllStages() []Stage {
	return []Stage{
		StageGenerate, StageCreateRepository, StageCommitArtifacts, StageOpenReview,
		StageTriggerValidation, StageProcessValidation, StageMerge, StageDeploy,
		StageVerify, StageRegister,
	}
}

// State is the pipeline state of a run.
type State string

const (
	StateNew                State = "New"
	StateCreated            State = "Created"
	StateCommitted          State = "Committed"
	StateReviewOpen         State = "ReviewOpen"
	StateValidationRunning  State = "ValidationRunning"
	StateValidationPassed   State = "ValidationPassed"
	StateValidationFailed   State = "ValidationFailed"
	StateMerged             State = "Merged"
	StateDeployed           State = "Deployed"
	StateVerified           State = "Verified"
	StateVerificationFailed State = "VerificationFailed"
	StateClosed             State = "Closed"
	StateRolledBack         State = "RolledBack"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateValidationFailed, StateVerified, StateVerificationFailed, StateClosed, StateRolledBack:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateNew:               {StateCreated},
	StateCreated:           {StateCommitted},
	StateCommitted:         {StateReviewOpen},
	StateReviewOpen:        {StateValidationRunning},
	StateValidationRunning: {StateValidationPassed, StateValidationFailed},
	StateValidationPassed:  {StateMerged},
	StateMerged:            {StateDeployed},
	StateDeployed:          {StateVerified, StateVerificationFailed},
}

// CanTransition reports whether from -> to is allowed. Closed and RolledBack
// are reachable from every non-terminal state.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateClosed || to == StateRolledBack {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateError is returned for an illegal transition.
type StateError struct {
	From, To State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("pipeline: cannot transition from %s to %s", e.From, e.To)
}
