package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Either every write made through a
// Transaction commits or none does.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	CreateUser(User) (User, error)
	UpdateUser(id string, mutator func(*User) error) (User, error)
	CreateIdea(Idea) (Idea, error)
	DeleteIdea(id string) error
	// CreateHypothesis stores a hypothesis in InitialState regardless of the
	// lifecycle fields supplied.
	CreateHypothesis(Hypothesis) (Hypothesis, error)
	UpdateHypothesis(id string, mutator func(*Hypothesis) error) (Hypothesis, error)
	CreateIceScore(IceScore) (IceScore, error)
	// ReplaceSuccessCriteria deletes every row owned by owner and inserts rows
	// in order.
	ReplaceSuccessCriteria(owner CriteriaOwner, rows []SuccessCriteria) ([]SuccessCriteria, error)
	CreateExperiment(Experiment) (Experiment, error)
	UpdateExperiment(id string, mutator func(*Experiment) error) (Experiment, error)
	AppendExperimentResult(ExperimentResult) (ExperimentResult, error)
	AppendTransition(HypothesisTransition) (HypothesisTransition, error)
}

// TransactionView provides read-only access to snapshot data for services and rules.
type TransactionView interface {
	FindUser(id string) (User, bool)
	ListUsers() []User
	FindIdea(id string) (Idea, bool)
	ListIdeas() []Idea
	// FindHypothesis returns soft-deleted hypotheses too; callers decide.
	FindHypothesis(id string) (Hypothesis, bool)
	ListHypotheses() []Hypothesis
	ListIceScores(hypothesisID string) []IceScore
	ListSuccessCriteria(owner CriteriaOwner) []SuccessCriteria
	FindExperiment(id string) (Experiment, bool)
	ListExperiments(hypothesisID string) []Experiment
	ListExperimentResults(experimentID string) []ExperimentResult
	ListTransitions(hypothesisID string) []HypothesisTransition
}

// PersistentStore is a minimal abstraction over durable backends. The
// transactional path and the activity path are separate on purpose: activity
// appends never join a RunInTransaction call.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	AppendActivity(ctx context.Context, activity Activity) (Activity, error)
	ListActivities(ctx context.Context, filter ActivityFilter) ([]Activity, error)
}
