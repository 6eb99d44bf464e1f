package core

import "hadilab/pkg/domain"

type (
	EntityType            = domain.EntityType
	Severity              = domain.Severity
	Base                  = domain.Base
	User                  = domain.User
	Idea                  = domain.Idea
	Hypothesis            = domain.Hypothesis
	IceScore              = domain.IceScore
	SuccessCriteria       = domain.SuccessCriteria
	CriteriaOwner         = domain.CriteriaOwner
	Experiment            = domain.Experiment
	ExperimentResult      = domain.ExperimentResult
	HypothesisTransition  = domain.HypothesisTransition
	Activity              = domain.Activity
	ActivityFilter        = domain.ActivityFilter
	Level                 = domain.Level
	Stage                 = domain.Stage
	Status                = domain.Status
	LifecycleState        = domain.LifecycleState
	Position              = domain.Position
	IceInputs             = domain.IceInputs
	IceSummary            = domain.IceSummary
	RiceInputs            = domain.RiceInputs
	DeskResearchInput     = domain.DeskResearchInput
	SuccessCriterionInput = domain.SuccessCriterionInput
	Change                = domain.Change
	Action                = domain.Action
	Violation             = domain.Violation
	Result                = domain.Result
	RuleViolationError    = domain.RuleViolationError
	Rule                  = domain.Rule
	RulesEngine           = domain.RulesEngine
	Transaction           = domain.Transaction
	TransactionView       = domain.TransactionView
	PersistentStore       = domain.PersistentStore
	Policy                = domain.Policy
)

const (
	EntityUser             = domain.EntityUser
	EntityIdea             = domain.EntityIdea
	EntityHypothesis       = domain.EntityHypothesis
	EntityIceScore         = domain.EntityIceScore
	EntitySuccessCriteria  = domain.EntitySuccessCriteria
	EntityExperiment       = domain.EntityExperiment
	EntityExperimentResult = domain.EntityExperimentResult
	EntityTransition       = domain.EntityTransition
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
