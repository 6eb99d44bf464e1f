package domain

import "fmt"

// Level is the coarse lifecycle position of a hypothesis.
type Level string

// Hypothesis maturity levels.
const (
	Level1 Level = "LEVEL_1"
	Level2 Level = "LEVEL_2"
	Level3 Level = "LEVEL_3"
	Level4 Level = "LEVEL_4"
)

// Stage is the fine lifecycle position within a level.
type Stage string

// Hypothesis stages.
const (
	StageFormulation      Stage = "FORMULATION"
	StageDeskResearch     Stage = "DESK_RESEARCH"
	StageExperimentDesign Stage = "EXPERIMENT_DESIGN"
	StageExperimentation  Stage = "EXPERIMENTATION"
	StageConfirmed        Stage = "CONFIRMED"
	StageRefuted          Stage = "REFUTED"
)

// Status is the workflow status carried alongside level and stage.
type Status string

// Hypothesis statuses. VALIDATED and INVALIDATED are terminal.
const (
	StatusDraft         Status = "DRAFT"
	StatusScored        Status = "SCORED"
	StatusResearch      Status = "RESEARCH"
	StatusExperimenting Status = "EXPERIMENTING"
	StatusValidated     Status = "VALIDATED"
	StatusInvalidated   Status = "INVALIDATED"
)

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusValidated || s == StatusInvalidated
}

// Position is the (level, stage) pair addressed by a transition request.
type Position struct {
	Level Level `json:"level"`
	Stage Stage `json:"stage"`
}

func (p Position) String() string {
	return fmt.Sprintf("%s/%s", p.Level, p.Stage)
}

// LifecycleState is the composite (level, stage, status) of a hypothesis.
type LifecycleState struct {
	Level  Level  `json:"level"`
	Stage  Stage  `json:"stage"`
	Status Status `json:"status"`
}

func (s LifecycleState) String() string {
	return fmt.Sprintf("%s/%s/%s", s.Level, s.Stage, s.Status)
}

// Position drops the status from the state.
func (s LifecycleState) Position() Position {
	return Position{Level: s.Level, Stage: s.Stage}
}

// Terminal reports whether the state is a final outcome.
func (s LifecycleState) Terminal() bool {
	return s.Status.Terminal()
}

// Valid reports whether the state is one of the declared combinations.
func (s LifecycleState) Valid() bool {
	_, ok := validStateSet[s]
	return ok
}

// InitialState is assigned to every new hypothesis.
var InitialState = LifecycleState{Level: Level1, Stage: StageFormulation, Status: StatusDraft}

var validStates = []LifecycleState{
	InitialState,
	{Level: Level1, Stage: StageFormulation, Status: StatusScored},
	{Level: Level2, Stage: StageDeskResearch, Status: StatusResearch},
	{Level: Level2, Stage: StageExperimentDesign, Status: StatusResearch},
	{Level: Level3, Stage: StageExperimentation, Status: StatusExperimenting},
	{Level: Level4, Stage: StageConfirmed, Status: StatusValidated},
	{Level: Level4, Stage: StageRefuted, Status: StatusInvalidated},
}

var validStateSet = func() map[LifecycleState]struct{} {
	set := make(map[LifecycleState]struct{}, len(validStates))
	for _, s := range validStates {
		set[s] = struct{}{}
	}
	return set
}()

// ValidStates returns the closed set of reachable lifecycle states.
func ValidStates() []LifecycleState {
	out := make([]LifecycleState, len(validStates))
	copy(out, validStates)
	return out
}

// Gate names a precondition that must hold before a transition is taken.
type Gate string

// Transition gates, evaluated in the order declared on each transition.
const (
	GateStatus            Gate = "status"
	GateIceScore          Gate = "ice_score"
	GateDeskResearch      Gate = "desk_research"
	GateRiceScore         Gate = "rice_score"
	GateSuccessCriteria   Gate = "success_criteria"
	GateCriteriaEvaluated Gate = "criteria_evaluated"
)

// GateFacts summarises the scoring artifacts attached to a hypothesis.
type GateFacts struct {
	IceScores           int
	DeskResearch        bool
	RiceScore           bool
	SuccessCriteria     int
	UnevaluatedCriteria int
}

func (f GateFacts) satisfies(g Gate) bool {
	switch g {
	case GateIceScore:
		return f.IceScores > 0
	case GateDeskResearch:
		return f.DeskResearch
	case GateRiceScore:
		return f.RiceScore
	case GateSuccessCriteria:
		return f.SuccessCriteria > 0
	case GateCriteriaEvaluated:
		return f.UnevaluatedCriteria == 0
	default:
		return false
	}
}

func gateMessage(g Gate) string {
	switch g {
	case GateIceScore:
		return "at least one ICE score is required"
	case GateDeskResearch:
		return "desk research must be recorded"
	case GateRiceScore:
		return "a RICE score must be computed"
	case GateSuccessCriteria:
		return "at least one success criterion is required"
	case GateCriteriaEvaluated:
		return "every success criterion needs a verdict"
	default:
		return string(g) + " gate not satisfied"
	}
}

// TransitionRule declares one legal lifecycle move.
type TransitionRule struct {
	From           Position
	To             LifecycleState
	RequiredStatus Status
	Gates          []Gate
}

var transitionTable = []TransitionRule{
	{
		From:           Position{Level1, StageFormulation},
		To:             LifecycleState{Level2, StageDeskResearch, StatusResearch},
		RequiredStatus: StatusScored,
		Gates:          []Gate{GateIceScore},
	},
	{
		From:           Position{Level2, StageDeskResearch},
		To:             LifecycleState{Level1, StageFormulation, StatusScored},
		RequiredStatus: StatusResearch,
	},
	{
		From:           Position{Level2, StageDeskResearch},
		To:             LifecycleState{Level2, StageExperimentDesign, StatusResearch},
		RequiredStatus: StatusResearch,
		Gates:          []Gate{GateDeskResearch},
	},
	{
		From:           Position{Level2, StageDeskResearch},
		To:             LifecycleState{Level4, StageRefuted, StatusInvalidated},
		RequiredStatus: StatusResearch,
	},
	{
		From:           Position{Level2, StageExperimentDesign},
		To:             LifecycleState{Level3, StageExperimentation, StatusExperimenting},
		RequiredStatus: StatusResearch,
		Gates:          []Gate{GateRiceScore, GateSuccessCriteria},
	},
	{
		From:           Position{Level2, StageExperimentDesign},
		To:             LifecycleState{Level4, StageRefuted, StatusInvalidated},
		RequiredStatus: StatusResearch,
	},
	{
		From:           Position{Level3, StageExperimentation},
		To:             LifecycleState{Level4, StageConfirmed, StatusValidated},
		RequiredStatus: StatusExperimenting,
		Gates:          []Gate{GateCriteriaEvaluated},
	},
	{
		From:           Position{Level3, StageExperimentation},
		To:             LifecycleState{Level4, StageRefuted, StatusInvalidated},
		RequiredStatus: StatusExperimenting,
		Gates:          []Gate{GateCriteriaEvaluated},
	},
}

// Transitions returns a copy of the declared transition table.
func Transitions() []TransitionRule {
	out := make([]TransitionRule, len(transitionTable))
	for i, rule := range transitionTable {
		rule.Gates = append([]Gate(nil), rule.Gates...)
		out[i] = rule
	}
	return out
}

// LookupTransition finds the declared move between two positions.
func LookupTransition(from, to Position) (TransitionRule, bool) {
	for _, rule := range transitionTable {
		if rule.From == from && rule.To.Position() == to {
			return rule, true
		}
	}
	return TransitionRule{}, false
}

// PlanTransition validates a requested move against the table and gates and
// returns the resulting state. Failures are IllegalTransition when the move is
// not declared (or the state is terminal) and PreconditionFailed when a status
// or artifact gate is unmet.
func PlanTransition(current LifecycleState, target Position, facts GateFacts) (LifecycleState, error) {
	if current.Terminal() {
		return LifecycleState{}, IllegalTransitionError(current, target,
			fmt.Sprintf("hypothesis is in terminal state %s", current))
	}
	rule, ok := LookupTransition(current.Position(), target)
	if !ok {
		return LifecycleState{}, IllegalTransitionError(current, target,
			fmt.Sprintf("no transition declared from %s to %s", current.Position(), target))
	}
	if current.Status != rule.RequiredStatus {
		return LifecycleState{}, PreconditionError(GateStatus,
			fmt.Sprintf("status must be %s to leave %s, got %s", rule.RequiredStatus, rule.From, current.Status))
	}
	for _, gate := range rule.Gates {
		if !facts.satisfies(gate) {
			return LifecycleState{}, PreconditionError(gate, gateMessage(gate))
		}
	}
	return rule.To, nil
}

// ApplyScoreStep returns the state after an ICE score is attached. A draft
// hypothesis becomes SCORED; every other state is unchanged.
func ApplyScoreStep(current LifecycleState) (LifecycleState, bool) {
	if current == InitialState {
		return LifecycleState{Level: Level1, Stage: StageFormulation, Status: StatusScored}, true
	}
	return current, false
}

// AcceptsScoringUpdates reports whether status-preserving scoring mutations
// are allowed in the given state.
func AcceptsScoringUpdates(current LifecycleState) bool {
	return current.Valid() && !current.Terminal()
}
