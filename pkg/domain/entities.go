// Package domain defines the core persistent entities, value types, lifecycle
// and permission primitives used by hadilab.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records, activities and persistence buckets.
const (
	// EntityUser identifies a user account record.
	EntityUser EntityType = "user"
	// EntityIdea identifies an idea record.
	EntityIdea EntityType = "idea"
	// EntityHypothesis identifies a hypothesis record.
	EntityHypothesis EntityType = "hypothesis"
	// EntityIceScore identifies a single collaborative ICE score.
	EntityIceScore EntityType = "ice_score"
	// EntitySuccessCriteria identifies a success criterion row.
	EntitySuccessCriteria EntityType = "success_criteria"
	// EntityExperiment identifies an experiment record.
	EntityExperiment EntityType = "experiment"
	// EntityExperimentResult identifies an append-only experiment measurement.
	EntityExperimentResult EntityType = "experiment_result"
	// EntityTransition identifies a hypothesis transition ledger row.
	EntityTransition EntityType = "hypothesis_transition"
)

// UserStatus captures account standing as reported by the identity provider.
type UserStatus string

// Account statuses.
const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// ExperimentStatus enumerates experiment execution states.
type ExperimentStatus string

// Experiment statuses.
const (
	ExperimentPlanned   ExperimentStatus = "PLANNED"
	ExperimentRunning   ExperimentStatus = "RUNNING"
	ExperimentCompleted ExperimentStatus = "COMPLETED"
)

// ActivityType enumerates the kinds of domain events kept in the activity log.
type ActivityType string

// Activity kinds.
const (
	ActivityCreated       ActivityType = "CREATED"
	ActivityUpdated       ActivityType = "UPDATED"
	ActivityDeleted       ActivityType = "DELETED"
	ActivityStatusChanged ActivityType = "STATUS_CHANGED"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is an actor known to the system. Authentication happens elsewhere;
// the core only consumes the role and standing.
type User struct {
	Base
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     Role       `json:"role"`
	Status   UserStatus `json:"status"`
	IsActive bool       `json:"is_active"`
}

// Idea groups hypotheses that explore the same opportunity.
type Idea struct {
	Base
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
}

// DeskResearch holds the secondary research gathered at LEVEL_2.
type DeskResearch struct {
	Notes         string    `json:"notes"`
	Sources       []string  `json:"sources"`
	Risks         []string  `json:"risks"`
	Opportunities []string  `json:"opportunities"`
	Date          time.Time `json:"date"`
}

// Hypothesis is the unit moved through the HADI lifecycle.
type Hypothesis struct {
	Base
	Title        string        `json:"title"`
	Statement    string        `json:"statement"`
	IdeaID       string        `json:"idea_id"`
	CreatedBy    string        `json:"created_by"`
	Level        Level         `json:"level"`
	Stage        Stage         `json:"stage"`
	Status       Status        `json:"status"`
	Reach        *float64      `json:"reach,omitempty"`
	Impact       *float64      `json:"impact,omitempty"`
	Confidence   *float64      `json:"confidence,omitempty"`
	Effort       *float64      `json:"effort,omitempty"`
	RiceScore    *float64      `json:"rice_score,omitempty"`
	DeskResearch *DeskResearch `json:"desk_research,omitempty"`
	DeletedAt    *time.Time    `json:"deleted_at,omitempty"`
}

// State returns the composite lifecycle position of the hypothesis.
func (h Hypothesis) State() LifecycleState {
	return LifecycleState{Level: h.Level, Stage: h.Stage, Status: h.Status}
}

// Deleted reports whether the hypothesis carries a soft-delete marker.
func (h Hypothesis) Deleted() bool {
	return h.DeletedAt != nil
}

// Owner returns the creator reference used for permission checks.
func (h Hypothesis) Owner() *Resource {
	return &Resource{Type: EntityHypothesis, ID: h.ID, CreatedBy: h.CreatedBy}
}

// IceScore is one collaborator's Impact/Confidence/Ease assessment.
type IceScore struct {
	Base
	HypothesisID string  `json:"hypothesis_id"`
	ScoredBy     string  `json:"scored_by"`
	Impact       float64 `json:"impact"`
	Confidence   float64 `json:"confidence"`
	Ease         float64 `json:"ease"`
	Score        float64 `json:"score"`
}

// OwnerType names the kind of entity owning a success criteria set.
type OwnerType string

// Success criteria owners.
const (
	OwnerHypothesis OwnerType = "hypothesis"
	OwnerExperiment OwnerType = "experiment"
)

// CriteriaOwner addresses the entity whose success criteria set is managed.
type CriteriaOwner struct {
	Type OwnerType `json:"type"`
	ID   string    `json:"id"`
}

// SuccessCriteria is a measurable target attached to a hypothesis or experiment.
type SuccessCriteria struct {
	Base
	Owner       CriteriaOwner `json:"owner"`
	Position    int           `json:"position"`
	Name        string        `json:"name"`
	TargetValue float64       `json:"target_value"`
	ActualValue *float64      `json:"actual_value,omitempty"`
	Achieved    *bool         `json:"achieved,omitempty"`
	Unit        string        `json:"unit"`
	Notes       string        `json:"notes"`
}

// Evaluated reports whether a verdict has been recorded for the criterion.
func (c SuccessCriteria) Evaluated() bool {
	return c.Achieved != nil
}

// Experiment is an action run to produce data for a hypothesis.
type Experiment struct {
	Base
	HypothesisID string           `json:"hypothesis_id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	CreatedBy    string           `json:"created_by"`
	Status       ExperimentStatus `json:"status"`
}

// ExperimentResult is an append-only measurement captured for an experiment.
type ExperimentResult struct {
	Base
	ExperimentID string  `json:"experiment_id"`
	Metric       string  `json:"metric"`
	Value        float64 `json:"value"`
	Unit         string  `json:"unit"`
	Notes        string  `json:"notes,omitempty"`
	RecordedBy   string  `json:"recorded_by"`
	Seq          int64   `json:"seq"`
}

// HypothesisTransition is an immutable ledger row describing one lifecycle move.
type HypothesisTransition struct {
	ID           string    `json:"id"`
	HypothesisID string    `json:"hypothesis_id"`
	FromLevel    Level     `json:"from_level"`
	ToLevel      Level     `json:"to_level"`
	FromStage    Stage     `json:"from_stage"`
	ToStage      Stage     `json:"to_stage"`
	FromStatus   Status    `json:"from_status"`
	ToStatus     Status    `json:"to_status"`
	ActorID      string    `json:"actor_id"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
	Seq          int64     `json:"seq"`
}

// Activity is an immutable domain event row.
type Activity struct {
	ID          string            `json:"id"`
	Type        ActivityType      `json:"type"`
	Description string            `json:"description"`
	EntityType  EntityType        `json:"entity_type"`
	EntityID    string            `json:"entity_id"`
	ActorID     string            `json:"actor_id"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Seq         int64             `json:"seq"`
}

// ActivityFilter narrows activity listings. Empty fields match everything.
type ActivityFilter struct {
	EntityType EntityType
	EntityID   string
	ActorID    string
}

// Matches reports whether the activity satisfies the filter.
func (f ActivityFilter) Matches(a Activity) bool {
	if f.EntityType != "" && a.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && a.EntityID != f.EntityID {
		return false
	}
	if f.ActorID != "" && a.ActorID != f.ActorID {
		return false
	}
	return true
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the change set.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
