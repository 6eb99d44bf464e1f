// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments and as the transactional engine
// behind the sqlite and postgres snapshot stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hadilab/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// User aliases domain.User for in-memory persistence operations.
	User = domain.User
	// Idea aliases domain.Idea.
	Idea = domain.Idea
	// Hypothesis aliases domain.Hypothesis.
	Hypothesis = domain.Hypothesis
	// IceScore aliases domain.IceScore.
	IceScore = domain.IceScore
	// SuccessCriteria aliases domain.SuccessCriteria.
	SuccessCriteria = domain.SuccessCriteria
	// CriteriaOwner aliases domain.CriteriaOwner.
	CriteriaOwner = domain.CriteriaOwner
	// Experiment aliases domain.Experiment.
	Experiment = domain.Experiment
	// ExperimentResult aliases domain.ExperimentResult.
	ExperimentResult = domain.ExperimentResult
	// HypothesisTransition aliases domain.HypothesisTransition.
	HypothesisTransition = domain.HypothesisTransition
	// Activity aliases domain.Activity.
	Activity = domain.Activity
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// CommitHook receives the candidate state before it replaces the live state.
// Returning an error aborts the commit and leaves the store untouched.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(next func() string) Option {
	return func(s *Store) {
		if next != nil {
			s.idFn = next
		}
	}
}

// WithCommitHook installs a hook run inside every commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// Store provides an in-memory transactional store for the core domain.
// Transactions are serialized: precondition reads and effect writes of one
// RunInTransaction call never interleave with another.
type Store struct {
	mu          sync.RWMutex
	state       memoryState
	activities  []Activity
	activitySeq int64
	engine      *RulesEngine
	nowFn       func() time.Time
	idFn        func() string
	hook        CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		idFn:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCommitHook replaces the commit hook. Durable stores call it once after
// hydrating state.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state, s.activities)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	snapshot = migrateSnapshot(snapshot)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
	s.activities = cloneActivities(snapshot.Activities)
	sortActivities(s.activities)
	s.activitySeq = maxActivitySeq(s.activities)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only if fn succeeds, no blocking rule
// violation is reported and the commit hook accepts the result.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}
	if len(tx.changes) == 0 {
		return Result{}, nil
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.hook != nil {
		if err := s.hook(ctx, snapshotFromMemoryState(tx.state, s.activities)); err != nil {
			return result, fmt.Errorf("commit: %w", err)
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only view of the committed state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTransactionView(&s.state))
}

// AppendActivity appends one row to the activity log outside any
// transaction.
func (s *Store) AppendActivity(ctx context.Context, activity Activity) (Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if activity.ID == "" {
		activity.ID = s.idFn()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = s.nowFn()
	}
	activity.Seq = s.activitySeq + 1
	activity = cloneActivity(activity)

	s.activities = append(s.activities, activity)
	if s.hook != nil {
		if err := s.hook(ctx, snapshotFromMemoryState(s.state, s.activities)); err != nil {
			s.activities = s.activities[:len(s.activities)-1]
			return Activity{}, fmt.Errorf("append activity: %w", err)
		}
	}
	s.activitySeq = activity.Seq
	return cloneActivity(activity), nil
}

// ListActivities returns matching activities ordered by creation time.
func (s *Store) ListActivities(_ context.Context, filter domain.ActivityFilter) ([]Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Activity, 0)
	for _, a := range s.activities {
		if filter.Matches(a) {
			out = append(out, cloneActivity(a))
		}
	}
	sortActivities(out)
	return out, nil
}

// transaction represents a mutation set applied to a cloned store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) record(entity domain.EntityType, action domain.Action, before, after any) error {
	change := Change{
		Entity: entity,
		Action: action,
		Before: domain.UndefinedChangePayload(),
		After:  domain.UndefinedChangePayload(),
	}
	if before != nil {
		payload, err := domain.NewChangePayloadFromValue(before)
		if err != nil {
			return fmt.Errorf("encode %s change: %w", entity, err)
		}
		change.Before = payload
	}
	if after != nil {
		payload, err := domain.NewChangePayloadFromValue(after)
		if err != nil {
			return fmt.Errorf("encode %s change: %w", entity, err)
		}
		change.After = payload
	}
	tx.changes = append(tx.changes, change)
	return nil
}

func (tx *transaction) nextSeq() int64 {
	tx.state.seq++
	return tx.state.seq
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp shared by every write in the transaction.
func (tx *transaction) Now() time.Time {
	return tx.now
}

// CreateUser stores a new user.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = tx.store.idFn()
	}
	if _, exists := tx.state.users[u.ID]; exists {
		return User{}, domain.InvalidError(fmt.Sprintf("user %q already exists", u.ID))
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.users[u.ID] = u
	return u, tx.record(domain.EntityUser, domain.ActionCreate, nil, u)
}

// UpdateUser mutates a user using the provided mutator function.
func (tx *transaction) UpdateUser(id string, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[id]
	if !ok {
		return User{}, domain.NotFoundError(domain.EntityUser, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.users[id] = current
	return current, tx.record(domain.EntityUser, domain.ActionUpdate, before, current)
}

// CreateIdea stores a new idea.
func (tx *transaction) CreateIdea(i Idea) (Idea, error) {
	if i.ID == "" {
		i.ID = tx.store.idFn()
	}
	if _, exists := tx.state.ideas[i.ID]; exists {
		return Idea{}, domain.InvalidError(fmt.Sprintf("idea %q already exists", i.ID))
	}
	i.CreatedAt = tx.now
	i.UpdatedAt = tx.now
	tx.state.ideas[i.ID] = i
	return i, tx.record(domain.EntityIdea, domain.ActionCreate, nil, i)
}

// DeleteIdea removes an idea and cascades to the hypotheses it owns together
// with their scores, criteria, experiments and results. Ledger rows stay.
func (tx *transaction) DeleteIdea(id string) error {
	current, ok := tx.state.ideas[id]
	if !ok {
		return domain.NotFoundError(domain.EntityIdea, id)
	}
	for hid, h := range tx.state.hypotheses {
		if h.IdeaID != id {
			continue
		}
		if err := tx.purgeHypothesis(hid); err != nil {
			return err
		}
	}
	delete(tx.state.ideas, id)
	return tx.record(domain.EntityIdea, domain.ActionDelete, current, nil)
}

func (tx *transaction) purgeHypothesis(id string) error {
	h := tx.state.hypotheses[id]
	for sid, score := range tx.state.iceScores {
		if score.HypothesisID == id {
			delete(tx.state.iceScores, sid)
		}
	}
	tx.dropCriteria(CriteriaOwner{Type: domain.OwnerHypothesis, ID: id})
	for eid, exp := range tx.state.experiments {
		if exp.HypothesisID != id {
			continue
		}
		for rid, r := range tx.state.results {
			if r.ExperimentID == eid {
				delete(tx.state.results, rid)
			}
		}
		tx.dropCriteria(CriteriaOwner{Type: domain.OwnerExperiment, ID: eid})
		delete(tx.state.experiments, eid)
	}
	delete(tx.state.hypotheses, id)
	return tx.record(domain.EntityHypothesis, domain.ActionDelete, h, nil)
}

func (tx *transaction) dropCriteria(owner CriteriaOwner) []SuccessCriteria {
	var removed []SuccessCriteria
	for cid, c := range tx.state.criteria {
		if c.Owner == owner {
			removed = append(removed, c)
			delete(tx.state.criteria, cid)
		}
	}
	return removed
}

// CreateHypothesis stores a new hypothesis in the initial lifecycle state.
func (tx *transaction) CreateHypothesis(h Hypothesis) (Hypothesis, error) {
	if _, ok := tx.state.ideas[h.IdeaID]; !ok {
		return Hypothesis{}, domain.NotFoundError(domain.EntityIdea, h.IdeaID)
	}
	if h.ID == "" {
		h.ID = tx.store.idFn()
	}
	if _, exists := tx.state.hypotheses[h.ID]; exists {
		return Hypothesis{}, domain.InvalidError(fmt.Sprintf("hypothesis %q already exists", h.ID))
	}
	h.Level = domain.InitialState.Level
	h.Stage = domain.InitialState.Stage
	h.Status = domain.InitialState.Status
	h.DeletedAt = nil
	h.CreatedAt = tx.now
	h.UpdatedAt = tx.now
	tx.state.hypotheses[h.ID] = cloneHypothesis(h)
	return cloneHypothesis(h), tx.record(domain.EntityHypothesis, domain.ActionCreate, nil, h)
}

// UpdateHypothesis mutates a hypothesis using the provided mutator function.
// Identity, ownership and creation time cannot be changed by the mutator.
func (tx *transaction) UpdateHypothesis(id string, mutator func(*Hypothesis) error) (Hypothesis, error) {
	current, ok := tx.state.hypotheses[id]
	if !ok {
		return Hypothesis{}, domain.NotFoundError(domain.EntityHypothesis, id)
	}
	before := cloneHypothesis(current)
	if err := mutator(&current); err != nil {
		return Hypothesis{}, err
	}
	current.ID = id
	current.IdeaID = before.IdeaID
	current.CreatedBy = before.CreatedBy
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.hypotheses[id] = cloneHypothesis(current)
	return cloneHypothesis(current), tx.record(domain.EntityHypothesis, domain.ActionUpdate, before, current)
}

func (tx *transaction) liveHypothesis(id string) (Hypothesis, error) {
	h, ok := tx.state.hypotheses[id]
	if !ok || h.Deleted() {
		return Hypothesis{}, domain.NotFoundError(domain.EntityHypothesis, id)
	}
	return h, nil
}

// CreateIceScore attaches a collaborative ICE score to a live hypothesis.
func (tx *transaction) CreateIceScore(score IceScore) (IceScore, error) {
	if _, err := tx.liveHypothesis(score.HypothesisID); err != nil {
		return IceScore{}, err
	}
	if score.ID == "" {
		score.ID = tx.store.idFn()
	}
	score.CreatedAt = tx.now
	score.UpdatedAt = tx.now
	tx.state.iceScores[score.ID] = score
	return score, tx.record(domain.EntityIceScore, domain.ActionCreate, nil, score)
}

// ReplaceSuccessCriteria swaps the full criteria set of an owner.
func (tx *transaction) ReplaceSuccessCriteria(owner CriteriaOwner, rows []SuccessCriteria) ([]SuccessCriteria, error) {
	switch owner.Type {
	case domain.OwnerHypothesis:
		if _, err := tx.liveHypothesis(owner.ID); err != nil {
			return nil, err
		}
	case domain.OwnerExperiment:
		if _, ok := tx.state.experiments[owner.ID]; !ok {
			return nil, domain.NotFoundError(domain.EntityExperiment, owner.ID)
		}
	default:
		return nil, domain.InvalidError(fmt.Sprintf("unknown criteria owner type %q", owner.Type))
	}

	for _, removed := range tx.dropCriteria(owner) {
		if err := tx.record(domain.EntitySuccessCriteria, domain.ActionDelete, removed, nil); err != nil {
			return nil, err
		}
	}

	out := make([]SuccessCriteria, 0, len(rows))
	for i, row := range rows {
		row.ID = tx.store.idFn()
		row.Owner = owner
		row.Position = i
		row.CreatedAt = tx.now
		row.UpdatedAt = tx.now
		tx.state.criteria[row.ID] = cloneCriteria(row)
		if err := tx.record(domain.EntitySuccessCriteria, domain.ActionCreate, nil, row); err != nil {
			return nil, err
		}
		out = append(out, cloneCriteria(row))
	}
	return out, nil
}

// CreateExperiment stores a new experiment for a live hypothesis.
func (tx *transaction) CreateExperiment(e Experiment) (Experiment, error) {
	if _, err := tx.liveHypothesis(e.HypothesisID); err != nil {
		return Experiment{}, err
	}
	if e.ID == "" {
		e.ID = tx.store.idFn()
	}
	if e.Status == "" {
		e.Status = domain.ExperimentPlanned
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.experiments[e.ID] = e
	return e, tx.record(domain.EntityExperiment, domain.ActionCreate, nil, e)
}

// UpdateExperiment mutates an experiment using the provided mutator function.
func (tx *transaction) UpdateExperiment(id string, mutator func(*Experiment) error) (Experiment, error) {
	current, ok := tx.state.experiments[id]
	if !ok {
		return Experiment{}, domain.NotFoundError(domain.EntityExperiment, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Experiment{}, err
	}
	current.ID = id
	current.HypothesisID = before.HypothesisID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.experiments[id] = current
	return current, tx.record(domain.EntityExperiment, domain.ActionUpdate, before, current)
}

// AppendExperimentResult appends a measurement to an experiment.
func (tx *transaction) AppendExperimentResult(r ExperimentResult) (ExperimentResult, error) {
	if _, ok := tx.state.experiments[r.ExperimentID]; !ok {
		return ExperimentResult{}, domain.NotFoundError(domain.EntityExperiment, r.ExperimentID)
	}
	r.ID = tx.store.idFn()
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	r.Seq = tx.nextSeq()
	tx.state.results[r.ID] = r
	return r, tx.record(domain.EntityExperimentResult, domain.ActionCreate, nil, r)
}

// AppendTransition appends a ledger row. Rows are never updated or deleted.
func (tx *transaction) AppendTransition(t HypothesisTransition) (HypothesisTransition, error) {
	if _, ok := tx.state.hypotheses[t.HypothesisID]; !ok {
		return HypothesisTransition{}, domain.NotFoundError(domain.EntityHypothesis, t.HypothesisID)
	}
	t.ID = tx.store.idFn()
	t.CreatedAt = tx.now
	t.Seq = tx.nextSeq()
	tx.state.transitions[t.ID] = t
	return t, tx.record(domain.EntityTransition, domain.ActionCreate, nil, t)
}

// transactionView exposes a read-only state to services and rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	return u, ok
}

func (v transactionView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return byCreation(out[i].Base, out[j].Base) })
	return out
}

func (v transactionView) FindIdea(id string) (Idea, bool) {
	i, ok := v.state.ideas[id]
	return i, ok
}

func (v transactionView) ListIdeas() []Idea {
	out := make([]Idea, 0, len(v.state.ideas))
	for _, i := range v.state.ideas {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool { return byCreation(out[i].Base, out[j].Base) })
	return out
}

func (v transactionView) FindHypothesis(id string) (Hypothesis, bool) {
	h, ok := v.state.hypotheses[id]
	if !ok {
		return Hypothesis{}, false
	}
	return cloneHypothesis(h), true
}

func (v transactionView) ListHypotheses() []Hypothesis {
	out := make([]Hypothesis, 0, len(v.state.hypotheses))
	for _, h := range v.state.hypotheses {
		out = append(out, cloneHypothesis(h))
	}
	sort.Slice(out, func(i, j int) bool { return byCreation(out[i].Base, out[j].Base) })
	return out
}

func (v transactionView) ListIceScores(hypothesisID string) []IceScore {
	out := make([]IceScore, 0)
	for _, s := range v.state.iceScores {
		if s.HypothesisID == hypothesisID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return byCreation(out[i].Base, out[j].Base) })
	return out
}

func (v transactionView) ListSuccessCriteria(owner CriteriaOwner) []SuccessCriteria {
	out := make([]SuccessCriteria, 0)
	for _, c := range v.state.criteria {
		if c.Owner == owner {
			out = append(out, cloneCriteria(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (v transactionView) FindExperiment(id string) (Experiment, bool) {
	e, ok := v.state.experiments[id]
	return e, ok
}

func (v transactionView) ListExperiments(hypothesisID string) []Experiment {
	out := make([]Experiment, 0)
	for _, e := range v.state.experiments {
		if e.HypothesisID == hypothesisID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return byCreation(out[i].Base, out[j].Base) })
	return out
}

func (v transactionView) ListExperimentResults(experimentID string) []ExperimentResult {
	out := make([]ExperimentResult, 0)
	for _, r := range v.state.results {
		if r.ExperimentID == experimentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (v transactionView) ListTransitions(hypothesisID string) []HypothesisTransition {
	out := make([]HypothesisTransition, 0)
	for _, t := range v.state.transitions {
		if t.HypothesisID == hypothesisID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func byCreation(a, b domain.Base) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
