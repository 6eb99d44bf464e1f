package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"hadilab/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServicePanicsOnNilStore(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic on nil store")
		}
	}()
	_ = NewService(nil)
}

type failingRecorder struct{ calls int }

func (r *failingRecorder) Record(context.Context, Activity) error {
	r.calls++
	return errors.New("activity sink offline")
}

func TestActivityFailureIsLoggedAndSwallowed(t *testing.T) {
	logger := &recordingLogger{}
	rec := &failingRecorder{}
	f := newFixture(t, WithLogger(logger), WithActivityRecorder(rec))

	h := f.scored()
	if h.Status != domain.StatusScored {
		t.Fatalf("expected scored hypothesis, got %s", h.Status)
	}
	if rec.calls == 0 {
		t.Fatalf("expected activity recorder to be called")
	}
	if logger.count("warn") != rec.calls {
		t.Fatalf("expected one warn per failed activity, got %d warns for %d calls", logger.count("warn"), rec.calls)
	}
	rows, err := f.svc.ListActivities(f.ctx, f.owner, ActivityFilter{})
	if err != nil || len(rows) != 0 {
		t.Fatalf("store should hold no activities: %v %d", err, len(rows))
	}
}

// brokenStore fails every write with an infrastructure error.
type brokenStore struct {
	PersistentStore
}

func (brokenStore) RunInTransaction(context.Context, func(Transaction) error) (Result, error) {
	return Result{}, errors.New("disk full")
}

func TestStoreErrorsAreClassifiedAndLogged(t *testing.T) {
	logger := &recordingLogger{}
	f := newFixture(t)
	svc := NewService(brokenStore{PersistentStore: f.store}, WithLogger(logger))

	_, err := svc.CreateIdea(f.ctx, f.owner, Idea{Title: "x"})
	expectKind(t, err, domain.KindStoreFailure)
	if !domain.Retryable(err) {
		t.Fatalf("store failures should be retryable")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected cause in message, got %v", err)
	}
	if logger.count("error") != 1 {
		t.Fatalf("expected one error log, got %d", logger.count("error"))
	}

	_, err = svc.CreateIdea(f.ctx, f.viewer, Idea{Title: "x"})
	expectKind(t, err, domain.KindForbidden)
	if logger.count("error") != 1 {
		t.Fatalf("rejections must not log at error")
	}
}

func TestRuleViolationMapsToIllegalTransition(t *testing.T) {
	f := newFixture(t)
	h := f.draft()
	err := f.svc.classify("test", domain.RuleViolationError{Result: Result{Violations: []Violation{{
		Rule:     "lifecycle_state",
		Severity: SeverityBlock,
		Message:  "nope",
		Entity:   EntityHypothesis,
		EntityID: h.ID,
	}}}})
	expectKind(t, err, domain.KindIllegalTransition)
	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, h.ID, derr.ID)
	assert.Equal(t, EntityHypothesis, derr.Entity)
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	f := newFixture(t, WithMetricsRecorder(rec))

	_, err = f.svc.CreateIdea(f.ctx, f.owner, Idea{Title: "metrics"})
	require.NoError(t, err)
	_, err = f.svc.CreateIdea(f.ctx, f.viewer, Idea{Title: "denied"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("create_idea", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("create_idea", "error")))
	// ensure_user from the fixture plus create_idea
	assert.Equal(t, 2, testutil.CollectAndCount(rec.durations, "hadilab_service_operation_duration_seconds"))

	_, err = NewPrometheusMetricsRecorder(reg)
	assert.Error(t, err, "registering twice must fail")
}

func TestJSONTracerRecordsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	f := newFixture(t, WithTracer(tracer))

	h := f.draft()
	_, err := f.svc.RequestTransition(f.ctx, f.owner, h.ID, domain.Level2, domain.StageDeskResearch, "")
	require.Error(t, err)

	entries := tracer.Entries()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "request_transition", last.Operation)
	assert.Equal(t, "error", last.Status)
	assert.NotEmpty(t, last.Error)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(entries))
	var decoded JSONTraceEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, entries[0].Operation, decoded.Operation)
}

func TestCreateUserAdminOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateUser(f.ctx, f.owner, User{Name: "new", Role: domain.RoleAnalyst})
	expectKind(t, err, domain.KindForbidden)
	_, err = f.svc.CreateUser(f.ctx, f.admin, User{Name: "", Role: domain.RoleAnalyst})
	expectKind(t, err, domain.KindInvalid)
	_, err = f.svc.CreateUser(f.ctx, f.admin, User{Name: "x", Role: "PIRATE"})
	expectKind(t, err, domain.KindInvalid)

	u, err := f.svc.CreateUser(f.ctx, f.admin, User{Name: "analyst", Email: "a@example.test", Role: domain.RoleAnalyst})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.True(t, u.IsActive)
	assert.Equal(t, domain.UserStatusActive, u.Status)

	got, err := f.svc.GetUser(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	users, err := f.svc.ListUsers(f.ctx, f.viewer)
	require.NoError(t, err)
	assert.Len(t, users, 6)
}

func TestCreateUserDerivesActiveFromStatus(t *testing.T) {
	f := newFixture(t)

	active, err := f.svc.CreateUser(f.ctx, f.admin, User{Name: "ana", Role: domain.RoleAnalyst, Status: domain.UserStatusActive})
	require.NoError(t, err)
	assert.True(t, active.IsActive)
	_, err = f.svc.CreateIdea(f.ctx, &active, Idea{Title: "Analyst idea"})
	require.NoError(t, err)

	suspended, err := f.svc.CreateUser(f.ctx, f.admin, User{Name: "sam", Role: domain.RoleAnalyst, Status: domain.UserStatusSuspended, IsActive: true})
	require.NoError(t, err)
	assert.False(t, suspended.IsActive)
	_, err = f.svc.CreateIdea(f.ctx, &suspended, Idea{Title: "Suspended idea"})
	expectKind(t, err, domain.KindUnauthorized)
}

func TestCreateUserRejectsDuplicateID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateUser(f.ctx, f.admin, User{Base: Base{ID: f.peer.ID}, Name: "copy", Role: domain.RoleAnalyst})
	expectKind(t, err, domain.KindInvalid)
	assert.False(t, domain.Retryable(err))

	got, err := f.svc.GetUser(f.ctx, f.peer.ID)
	require.NoError(t, err)
	assert.Equal(t, f.peer.Name, got.Name)
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	f := newFixture(t)
	u, created, err := f.svc.EnsureUser(f.ctx, User{Base: Base{ID: "root"}, Name: "root", Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, created)
	again, created, err := f.svc.EnsureUser(f.ctx, User{Base: Base{ID: "root"}, Name: "other", Role: domain.RoleViewer})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.Name, again.Name)
	assert.Equal(t, domain.RoleAdmin, again.Role)
}

func TestHypothesisCreateAndList(t *testing.T) {
	f := newFixture(t)
	idea, err := f.svc.CreateIdea(f.ctx, f.owner, Idea{Title: "Retention"})
	require.NoError(t, err)

	_, err = f.svc.CreateHypothesis(f.ctx, f.owner, Hypothesis{IdeaID: "missing", Title: "x"})
	expectKind(t, err, domain.KindNotFound)
	_, err = f.svc.CreateHypothesis(f.ctx, f.viewer, Hypothesis{IdeaID: idea.ID, Title: "x"})
	expectKind(t, err, domain.KindForbidden)
	_, err = f.svc.CreateHypothesis(f.ctx, f.owner, Hypothesis{IdeaID: idea.ID})
	expectKind(t, err, domain.KindInvalid)

	a, err := f.svc.CreateHypothesis(f.ctx, f.owner, Hypothesis{
		IdeaID: idea.ID,
		Title:  "Weekly digest",
		Level:  domain.Level4,
		Stage:  domain.StageConfirmed,
		Status: domain.StatusValidated,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.InitialState, a.State())
	assert.Equal(t, f.owner.ID, a.CreatedBy)
	b, err := f.svc.CreateHypothesis(f.ctx, f.director, Hypothesis{IdeaID: idea.ID, Title: "Streaks"})
	require.NoError(t, err)
	other := f.draft()

	list, err := f.svc.ListHypotheses(f.ctx, f.viewer, idea.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NoError(t, f.svc.DeleteHypothesis(f.ctx, f.admin, b.ID))
	list, err = f.svc.ListHypotheses(f.ctx, f.viewer, idea.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	all, err := f.svc.ListHypotheses(f.ctx, f.viewer, "")
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, h := range all {
		ids = append(ids, h.ID)
	}
	assert.ElementsMatch(t, []string{a.ID, other.ID}, ids)

	ideas, err := f.svc.ListIdeas(f.ctx, f.viewer)
	require.NoError(t, err)
	assert.Len(t, ideas, 2)
	got, err := f.svc.GetIdea(f.ctx, f.viewer, idea.ID)
	require.NoError(t, err)
	assert.Equal(t, "Retention", got.Title)
	assert.Len(t, f.activities(a.ID, domain.ActivityCreated), 1)
}
