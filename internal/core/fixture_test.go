package core

import (
	"context"
	"sync"
	"testing"

	"hadilab/internal/infra/persistence/memory"
	"hadilab/pkg/domain"
)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	svc      *Service
	admin    *User
	owner    *User
	peer     *User
	viewer   *User
	director *User
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine())
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: store,
		svc:   NewService(store, opts...),
	}
	f.admin = f.user("admin", domain.RoleAdmin)
	f.owner = f.user("pm", domain.RoleProductManager)
	f.peer = f.user("designer", domain.RoleDesigner)
	f.viewer = f.user("viewer", domain.RoleViewer)
	f.director = f.user("director", domain.RoleLabDirector)
	return f
}

func (f *fixture) user(id string, role domain.Role) *User {
	f.t.Helper()
	u, _, err := f.svc.EnsureUser(f.ctx, User{Base: Base{ID: id}, Name: id, Role: role})
	if err != nil {
		f.t.Fatalf("ensure user %s: %v", id, err)
	}
	return &u
}

// draft creates an idea and a DRAFT hypothesis owned by f.owner.
func (f *fixture) draft() Hypothesis {
	f.t.Helper()
	idea, err := f.svc.CreateIdea(f.ctx, f.owner, Idea{Title: "Faster onboarding"})
	if err != nil {
		f.t.Fatalf("create idea: %v", err)
	}
	h, err := f.svc.CreateHypothesis(f.ctx, f.owner, Hypothesis{
		IdeaID:    idea.ID,
		Title:     "Shorter signup form",
		Statement: "Removing optional fields lifts completion",
	})
	if err != nil {
		f.t.Fatalf("create hypothesis: %v", err)
	}
	return h
}

func (f *fixture) scored() Hypothesis {
	f.t.Helper()
	h := f.draft()
	if _, err := f.svc.AddIceScore(f.ctx, f.owner, h.ID, IceInputs{Impact: 8, Confidence: 6, Ease: 7}); err != nil {
		f.t.Fatalf("add ice score: %v", err)
	}
	return f.get(h.ID)
}

func (f *fixture) advance(id string, level Level, stage Stage) Hypothesis {
	f.t.Helper()
	h, err := f.svc.RequestTransition(f.ctx, f.owner, id, level, stage, "")
	if err != nil {
		f.t.Fatalf("transition %s to %s/%s: %v", id, level, stage, err)
	}
	return h
}

func (f *fixture) researching() Hypothesis {
	f.t.Helper()
	h := f.scored()
	return f.advance(h.ID, domain.Level2, domain.StageDeskResearch)
}

func (f *fixture) designing() Hypothesis {
	f.t.Helper()
	h := f.researching()
	if _, err := f.svc.UpdateDeskResearch(f.ctx, f.owner, h.ID, DeskResearchInput{Notes: "competitor forms are shorter"}); err != nil {
		f.t.Fatalf("desk research: %v", err)
	}
	return f.advance(h.ID, domain.Level2, domain.StageExperimentDesign)
}

func (f *fixture) experimenting() Hypothesis {
	f.t.Helper()
	h := f.designing()
	if _, err := f.svc.UpdateRiceScore(f.ctx, f.owner, h.ID, RiceInputs{Reach: 1000, Impact: 2, Confidence: 0.8, Effort: 5}); err != nil {
		f.t.Fatalf("rice: %v", err)
	}
	owner := CriteriaOwner{Type: domain.OwnerHypothesis, ID: h.ID}
	if _, err := f.svc.ReplaceSuccessCriteria(f.ctx, f.owner, owner, []SuccessCriterionInput{{Name: "completion", TargetValue: 0.6, Unit: "ratio"}}); err != nil {
		f.t.Fatalf("criteria: %v", err)
	}
	return f.advance(h.ID, domain.Level3, domain.StageExperimentation)
}

func (f *fixture) get(id string) Hypothesis {
	f.t.Helper()
	h, err := f.svc.GetHypothesis(f.ctx, f.owner, id)
	if err != nil {
		f.t.Fatalf("get hypothesis %s: %v", id, err)
	}
	return h
}

func (f *fixture) activities(entityID string, kind domain.ActivityType) []Activity {
	f.t.Helper()
	rows, err := f.svc.ListActivities(f.ctx, f.owner, ActivityFilter{EntityID: entityID})
	if err != nil {
		f.t.Fatalf("list activities: %v", err)
	}
	out := make([]Activity, 0, len(rows))
	for _, a := range rows {
		if a.Type == kind {
			out = append(out, a)
		}
	}
	return out
}

func expectKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

// recordingLogger keeps every entry for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}
