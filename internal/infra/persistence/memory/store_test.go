package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"hadilab/pkg/domain"
)

func fixedClock() func() time.Time {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return base }
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func seedHypothesis(t *testing.T, s *Store) (Idea, Hypothesis) {
	t.Helper()
	var idea Idea
	var h Hypothesis
	if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		idea, err = tx.CreateIdea(Idea{Title: "Onboarding", CreatedBy: "u-1"})
		if err != nil {
			return err
		}
		h, err = tx.CreateHypothesis(Hypothesis{
			Title:     "Shorter signup lifts activation",
			IdeaID:    idea.ID,
			CreatedBy: "u-1",
			Level:     domain.Level4,
			Status:    domain.StatusValidated,
		})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return idea, h
}

func TestCreateHypothesisForcesInitialState(t *testing.T) {
	s := NewStore(nil, WithClock(fixedClock()), WithIDGenerator(sequentialIDs()))
	_, h := seedHypothesis(t, s)
	if h.State() != domain.InitialState {
		t.Fatalf("expected initial state, got %s", h.State())
	}
	if !h.CreatedAt.Equal(fixedClock()()) {
		t.Fatalf("expected clock timestamp, got %s", h.CreatedAt)
	}
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	s := NewStore(nil)
	_, h := seedHypothesis(t, s)
	boom := errors.New("boom")

	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.UpdateHypothesis(h.ID, func(h *Hypothesis) error {
			h.Status = domain.StatusScored
			return nil
		}); err != nil {
			return err
		}
		if _, err := tx.AppendTransition(HypothesisTransition{HypothesisID: h.ID}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	_ = s.View(context.Background(), func(v TransactionView) error {
		got, _ := v.FindHypothesis(h.ID)
		if got.Status != domain.StatusDraft {
			t.Fatalf("expected rollback to keep DRAFT, got %s", got.Status)
		}
		if n := len(v.ListTransitions(h.ID)); n != 0 {
			t.Fatalf("expected no ledger rows, got %d", n)
		}
		return nil
	})
}

func TestRunInTransactionHonoursCancelledContext(t *testing.T) {
	s := NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := s.RunInTransaction(ctx, func(Transaction) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation before fn, got err=%v called=%v", err, called)
	}
}

func TestUpdateHypothesisKeepsIdentityFields(t *testing.T) {
	s := NewStore(nil)
	idea, h := seedHypothesis(t, s)
	if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateHypothesis(h.ID, func(h *Hypothesis) error {
			h.ID = "other"
			h.IdeaID = "other"
			h.CreatedBy = "intruder"
			h.Title = "Renamed"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	_ = s.View(context.Background(), func(v TransactionView) error {
		got, ok := v.FindHypothesis(h.ID)
		if !ok || got.IdeaID != idea.ID || got.CreatedBy != "u-1" || got.Title != "Renamed" {
			t.Fatalf("unexpected hypothesis after update: %+v", got)
		}
		return nil
	})
}

func TestMissingRowsReportNotFound(t *testing.T) {
	s := NewStore(nil)
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateHypothesis("missing", func(*Hypothesis) error { return nil })
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateHypothesis(Hypothesis{IdeaID: "missing"})
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected idea not found, got %v", err)
	}
}

func TestReplaceSuccessCriteriaSwapsWholeSet(t *testing.T) {
	s := NewStore(nil)
	_, h := seedHypothesis(t, s)
	owner := CriteriaOwner{Type: domain.OwnerHypothesis, ID: h.ID}
	replace := func(names ...string) {
		t.Helper()
		rows := make([]SuccessCriteria, 0, len(names))
		for _, n := range names {
			rows = append(rows, SuccessCriteria{Name: n, TargetValue: 1})
		}
		if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
			_, err := tx.ReplaceSuccessCriteria(owner, rows)
			return err
		}); err != nil {
			t.Fatalf("replace: %v", err)
		}
	}
	replace("a", "b", "c")
	replace("z", "y")

	_ = s.View(context.Background(), func(v TransactionView) error {
		got := v.ListSuccessCriteria(owner)
		if len(got) != 2 || got[0].Name != "z" || got[1].Name != "y" {
			t.Fatalf("unexpected criteria set: %+v", got)
		}
		if got[0].Position != 0 || got[1].Position != 1 {
			t.Fatalf("expected positions 0,1 got %d,%d", got[0].Position, got[1].Position)
		}
		return nil
	})
	replace()
	_ = s.View(context.Background(), func(v TransactionView) error {
		if n := len(v.ListSuccessCriteria(owner)); n != 0 {
			t.Fatalf("expected empty set, got %d", n)
		}
		return nil
	})
}

func TestTransitionsListInAppendOrder(t *testing.T) {
	s := NewStore(nil, WithClock(fixedClock()))
	_, h := seedHypothesis(t, s)
	for i := 0; i < 5; i++ {
		reason := fmt.Sprintf("step-%d", i)
		if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
			_, err := tx.AppendTransition(HypothesisTransition{HypothesisID: h.ID, Reason: reason})
			return err
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = s.View(context.Background(), func(v TransactionView) error {
		rows := v.ListTransitions(h.ID)
		for i, row := range rows {
			if row.Reason != fmt.Sprintf("step-%d", i) {
				t.Fatalf("row %d out of order: %s", i, row.Reason)
			}
		}
		return nil
	})
}

func TestDeleteIdeaCascades(t *testing.T) {
	s := NewStore(nil)
	idea, h := seedHypothesis(t, s)
	if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateIceScore(IceScore{HypothesisID: h.ID, Impact: 5, Confidence: 5, Ease: 5, Score: 5}); err != nil {
			return err
		}
		exp, err := tx.CreateExperiment(Experiment{HypothesisID: h.ID, Title: "A/B"})
		if err != nil {
			return err
		}
		_, err = tx.AppendExperimentResult(ExperimentResult{ExperimentID: exp.ID, Metric: "ctr", Value: 0.1})
		return err
	}); err != nil {
		t.Fatalf("seed artifacts: %v", err)
	}
	if _, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteIdea(idea.ID)
	}); err != nil {
		t.Fatalf("delete idea: %v", err)
	}
	snap := s.ExportState()
	if len(snap.Hypotheses) != 0 || len(snap.IceScores) != 0 || len(snap.Experiments) != 0 || len(snap.Results) != 0 {
		t.Fatalf("expected cascade, got %+v", snap)
	}
}

func TestCommitHookFailureDiscardsTransaction(t *testing.T) {
	fail := errors.New("disk full")
	s := NewStore(nil, WithCommitHook(func(context.Context, Snapshot) error { return fail }))
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, e := tx.CreateIdea(Idea{Title: "never"})
		return e
	})
	if !errors.Is(err, fail) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if n := len(s.ExportState().Ideas); n != 0 {
		t.Fatalf("expected no ideas, got %d", n)
	}
	if _, err := s.AppendActivity(context.Background(), Activity{Type: domain.ActivityCreated}); !errors.Is(err, fail) {
		t.Fatalf("expected activity append to fail, got %v", err)
	}
	acts, _ := s.ListActivities(context.Background(), domain.ActivityFilter{})
	if len(acts) != 0 {
		t.Fatalf("expected failed activity to be discarded, got %d", len(acts))
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block_all" }

func (blockingRule) Evaluate(context.Context, TransactionView, []Change) (Result, error) {
	return Result{Violations: []domain.Violation{{Rule: "block_all", Severity: domain.SeverityBlock, Message: "nope"}}}, nil
}

func TestBlockingRuleRejectsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	s := NewStore(engine)
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, e := tx.CreateIdea(Idea{Title: "blocked"})
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if n := len(s.ExportState().Ideas); n != 0 {
		t.Fatalf("expected blocked commit, got %d ideas", n)
	}
}

func TestActivitiesAreFilteredAndOrdered(t *testing.T) {
	s := NewStore(nil, WithClock(fixedClock()))
	ctx := context.Background()
	for i, entity := range []string{"h-1", "h-2", "h-1"} {
		if _, err := s.AppendActivity(ctx, Activity{Type: domain.ActivityUpdated, EntityType: domain.EntityHypothesis, EntityID: entity, Description: fmt.Sprint(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := s.ListActivities(ctx, domain.ActivityFilter{EntityID: "h-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Description != "0" || got[1].Description != "2" {
		t.Fatalf("unexpected activities: %+v", got)
	}
	if got[0].Seq >= got[1].Seq {
		t.Fatalf("expected increasing seq, got %d then %d", got[0].Seq, got[1].Seq)
	}
}

func TestImportStateDropsOrphansAndRepairsSeq(t *testing.T) {
	s := NewStore(nil)
	s.ImportState(Snapshot{
		Hypotheses:  map[string]Hypothesis{"h-1": {Base: domain.Base{ID: "h-1"}, IdeaID: "missing"}},
		Transitions: map[string]HypothesisTransition{"t-1": {ID: "t-1", HypothesisID: "h-1", Seq: 7}},
		Activities:  []Activity{{ID: "a-1", Seq: 3}},
	})
	snap := s.ExportState()
	if len(snap.Hypotheses) != 0 {
		t.Fatalf("expected orphan hypothesis dropped")
	}
	if snap.Seq != 7 {
		t.Fatalf("expected seq repaired to 7, got %d", snap.Seq)
	}
	act, err := s.AppendActivity(context.Background(), Activity{})
	if err != nil || act.Seq != 4 {
		t.Fatalf("expected activity seq 4, got %d (%v)", act.Seq, err)
	}
}

func TestDuplicateIDsAreInvalid(t *testing.T) {
	s := NewStore(nil)
	idea, h := seedHypothesis(t, s)
	create := map[string]func(tx Transaction) error{
		"user": func(tx Transaction) error {
			if _, err := tx.CreateUser(User{Base: domain.Base{ID: "u-dup"}, Name: "a", Role: domain.RoleAnalyst}); err != nil {
				return err
			}
			_, err := tx.CreateUser(User{Base: domain.Base{ID: "u-dup"}, Name: "b", Role: domain.RoleAnalyst})
			return err
		},
		"idea": func(tx Transaction) error {
			_, err := tx.CreateIdea(Idea{Base: domain.Base{ID: idea.ID}, Title: "again"})
			return err
		},
		"hypothesis": func(tx Transaction) error {
			_, err := tx.CreateHypothesis(Hypothesis{Base: domain.Base{ID: h.ID}, IdeaID: idea.ID, Title: "again"})
			return err
		},
	}
	for name, fn := range create {
		_, err := s.RunInTransaction(context.Background(), fn)
		if !errors.Is(err, domain.ErrInvalid) {
			t.Fatalf("%s: expected invalid, got %v", name, err)
		}
	}
}

func TestSnapshotRoundTripThroughBuckets(t *testing.T) {
	s := NewStore(nil)
	_, h := seedHypothesis(t, s)
	payloads, err := EncodeBuckets(s.ExportState())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	snap, err := DecodeBuckets(payloads)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	restored := NewStore(nil)
	restored.ImportState(snap)
	_ = restored.View(context.Background(), func(v TransactionView) error {
		if _, ok := v.FindHypothesis(h.ID); !ok {
			t.Fatalf("expected hypothesis after round trip")
		}
		return nil
	})
}

func TestConcurrentTransactionsSerialize(t *testing.T) {
	s := NewStore(nil)
	_, h := seedHypothesis(t, s)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
				current, _ := tx.Snapshot().FindHypothesis(h.ID)
				if current.Status != domain.StatusDraft {
					return errors.New("already moved")
				}
				_, err := tx.UpdateHypothesis(h.ID, func(h *Hypothesis) error {
					h.Status = domain.StatusScored
					return nil
				})
				return err
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
