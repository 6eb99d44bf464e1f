package core

import (
	"math"
	"testing"

	"hadilab/pkg/domain"
)

func TestAddIceScoreStepsDraftOnce(t *testing.T) {
	f := newFixture(t)
	h := f.draft()

	score, err := f.svc.AddIceScore(f.ctx, f.owner, h.ID, IceInputs{Impact: 9, Confidence: 6, Ease: 3})
	if err != nil {
		t.Fatalf("add ice: %v", err)
	}
	if score.Score != 6 || score.ScoredBy != f.owner.ID {
		t.Fatalf("unexpected score row %+v", score)
	}
	if got := f.get(h.ID).Status; got != domain.StatusScored {
		t.Fatalf("expected SCORED, got %s", got)
	}
	if _, err := f.svc.AddIceScore(f.ctx, f.admin, h.ID, IceInputs{Impact: 3, Confidence: 3, Ease: 3}); err != nil {
		t.Fatalf("second ice: %v", err)
	}
	summary, err := f.svc.IceSummary(f.ctx, f.viewer, h.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Count != 2 || math.Abs(summary.Average-4.5) > 1e-9 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := len(f.activities(h.ID, domain.ActivityStatusChanged)); got != 1 {
		t.Fatalf("expected one status activity for the score step, got %d", got)
	}
	ledger, _ := f.svc.ListTransitions(f.ctx, f.owner, h.ID)
	if len(ledger) != 0 {
		t.Fatalf("score step must not write ledger rows, got %d", len(ledger))
	}
}

func TestAddIceScoreRejectsOutOfRange(t *testing.T) {
	f := newFixture(t)
	h := f.draft()
	_, err := f.svc.AddIceScore(f.ctx, f.owner, h.ID, IceInputs{Impact: 11, Confidence: 5, Ease: 5})
	expectKind(t, err, domain.KindInvalid)
	scores, _ := f.svc.ListIceScores(f.ctx, f.owner, h.ID)
	if len(scores) != 0 || f.get(h.ID).Status != domain.StatusDraft {
		t.Fatalf("invalid score must not write")
	}
}

func TestUpdateRiceScoreComputesScore(t *testing.T) {
	f := newFixture(t)
	h := f.draft()
	updated, err := f.svc.UpdateRiceScore(f.ctx, f.owner, h.ID, RiceInputs{Reach: 1000, Impact: 2, Confidence: 0.8, Effort: 5})
	if err != nil {
		t.Fatalf("rice: %v", err)
	}
	if updated.RiceScore == nil || math.Abs(*updated.RiceScore-320) > 1e-9 {
		t.Fatalf("expected 320, got %v", updated.RiceScore)
	}
	if updated.State() != domain.InitialState {
		t.Fatalf("rice update changed state to %s", updated.State())
	}
	if *updated.Reach != 1000 || *updated.Effort != 5 {
		t.Fatalf("inputs not stored: %+v", updated)
	}
	updates := f.activities(h.ID, domain.ActivityUpdated)
	if len(updates) != 1 || updates[0].Metadata["field"] != "rice_score" {
		t.Fatalf("expected one rice UPDATED activity, got %+v", updates)
	}

	_, err = f.svc.UpdateRiceScore(f.ctx, f.owner, h.ID, RiceInputs{Reach: 10, Impact: 1, Confidence: 80, Effort: 1})
	expectKind(t, err, domain.KindInvalid)
	_, err = f.svc.UpdateRiceScore(f.ctx, f.owner, h.ID, RiceInputs{Reach: 10, Impact: 1, Confidence: 0.5, Effort: 0})
	expectKind(t, err, domain.KindInvalid)
	if got := *f.get(h.ID).RiceScore; math.Abs(got-320) > 1e-9 {
		t.Fatalf("invalid update overwrote score: %v", got)
	}
}

func TestUpdateRiceScoreRejectsOverflow(t *testing.T) {
	f := newFixture(t)
	h := f.draft()
	for _, in := range []RiceInputs{
		{Reach: 1e308, Impact: 10, Confidence: 1, Effort: 1},
		{Reach: 1, Impact: 1, Confidence: 1, Effort: 5e-324},
	} {
		_, err := f.svc.UpdateRiceScore(f.ctx, f.owner, h.ID, in)
		expectKind(t, err, domain.KindInvalid)
		if domain.Retryable(err) {
			t.Fatalf("overflowing rice inputs reported as retryable: %v", err)
		}
	}
	if got := f.get(h.ID); got.RiceScore != nil || got.Reach != nil {
		t.Fatalf("rejected rice inputs were stored: %+v", got)
	}
	if got := len(f.activities(h.ID, domain.ActivityUpdated)); got != 0 {
		t.Fatalf("rejected rice update logged %d activities", got)
	}
}

func TestUpdateDeskResearchStampsStoreClock(t *testing.T) {
	f := newFixture(t)
	h := f.researching()
	updated, err := f.svc.UpdateDeskResearch(f.ctx, f.owner, h.ID, DeskResearchInput{
		Notes:   "three competitors",
		Sources: []string{"https://example.test/report"},
		Risks:   []string{"regulation"},
	})
	if err != nil {
		t.Fatalf("desk research: %v", err)
	}
	if updated.DeskResearch == nil || updated.DeskResearch.Date.IsZero() {
		t.Fatalf("expected dated desk research, got %+v", updated.DeskResearch)
	}
	if !updated.DeskResearch.Date.Equal(updated.UpdatedAt) {
		t.Fatalf("desk research date %v differs from write time %v", updated.DeskResearch.Date, updated.UpdatedAt)
	}
	if updated.State() != h.State() {
		t.Fatalf("desk research changed state")
	}
	_, err = f.svc.UpdateDeskResearch(f.ctx, f.owner, h.ID, DeskResearchInput{})
	expectKind(t, err, domain.KindInvalid)
}

func TestReplaceSuccessCriteriaClearAndIdempotent(t *testing.T) {
	f := newFixture(t)
	h := f.draft()
	owner := CriteriaOwner{Type: domain.OwnerHypothesis, ID: h.ID}
	inputs := []SuccessCriterionInput{
		{Name: "conversion", TargetValue: 0.05, Unit: "ratio"},
		{Name: "nps", TargetValue: 40},
	}

	first, err := f.svc.ReplaceSuccessCriteria(f.ctx, f.owner, owner, inputs)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	second, err := f.svc.ReplaceSuccessCriteria(f.ctx, f.owner, owner, inputs)
	if err != nil {
		t.Fatalf("replace again: %v", err)
	}
	listed, err := f.svc.ListSuccessCriteria(f.ctx, f.viewer, owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != 2 || len(second) != 2 || len(listed) != 2 {
		t.Fatalf("expected two rows each time, got %d %d %d", len(first), len(second), len(listed))
	}
	for i, row := range listed {
		if row.Name != inputs[i].Name || row.Position != i || row.TargetValue != inputs[i].TargetValue {
			t.Fatalf("row %d mismatch: %+v", i, row)
		}
	}

	cleared, err := f.svc.ReplaceSuccessCriteria(f.ctx, f.owner, owner, []SuccessCriterionInput{})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	listed, _ = f.svc.ListSuccessCriteria(f.ctx, f.owner, owner)
	if len(cleared) != 0 || len(listed) != 0 {
		t.Fatalf("expected cleared set, got %d rows", len(listed))
	}

	_, err = f.svc.ReplaceSuccessCriteria(f.ctx, f.owner, owner, []SuccessCriterionInput{{Name: "ok"}, {Name: " "}})
	expectKind(t, err, domain.KindInvalid)
	listed, _ = f.svc.ListSuccessCriteria(f.ctx, f.owner, owner)
	if len(listed) != 0 {
		t.Fatalf("invalid replace must not write")
	}
	if got := f.get(h.ID).State(); got != domain.InitialState {
		t.Fatalf("criteria replace changed state to %s", got)
	}
}

func TestScoringPermissions(t *testing.T) {
	f := newFixture(t)
	h := f.draft()
	rice := RiceInputs{Reach: 1, Impact: 1, Confidence: 1, Effort: 1}

	_, err := f.svc.UpdateRiceScore(f.ctx, f.viewer, h.ID, rice)
	expectKind(t, err, domain.KindForbidden)
	_, err = f.svc.UpdateRiceScore(f.ctx, f.peer, h.ID, rice)
	expectKind(t, err, domain.KindForbidden)
	_, err = f.svc.UpdateRiceScore(f.ctx, nil, h.ID, rice)
	expectKind(t, err, domain.KindUnauthorized)
	_, err = f.svc.UpdateRiceScore(f.ctx, f.owner, "missing", rice)
	expectKind(t, err, domain.KindNotFound)

	for _, actor := range []*User{f.owner, f.admin, f.director} {
		if _, err := f.svc.UpdateRiceScore(f.ctx, actor, h.ID, rice); err != nil {
			t.Fatalf("%s should edit: %v", actor.Role, err)
		}
	}
}
