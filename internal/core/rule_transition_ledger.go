package core

import (
	"context"
	"fmt"

	"hadilab/pkg/domain"
)

const transitionLedgerRuleName = "transition_ledger"

// TransitionLedgerRule requires every level/stage move committed for a
// hypothesis to carry a matching ledger row in the same change set. The
// DRAFT to SCORED step instead requires an ICE score to be created alongside.
func TransitionLedgerRule() domain.Rule {
	return transitionLedgerRule{}
}

type transitionLedgerRule struct{}

func (transitionLedgerRule) Name() string { return transitionLedgerRuleName }

func (transitionLedgerRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	ledger := make(map[string][]domain.HypothesisTransition)
	scored := make(map[string]bool)
	for _, change := range changes {
		if change.Action != domain.ActionCreate {
			continue
		}
		switch change.Entity {
		case domain.EntityTransition:
			if row, ok := domain.DecodeChangePayload[domain.HypothesisTransition](change.After); ok {
				ledger[row.HypothesisID] = append(ledger[row.HypothesisID], row)
			}
		case domain.EntityIceScore:
			if score, ok := domain.DecodeChangePayload[domain.IceScore](change.After); ok {
				scored[score.HypothesisID] = true
			}
		}
	}

	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityHypothesis || change.Action != domain.ActionUpdate {
			continue
		}
		before, okBefore := domain.DecodeChangePayload[domain.Hypothesis](change.Before)
		after, okAfter := domain.DecodeChangePayload[domain.Hypothesis](change.After)
		if !okBefore || !okAfter || before.State() == after.State() {
			continue
		}
		if before.State().Position() == after.State().Position() {
			if scored[after.ID] {
				continue
			}
			res.Violations = append(res.Violations, violation(after.ID,
				fmt.Sprintf("hypothesis %s changed status to %s without an ICE score", after.ID, after.Status)))
			continue
		}
		if !ledgerRecords(ledger[after.ID], before.State(), after.State()) {
			res.Violations = append(res.Violations, violation(after.ID,
				fmt.Sprintf("hypothesis %s moved to %s without a transition record", after.ID, after.State())))
		}
	}
	return res, nil
}

func ledgerRecords(rows []domain.HypothesisTransition, from, to domain.LifecycleState) bool {
	for _, row := range rows {
		if row.FromLevel == from.Level && row.FromStage == from.Stage && row.FromStatus == from.Status &&
			row.ToLevel == to.Level && row.ToStage == to.Stage && row.ToStatus == to.Status {
			return true
		}
	}
	return false
}

func violation(id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     transitionLedgerRuleName,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityHypothesis,
		EntityID: id,
	}
}
