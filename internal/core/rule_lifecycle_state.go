package core

import (
	"context"
	"fmt"

	"hadilab/pkg/domain"
)

const lifecycleStateRuleName = "lifecycle_state"

// LifecycleStateRule blocks hypothesis writes that leave the declared state
// set, leave a terminal state, or take a move the transition table does not
// declare.
func LifecycleStateRule() domain.Rule {
	return lifecycleStateRule{}
}

type lifecycleStateRule struct{}

func (lifecycleStateRule) Name() string { return lifecycleStateRuleName }

func (lifecycleStateRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     lifecycleStateRuleName,
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityHypothesis,
			EntityID: id,
		})
	}
	for _, change := range changes {
		if change.Entity != domain.EntityHypothesis {
			continue
		}
		after, ok := domain.DecodeChangePayload[domain.Hypothesis](change.After)
		if !ok {
			continue
		}
		next := after.State()
		if !next.Valid() {
			block(after.ID, fmt.Sprintf("hypothesis %s is set to invalid state %s", after.ID, next))
			continue
		}
		before, ok := domain.DecodeChangePayload[domain.Hypothesis](change.Before)
		if !ok {
			continue
		}
		prev := before.State()
		if prev == next {
			continue
		}
		if prev.Terminal() {
			block(after.ID, fmt.Sprintf("cannot move hypothesis %s from terminal state %s to %s", after.ID, prev, next))
			continue
		}
		if stepped, ok := domain.ApplyScoreStep(prev); ok && stepped == next {
			continue
		}
		rule, ok := domain.LookupTransition(prev.Position(), next.Position())
		if !ok || rule.To != next {
			block(after.ID, fmt.Sprintf("hypothesis %s moved from %s to %s without a declared transition", after.ID, prev, next))
		}
	}
	return res, nil
}
