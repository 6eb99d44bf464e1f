package core

import (
	"context"
	"errors"
	"fmt"

	"hadilab/pkg/domain"
)

// RequestTransition moves a hypothesis to the target level and stage. The
// checks run in a fixed order inside one transaction so a concurrent request
// observes the committed result: missing actor, missing hypothesis, undeclared
// or terminal move, status gate, artifact gates, and finally edit permission.
// The state update and its ledger row commit together.
func (s *Service) RequestTransition(ctx context.Context, actor *User, hypothesisID string, level Level, stage Stage, reason string) (Hypothesis, error) {
	const op = "request_transition"
	var (
		from    LifecycleState
		updated Hypothesis
	)
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := domain.RequireActor(actor); err != nil {
			return err
		}
		target := Position{Level: level, Stage: stage}
		return s.transact(ctx, op, func(tx Transaction) error {
			view := tx.Snapshot()
			current, err := liveHypothesis(view, hypothesisID)
			if err != nil {
				return err
			}
			from = current.State()
			next, err := domain.PlanTransition(from, target, gateFacts(view, current))
			if err != nil {
				var derr *domain.Error
				if errors.As(err, &derr) {
					derr.Entity = domain.EntityHypothesis
					derr.ID = hypothesisID
				}
				return err
			}
			if err := s.evaluator.Check(actor, domain.PermissionEdit, current.Owner()); err != nil {
				return err
			}
			updated, err = tx.UpdateHypothesis(hypothesisID, func(h *Hypothesis) error {
				h.Level, h.Stage, h.Status = next.Level, next.Stage, next.Status
				return nil
			})
			if err != nil {
				return err
			}
			_, err = tx.AppendTransition(HypothesisTransition{
				HypothesisID: hypothesisID,
				FromLevel:    from.Level,
				ToLevel:      next.Level,
				FromStage:    from.Stage,
				ToStage:      next.Stage,
				FromStatus:   from.Status,
				ToStatus:     next.Status,
				ActorID:      actor.ID,
				Reason:       reason,
			})
			return err
		})
	})
	if err != nil {
		return Hypothesis{}, err
	}
	s.logger.Info("hypothesis transitioned",
		"hypothesis", hypothesisID,
		"from", from.String(),
		"to", updated.State().String(),
		"actor", actor.ID,
	)
	s.recordStatusChange(ctx, op, actor, hypothesisID, from, updated.State(), reason)
	return updated, nil
}

// ListTransitions returns the ledger of a hypothesis oldest first. Ledger rows
// of soft-deleted hypotheses stay readable.
func (s *Service) ListTransitions(ctx context.Context, actor *User, hypothesisID string) ([]HypothesisTransition, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return nil, err
	}
	var rows []HypothesisTransition
	err := s.view(ctx, func(v TransactionView) error {
		if _, ok := v.FindHypothesis(hypothesisID); !ok {
			return domain.NotFoundError(domain.EntityHypothesis, hypothesisID)
		}
		rows = v.ListTransitions(hypothesisID)
		return nil
	})
	return rows, err
}

func (s *Service) recordStatusChange(ctx context.Context, op string, actor *User, hypothesisID string, from, to LifecycleState, reason string) {
	meta := map[string]string{
		"from_level":  string(from.Level),
		"from_stage":  string(from.Stage),
		"from_status": string(from.Status),
		"to_level":    string(to.Level),
		"to_stage":    string(to.Stage),
		"to_status":   string(to.Status),
	}
	if reason != "" {
		meta["reason"] = reason
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityStatusChanged,
		Description: fmt.Sprintf("hypothesis moved from %s to %s", from, to),
		EntityType:  domain.EntityHypothesis,
		EntityID:    hypothesisID,
		ActorID:     actor.ID,
		Metadata:    meta,
	})
}

// gateFacts collects the scoring artifacts the transition gates inspect.
func gateFacts(view TransactionView, h Hypothesis) domain.GateFacts {
	criteria := view.ListSuccessCriteria(CriteriaOwner{Type: domain.OwnerHypothesis, ID: h.ID})
	facts := domain.GateFacts{
		IceScores:       len(view.ListIceScores(h.ID)),
		DeskResearch:    h.DeskResearch != nil,
		RiceScore:       h.RiceScore != nil,
		SuccessCriteria: len(criteria),
	}
	for _, c := range criteria {
		if !c.Evaluated() {
			facts.UnevaluatedCriteria++
		}
	}
	return facts
}
