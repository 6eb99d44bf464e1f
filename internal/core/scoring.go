package core

import (
	"context"
	"fmt"

	"hadilab/pkg/domain"
)

// AddIceScore attaches one collaborator's ICE rating. The first score moves a
// DRAFT hypothesis to SCORED in the same transaction.
func (s *Service) AddIceScore(ctx context.Context, actor *User, hypothesisID string, in IceInputs) (IceScore, error) {
	const op = "add_ice_score"
	var (
		score   IceScore
		from    LifecycleState
		to      LifecycleState
		stepped bool
	)
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := domain.RequireActor(actor); err != nil {
			return err
		}
		if err := in.Validate(); err != nil {
			return err
		}
		return s.transact(ctx, op, func(tx Transaction) error {
			current, err := scorable(tx.Snapshot(), hypothesisID)
			if err != nil {
				return err
			}
			if err := s.evaluator.Check(actor, domain.PermissionEdit, current.Owner()); err != nil {
				return err
			}
			score, err = tx.CreateIceScore(IceScore{
				HypothesisID: hypothesisID,
				ScoredBy:     actor.ID,
				Impact:       in.Impact,
				Confidence:   in.Confidence,
				Ease:         in.Ease,
				Score:        in.Composite(),
			})
			if err != nil {
				return err
			}
			from = current.State()
			to, stepped = domain.ApplyScoreStep(from)
			if !stepped {
				return nil
			}
			_, err = tx.UpdateHypothesis(hypothesisID, func(h *Hypothesis) error {
				h.Status = to.Status
				return nil
			})
			return err
		})
	})
	if err != nil {
		return IceScore{}, err
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityCreated,
		Description: fmt.Sprintf("ice score %.2f added", score.Score),
		EntityType:  domain.EntityIceScore,
		EntityID:    score.ID,
		ActorID:     actor.ID,
		Metadata:    map[string]string{"hypothesis_id": hypothesisID},
	})
	if stepped {
		s.recordStatusChange(ctx, op, actor, hypothesisID, from, to, "")
	}
	return score, nil
}

// ListIceScores returns every ICE score of a hypothesis oldest first.
func (s *Service) ListIceScores(ctx context.Context, actor *User, hypothesisID string) ([]IceScore, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return nil, err
	}
	var scores []IceScore
	err := s.view(ctx, func(v TransactionView) error {
		if _, err := liveHypothesis(v, hypothesisID); err != nil {
			return err
		}
		scores = v.ListIceScores(hypothesisID)
		return nil
	})
	return scores, err
}

// IceSummary aggregates the ICE scores of a hypothesis.
func (s *Service) IceSummary(ctx context.Context, actor *User, hypothesisID string) (IceSummary, error) {
	scores, err := s.ListIceScores(ctx, actor, hypothesisID)
	if err != nil {
		return IceSummary{}, err
	}
	return domain.SummarizeIce(scores), nil
}

// UpdateRiceScore stores the RICE inputs and the derived score together.
func (s *Service) UpdateRiceScore(ctx context.Context, actor *User, hypothesisID string, in RiceInputs) (Hypothesis, error) {
	const op = "update_rice_score"
	updated, err := s.updateScoring(ctx, op, actor, hypothesisID, in.Validate, func(h *Hypothesis, _ Transaction) {
		in.ApplyTo(h)
	})
	if err != nil {
		return Hypothesis{}, err
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityUpdated,
		Description: fmt.Sprintf("rice score set to %.2f", *updated.RiceScore),
		EntityType:  domain.EntityHypothesis,
		EntityID:    hypothesisID,
		ActorID:     actor.ID,
		Metadata:    map[string]string{"field": "rice_score"},
	})
	return updated, nil
}

// UpdateDeskResearch replaces the desk research record and stamps it with the
// transaction time.
func (s *Service) UpdateDeskResearch(ctx context.Context, actor *User, hypothesisID string, in DeskResearchInput) (Hypothesis, error) {
	const op = "update_desk_research"
	updated, err := s.updateScoring(ctx, op, actor, hypothesisID, in.Validate, func(h *Hypothesis, tx Transaction) {
		h.DeskResearch = &domain.DeskResearch{
			Notes:         in.Notes,
			Sources:       append([]string(nil), in.Sources...),
			Risks:         append([]string(nil), in.Risks...),
			Opportunities: append([]string(nil), in.Opportunities...),
			Date:          tx.Now(),
		}
	})
	if err != nil {
		return Hypothesis{}, err
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityUpdated,
		Description: "desk research updated",
		EntityType:  domain.EntityHypothesis,
		EntityID:    hypothesisID,
		ActorID:     actor.ID,
		Metadata:    map[string]string{"field": "desk_research"},
	})
	return updated, nil
}

// updateScoring runs a status-preserving hypothesis mutation.
func (s *Service) updateScoring(ctx context.Context, op string, actor *User, hypothesisID string, validate func() error, apply func(*Hypothesis, Transaction)) (Hypothesis, error) {
	var updated Hypothesis
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := domain.RequireActor(actor); err != nil {
			return err
		}
		if err := validate(); err != nil {
			return err
		}
		return s.transact(ctx, op, func(tx Transaction) error {
			current, err := scorable(tx.Snapshot(), hypothesisID)
			if err != nil {
				return err
			}
			if err := s.evaluator.Check(actor, domain.PermissionEdit, current.Owner()); err != nil {
				return err
			}
			updated, err = tx.UpdateHypothesis(hypothesisID, func(h *Hypothesis) error {
				apply(h, tx)
				return nil
			})
			return err
		})
	})
	return updated, err
}

// ReplaceSuccessCriteria swaps the whole criteria set of a hypothesis or an
// experiment. An empty list clears the set.
func (s *Service) ReplaceSuccessCriteria(ctx context.Context, actor *User, owner CriteriaOwner, inputs []SuccessCriterionInput) ([]SuccessCriteria, error) {
	const op = "replace_success_criteria"
	var rows []SuccessCriteria
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := domain.RequireActor(actor); err != nil {
			return err
		}
		if err := domain.ValidateCriteria(inputs); err != nil {
			return err
		}
		return s.transact(ctx, op, func(tx Transaction) error {
			resource, err := criteriaOwner(tx.Snapshot(), owner)
			if err != nil {
				return err
			}
			if err := s.evaluator.Check(actor, domain.PermissionEdit, resource); err != nil {
				return err
			}
			rows, err = tx.ReplaceSuccessCriteria(owner, domain.BuildCriteria(owner, inputs))
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	entity := domain.EntityHypothesis
	if owner.Type == domain.OwnerExperiment {
		entity = domain.EntityExperiment
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityUpdated,
		Description: fmt.Sprintf("success criteria replaced (%d)", len(rows)),
		EntityType:  entity,
		EntityID:    owner.ID,
		ActorID:     actor.ID,
		Metadata:    map[string]string{"field": "success_criteria"},
	})
	return rows, nil
}

// ListSuccessCriteria returns the criteria of an owner in position order.
func (s *Service) ListSuccessCriteria(ctx context.Context, actor *User, owner CriteriaOwner) ([]SuccessCriteria, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return nil, err
	}
	var rows []SuccessCriteria
	err := s.view(ctx, func(v TransactionView) error {
		switch owner.Type {
		case domain.OwnerHypothesis:
			if _, err := liveHypothesis(v, owner.ID); err != nil {
				return err
			}
		case domain.OwnerExperiment:
			if _, ok := v.FindExperiment(owner.ID); !ok {
				return domain.NotFoundError(domain.EntityExperiment, owner.ID)
			}
		default:
			return domain.InvalidError(fmt.Sprintf("unknown criteria owner type %q", owner.Type))
		}
		rows = v.ListSuccessCriteria(owner)
		return nil
	})
	return rows, err
}

// scorable returns the live hypothesis when it still accepts scoring updates.
func scorable(view TransactionView, id string) (Hypothesis, error) {
	h, err := liveHypothesis(view, id)
	if err != nil {
		return Hypothesis{}, err
	}
	if !domain.AcceptsScoringUpdates(h.State()) {
		e := domain.IllegalTransitionError(h.State(), h.State().Position(),
			fmt.Sprintf("hypothesis %s is in terminal state %s", id, h.State()))
		e.Entity = domain.EntityHypothesis
		e.ID = id
		return Hypothesis{}, e
	}
	return h, nil
}

// criteriaOwner resolves the permission resource for a criteria owner. The
// parent hypothesis of an experiment must still accept scoring updates.
func criteriaOwner(view TransactionView, owner CriteriaOwner) (*domain.Resource, error) {
	switch owner.Type {
	case domain.OwnerHypothesis:
		h, err := scorable(view, owner.ID)
		if err != nil {
			return nil, err
		}
		return h.Owner(), nil
	case domain.OwnerExperiment:
		exp, ok := view.FindExperiment(owner.ID)
		if !ok {
			return nil, domain.NotFoundError(domain.EntityExperiment, owner.ID)
		}
		if _, err := scorable(view, exp.HypothesisID); err != nil {
			return nil, err
		}
		return &domain.Resource{Type: domain.EntityExperiment, ID: exp.ID, CreatedBy: exp.CreatedBy}, nil
	default:
		return nil, domain.InvalidError(fmt.Sprintf("unknown criteria owner type %q", owner.Type))
	}
}
