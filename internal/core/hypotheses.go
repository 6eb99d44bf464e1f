package core

import (
	"context"
	"fmt"
	"strings"

	"hadilab/pkg/domain"
)

// CreateIdea stores a new idea owned by the actor.
func (s *Service) CreateIdea(ctx context.Context, actor *User, idea Idea) (Idea, error) {
	const op = "create_idea"
	var created Idea
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := s.evaluator.Check(actor, domain.PermissionCreate, &domain.Resource{Type: domain.EntityIdea}); err != nil {
			return err
		}
		if strings.TrimSpace(idea.Title) == "" {
			return domain.InvalidError("idea title is required")
		}
		idea.ID = ""
		idea.CreatedBy = actor.ID
		return s.transact(ctx, op, func(tx Transaction) error {
			var err error
			created, err = tx.CreateIdea(idea)
			return err
		})
	})
	if err != nil {
		return Idea{}, err
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityCreated,
		Description: fmt.Sprintf("idea %q created", created.Title),
		EntityType:  domain.EntityIdea,
		EntityID:    created.ID,
		ActorID:     actor.ID,
	})
	return created, nil
}

// GetIdea returns one idea.
func (s *Service) GetIdea(ctx context.Context, actor *User, id string) (Idea, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return Idea{}, err
	}
	var idea Idea
	err := s.view(ctx, func(v TransactionView) error {
		i, ok := v.FindIdea(id)
		if !ok {
			return domain.NotFoundError(domain.EntityIdea, id)
		}
		idea = i
		return nil
	})
	return idea, err
}

// ListIdeas returns every idea in creation order.
func (s *Service) ListIdeas(ctx context.Context, actor *User) ([]Idea, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return nil, err
	}
	var ideas []Idea
	err := s.view(ctx, func(v TransactionView) error {
		ideas = v.ListIdeas()
		return nil
	})
	return ideas, err
}

// DeleteIdea removes an idea together with every hypothesis it owns.
func (s *Service) DeleteIdea(ctx context.Context, actor *User, id string) error {
	const op = "delete_idea"
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := domain.RequireActor(actor); err != nil {
			return err
		}
		return s.transact(ctx, op, func(tx Transaction) error {
			idea, ok := tx.Snapshot().FindIdea(id)
			if !ok {
				return domain.NotFoundError(domain.EntityIdea, id)
			}
			if err := s.evaluator.Check(actor, domain.PermissionDelete, &domain.Resource{Type: domain.EntityIdea, ID: id, CreatedBy: idea.CreatedBy}); err != nil {
				return err
			}
			return tx.DeleteIdea(id)
		})
	})
	if err != nil {
		return err
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityDeleted,
		Description: "idea deleted",
		EntityType:  domain.EntityIdea,
		EntityID:    id,
		ActorID:     actor.ID,
	})
	return nil
}

// CreateHypothesis stores a hypothesis under an existing idea. The lifecycle
// fields of the input are ignored; new hypotheses start in InitialState.
func (s *Service) CreateHypothesis(ctx context.Context, actor *User, h Hypothesis) (Hypothesis, error) {
	const op = "create_hypothesis"
	var created Hypothesis
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := s.evaluator.Check(actor, domain.PermissionCreate, &domain.Resource{Type: domain.EntityHypothesis}); err != nil {
			return err
		}
		if strings.TrimSpace(h.Title) == "" {
			return domain.InvalidError("hypothesis title is required")
		}
		candidate := Hypothesis{
			Title:     h.Title,
			Statement: h.Statement,
			IdeaID:    h.IdeaID,
			CreatedBy: actor.ID,
		}
		return s.transact(ctx, op, func(tx Transaction) error {
			var err error
			created, err = tx.CreateHypothesis(candidate)
			return err
		})
	})
	if err != nil {
		return Hypothesis{}, err
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityCreated,
		Description: fmt.Sprintf("hypothesis %q created", created.Title),
		EntityType:  domain.EntityHypothesis,
		EntityID:    created.ID,
		ActorID:     actor.ID,
		Metadata:    map[string]string{"idea_id": created.IdeaID},
	})
	return created, nil
}

// GetHypothesis returns a live hypothesis.
func (s *Service) GetHypothesis(ctx context.Context, actor *User, id string) (Hypothesis, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return Hypothesis{}, err
	}
	var h Hypothesis
	err := s.view(ctx, func(v TransactionView) error {
		var err error
		h, err = liveHypothesis(v, id)
		return err
	})
	return h, err
}

// ListHypotheses returns live hypotheses, restricted to one idea when
// ideaID is set.
func (s *Service) ListHypotheses(ctx context.Context, actor *User, ideaID string) ([]Hypothesis, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return nil, err
	}
	var out []Hypothesis
	err := s.view(ctx, func(v TransactionView) error {
		if ideaID != "" {
			if _, ok := v.FindIdea(ideaID); !ok {
				return domain.NotFoundError(domain.EntityIdea, ideaID)
			}
		}
		out = make([]Hypothesis, 0)
		for _, h := range v.ListHypotheses() {
			if h.Deleted() || (ideaID != "" && h.IdeaID != ideaID) {
				continue
			}
			out = append(out, h)
		}
		return nil
	})
	return out, err
}

// DeleteHypothesis soft-deletes a hypothesis. Its ledger and activity
// history stay readable.
func (s *Service) DeleteHypothesis(ctx context.Context, actor *User, id string) error {
	const op = "delete_hypothesis"
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := domain.RequireActor(actor); err != nil {
			return err
		}
		return s.transact(ctx, op, func(tx Transaction) error {
			current, err := liveHypothesis(tx.Snapshot(), id)
			if err != nil {
				return err
			}
			if err := s.evaluator.Check(actor, domain.PermissionDelete, current.Owner()); err != nil {
				return err
			}
			now := tx.Now()
			_, err = tx.UpdateHypothesis(id, func(h *Hypothesis) error {
				h.DeletedAt = &now
				return nil
			})
			return err
		})
	})
	if err != nil {
		return err
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityDeleted,
		Description: "hypothesis deleted",
		EntityType:  domain.EntityHypothesis,
		EntityID:    id,
		ActorID:     actor.ID,
	})
	return nil
}
