package core

import (
	"context"
	"fmt"
	"math"
	"strings"

	"hadilab/pkg/domain"
)

// ExperimentResultInput is one measurement submitted for an experiment.
type ExperimentResultInput struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	Notes  string  `json:"notes,omitempty"`
}

// CreateExperiment plans an experiment for a hypothesis that is designing or
// running experiments.
func (s *Service) CreateExperiment(ctx context.Context, actor *User, exp Experiment) (Experiment, error) {
	const op = "create_experiment"
	var created Experiment
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := s.evaluator.Check(actor, domain.PermissionCreate, &domain.Resource{Type: domain.EntityExperiment}); err != nil {
			return err
		}
		if strings.TrimSpace(exp.Title) == "" {
			return domain.InvalidError("experiment title is required")
		}
		return s.transact(ctx, op, func(tx Transaction) error {
			h, err := liveHypothesis(tx.Snapshot(), exp.HypothesisID)
			if err != nil {
				return err
			}
			if h.Stage != domain.StageExperimentDesign && h.Stage != domain.StageExperimentation {
				e := domain.IllegalTransitionError(h.State(), h.State().Position(),
					fmt.Sprintf("experiments need a hypothesis at %s or %s, got %s",
						domain.StageExperimentDesign, domain.StageExperimentation, h.Stage))
				e.Entity = domain.EntityHypothesis
				e.ID = h.ID
				return e
			}
			created, err = tx.CreateExperiment(Experiment{
				HypothesisID: h.ID,
				Title:        exp.Title,
				Description:  exp.Description,
				CreatedBy:    actor.ID,
				Status:       domain.ExperimentPlanned,
			})
			return err
		})
	})
	if err != nil {
		return Experiment{}, err
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityCreated,
		Description: fmt.Sprintf("experiment %q created", created.Title),
		EntityType:  domain.EntityExperiment,
		EntityID:    created.ID,
		ActorID:     actor.ID,
		Metadata:    map[string]string{"hypothesis_id": created.HypothesisID},
	})
	return created, nil
}

var experimentProgression = map[domain.ExperimentStatus]domain.ExperimentStatus{
	domain.ExperimentPlanned: domain.ExperimentRunning,
	domain.ExperimentRunning: domain.ExperimentCompleted,
}

// UpdateExperimentStatus advances an experiment one step along
// PLANNED, RUNNING, COMPLETED.
func (s *Service) UpdateExperimentStatus(ctx context.Context, actor *User, experimentID string, status domain.ExperimentStatus) (Experiment, error) {
	const op = "update_experiment_status"
	var (
		before  domain.ExperimentStatus
		updated Experiment
	)
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := domain.RequireActor(actor); err != nil {
			return err
		}
		return s.transact(ctx, op, func(tx Transaction) error {
			exp, err := s.editableExperiment(tx.Snapshot(), actor, experimentID)
			if err != nil {
				return err
			}
			if experimentProgression[exp.Status] != status {
				return domain.InvalidError(fmt.Sprintf("experiment %s cannot move from %s to %s", experimentID, exp.Status, status))
			}
			before = exp.Status
			updated, err = tx.UpdateExperiment(experimentID, func(e *Experiment) error {
				e.Status = status
				return nil
			})
			return err
		})
	})
	if err != nil {
		return Experiment{}, err
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityStatusChanged,
		Description: fmt.Sprintf("experiment moved from %s to %s", before, updated.Status),
		EntityType:  domain.EntityExperiment,
		EntityID:    experimentID,
		ActorID:     actor.ID,
		Metadata:    map[string]string{"from_status": string(before), "to_status": string(updated.Status)},
	})
	return updated, nil
}

// RecordExperimentResult appends a measurement. Results are never edited.
func (s *Service) RecordExperimentResult(ctx context.Context, actor *User, experimentID string, in ExperimentResultInput) (ExperimentResult, error) {
	const op = "record_experiment_result"
	var result ExperimentResult
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := domain.RequireActor(actor); err != nil {
			return err
		}
		if strings.TrimSpace(in.Metric) == "" {
			return domain.InvalidError("result metric is required")
		}
		if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
			return domain.InvalidError("result value must be finite")
		}
		return s.transact(ctx, op, func(tx Transaction) error {
			if _, err := s.editableExperiment(tx.Snapshot(), actor, experimentID); err != nil {
				return err
			}
			var err error
			result, err = tx.AppendExperimentResult(ExperimentResult{
				ExperimentID: experimentID,
				Metric:       in.Metric,
				Value:        in.Value,
				Unit:         in.Unit,
				Notes:        in.Notes,
				RecordedBy:   actor.ID,
			})
			return err
		})
	})
	if err != nil {
		return ExperimentResult{}, err
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityCreated,
		Description: fmt.Sprintf("result %s=%g recorded", result.Metric, result.Value),
		EntityType:  domain.EntityExperimentResult,
		EntityID:    result.ID,
		ActorID:     actor.ID,
		Metadata:    map[string]string{"experiment_id": experimentID},
	})
	return result, nil
}

// GetExperiment returns one experiment.
func (s *Service) GetExperiment(ctx context.Context, actor *User, id string) (Experiment, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return Experiment{}, err
	}
	var exp Experiment
	err := s.view(ctx, func(v TransactionView) error {
		e, ok := v.FindExperiment(id)
		if !ok {
			return domain.NotFoundError(domain.EntityExperiment, id)
		}
		exp = e
		return nil
	})
	return exp, err
}

// ListExperiments returns the experiments of a live hypothesis.
func (s *Service) ListExperiments(ctx context.Context, actor *User, hypothesisID string) ([]Experiment, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return nil, err
	}
	var out []Experiment
	err := s.view(ctx, func(v TransactionView) error {
		if _, err := liveHypothesis(v, hypothesisID); err != nil {
			return err
		}
		out = v.ListExperiments(hypothesisID)
		return nil
	})
	return out, err
}

// ListExperimentResults returns the results of an experiment in append order.
func (s *Service) ListExperimentResults(ctx context.Context, actor *User, experimentID string) ([]ExperimentResult, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return nil, err
	}
	var out []ExperimentResult
	err := s.view(ctx, func(v TransactionView) error {
		if _, ok := v.FindExperiment(experimentID); !ok {
			return domain.NotFoundError(domain.EntityExperiment, experimentID)
		}
		out = v.ListExperimentResults(experimentID)
		return nil
	})
	return out, err
}

// editableExperiment loads an experiment whose hypothesis is live and not
// terminal, and checks edit permission against the experiment creator.
func (s *Service) editableExperiment(view TransactionView, actor *User, id string) (Experiment, error) {
	exp, ok := view.FindExperiment(id)
	if !ok {
		return Experiment{}, domain.NotFoundError(domain.EntityExperiment, id)
	}
	if _, err := scorable(view, exp.HypothesisID); err != nil {
		return Experiment{}, err
	}
	resource := &domain.Resource{Type: domain.EntityExperiment, ID: exp.ID, CreatedBy: exp.CreatedBy}
	if err := s.evaluator.Check(actor, domain.PermissionEdit, resource); err != nil {
		return Experiment{}, err
	}
	return exp, nil
}
