package domain

import (
	"fmt"
	"math"
	"strings"
)

// ICE sub-scores are bounded to the conventional 1..10 scale.
const (
	IceMin = 1.0
	IceMax = 10.0
)

// IceInputs are one collaborator's Impact/Confidence/Ease ratings.
type IceInputs struct {
	Impact     float64 `json:"impact"`
	Confidence float64 `json:"confidence"`
	Ease       float64 `json:"ease"`
}

// Validate checks every sub-score is within [IceMin, IceMax].
func (in IceInputs) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{{"impact", in.Impact}, {"confidence", in.Confidence}, {"ease", in.Ease}} {
		if math.IsNaN(f.value) || f.value < IceMin || f.value > IceMax {
			return InvalidError(fmt.Sprintf("ice %s must be between %g and %g, got %g", f.name, IceMin, IceMax, f.value))
		}
	}
	return nil
}

// Composite is the arithmetic mean of the three sub-scores.
func (in IceInputs) Composite() float64 {
	return (in.Impact + in.Confidence + in.Ease) / 3
}

// IceSummary aggregates the collaborative ICE scores of a hypothesis.
type IceSummary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// SummarizeIce averages the composites of the given scores.
func SummarizeIce(scores []IceScore) IceSummary {
	if len(scores) == 0 {
		return IceSummary{}
	}
	var total float64
	for _, s := range scores {
		total += s.Score
	}
	return IceSummary{Count: len(scores), Average: total / float64(len(scores))}
}

// RiceInputs are the four RICE factors. Confidence is a fraction in [0, 1].
type RiceInputs struct {
	Reach      float64 `json:"reach"`
	Impact     float64 `json:"impact"`
	Confidence float64 `json:"confidence"`
	Effort     float64 `json:"effort"`
}

// Validate rejects negative reach, non-positive impact or effort, a
// confidence outside [0, 1] and any combination whose score is not finite.
func (in RiceInputs) Validate() error {
	switch {
	case !finite(in.Reach) || in.Reach < 0:
		return InvalidError(fmt.Sprintf("rice reach must be a finite non-negative number, got %g", in.Reach))
	case !finite(in.Impact) || in.Impact <= 0:
		return InvalidError(fmt.Sprintf("rice impact must be a finite positive number, got %g", in.Impact))
	case !finite(in.Confidence) || in.Confidence < 0 || in.Confidence > 1:
		return InvalidError(fmt.Sprintf("rice confidence must be a fraction between 0 and 1, got %g", in.Confidence))
	case !finite(in.Effort) || in.Effort <= 0:
		return InvalidError(fmt.Sprintf("rice effort must be a finite positive number, got %g", in.Effort))
	}
	if score := in.Score(); !finite(score) {
		return InvalidError(fmt.Sprintf("rice score of reach %g, impact %g, confidence %g and effort %g is out of range", in.Reach, in.Impact, in.Confidence, in.Effort))
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Score computes reach × impact × confidence ÷ effort.
func (in RiceInputs) Score() float64 {
	return in.Reach * in.Impact * in.Confidence / in.Effort
}

// ApplyTo writes the inputs and the derived score onto the hypothesis.
func (in RiceInputs) ApplyTo(h *Hypothesis) {
	reach, impact, confidence, effort, score := in.Reach, in.Impact, in.Confidence, in.Effort, in.Score()
	h.Reach = &reach
	h.Impact = &impact
	h.Confidence = &confidence
	h.Effort = &effort
	h.RiceScore = &score
}

// SuccessCriterionInput is one entry of a success criteria replace request.
type SuccessCriterionInput struct {
	Name        string   `json:"name"`
	TargetValue float64  `json:"target_value"`
	Unit        string   `json:"unit"`
	ActualValue *float64 `json:"actual_value,omitempty"`
	Achieved    *bool    `json:"achieved,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// ValidateCriteria checks every entry has a name. An empty list is valid.
func ValidateCriteria(inputs []SuccessCriterionInput) error {
	for i, in := range inputs {
		if strings.TrimSpace(in.Name) == "" {
			return InvalidError(fmt.Sprintf("success criterion %d has no name", i))
		}
	}
	return nil
}

// BuildCriteria converts inputs into rows for owner, preserving order.
func BuildCriteria(owner CriteriaOwner, inputs []SuccessCriterionInput) []SuccessCriteria {
	out := make([]SuccessCriteria, 0, len(inputs))
	for i, in := range inputs {
		out = append(out, SuccessCriteria{
			Owner:       owner,
			Position:    i,
			Name:        in.Name,
			TargetValue: in.TargetValue,
			ActualValue: cloneFloat(in.ActualValue),
			Achieved:    cloneBool(in.Achieved),
			Unit:        in.Unit,
			Notes:       in.Notes,
		})
	}
	return out
}

// DeskResearchInput carries a desk research update.
type DeskResearchInput struct {
	Notes         string   `json:"notes"`
	Sources       []string `json:"sources"`
	Risks         []string `json:"risks"`
	Opportunities []string `json:"opportunities"`
}

// Validate requires notes or at least one source.
func (in DeskResearchInput) Validate() error {
	if strings.TrimSpace(in.Notes) == "" && len(in.Sources) == 0 {
		return InvalidError("desk research needs notes or sources")
	}
	return nil
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
