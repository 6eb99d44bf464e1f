package memory

import (
	"hadilab/pkg/domain"
	"sort"
)

type memoryState struct {
	users       map[string]User
	ideas       map[string]Idea
	hypotheses  map[string]Hypothesis
	iceScores   map[string]IceScore
	criteria    map[string]SuccessCriteria
	experiments map[string]Experiment
	results     map[string]ExperimentResult
	transitions map[string]HypothesisTransition
	seq         int64
}

// Snapshot captures a point-in-time clone of the store state, including the
// activity log, for external persistence.
type Snapshot struct {
	Users       map[string]User                 `json:"users"`
	Ideas       map[string]Idea                 `json:"ideas"`
	Hypotheses  map[string]Hypothesis           `json:"hypotheses"`
	IceScores   map[string]IceScore             `json:"ice_scores"`
	Criteria    map[string]SuccessCriteria      `json:"success_criteria"`
	Experiments map[string]Experiment           `json:"experiments"`
	Results     map[string]ExperimentResult     `json:"experiment_results"`
	Transitions map[string]HypothesisTransition `json:"transitions"`
	Activities  []Activity                      `json:"activities"`
	Seq         int64                           `json:"seq"`
}

func newMemoryState() memoryState {
	return memoryState{
		users:       make(map[string]User),
		ideas:       make(map[string]Idea),
		hypotheses:  make(map[string]Hypothesis),
		iceScores:   make(map[string]IceScore),
		criteria:    make(map[string]SuccessCriteria),
		experiments: make(map[string]Experiment),
		results:     make(map[string]ExperimentResult),
		transitions: make(map[string]HypothesisTransition),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.users {
		cloned.users[k] = v
	}
	for k, v := range s.ideas {
		cloned.ideas[k] = v
	}
	for k, v := range s.hypotheses {
		cloned.hypotheses[k] = cloneHypothesis(v)
	}
	for k, v := range s.iceScores {
		cloned.iceScores[k] = v
	}
	for k, v := range s.criteria {
		cloned.criteria[k] = cloneCriteria(v)
	}
	for k, v := range s.experiments {
		cloned.experiments[k] = v
	}
	for k, v := range s.results {
		cloned.results[k] = v
	}
	for k, v := range s.transitions {
		cloned.transitions[k] = v
	}
	cloned.seq = s.seq
	return cloned
}

func snapshotFromMemoryState(state memoryState, activities []Activity) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Users:       cloned.users,
		Ideas:       cloned.ideas,
		Hypotheses:  cloned.hypotheses,
		IceScores:   cloned.iceScores,
		Criteria:    cloned.criteria,
		Experiments: cloned.experiments,
		Results:     cloned.results,
		Transitions: cloned.transitions,
		Activities:  cloneActivities(activities),
		Seq:         cloned.seq,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	src := memoryState{
		users:       s.Users,
		ideas:       s.Ideas,
		hypotheses:  s.Hypotheses,
		iceScores:   s.IceScores,
		criteria:    s.Criteria,
		experiments: s.Experiments,
		results:     s.Results,
		transitions: s.Transitions,
		seq:         s.Seq,
	}
	return src.clone()
}

// migrateSnapshot fills missing buckets, drops rows whose owner no longer
// exists and repairs the sequence counter so appended rows keep ordering.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Users == nil {
		snapshot.Users = map[string]User{}
	}
	if snapshot.Ideas == nil {
		snapshot.Ideas = map[string]Idea{}
	}
	if snapshot.Hypotheses == nil {
		snapshot.Hypotheses = map[string]Hypothesis{}
	}
	if snapshot.IceScores == nil {
		snapshot.IceScores = map[string]IceScore{}
	}
	if snapshot.Criteria == nil {
		snapshot.Criteria = map[string]SuccessCriteria{}
	}
	if snapshot.Experiments == nil {
		snapshot.Experiments = map[string]Experiment{}
	}
	if snapshot.Results == nil {
		snapshot.Results = map[string]ExperimentResult{}
	}
	if snapshot.Transitions == nil {
		snapshot.Transitions = map[string]HypothesisTransition{}
	}

	for id, h := range snapshot.Hypotheses {
		if _, ok := snapshot.Ideas[h.IdeaID]; !ok {
			delete(snapshot.Hypotheses, id)
		}
	}
	for id, score := range snapshot.IceScores {
		if _, ok := snapshot.Hypotheses[score.HypothesisID]; !ok {
			delete(snapshot.IceScores, id)
		}
	}
	for id, exp := range snapshot.Experiments {
		if _, ok := snapshot.Hypotheses[exp.HypothesisID]; !ok {
			delete(snapshot.Experiments, id)
		}
	}
	for id, c := range snapshot.Criteria {
		if !ownerExists(snapshot, c.Owner) {
			delete(snapshot.Criteria, id)
		}
	}
	for id, r := range snapshot.Results {
		if _, ok := snapshot.Experiments[r.ExperimentID]; !ok {
			delete(snapshot.Results, id)
		}
	}

	maxSeq := snapshot.Seq
	for _, r := range snapshot.Results {
		if r.Seq > maxSeq {
			maxSeq = r.Seq
		}
	}
	for _, t := range snapshot.Transitions {
		if t.Seq > maxSeq {
			maxSeq = t.Seq
		}
	}
	snapshot.Seq = maxSeq
	return snapshot
}

func ownerExists(snapshot Snapshot, owner CriteriaOwner) bool {
	switch owner.Type {
	case domain.OwnerHypothesis:
		_, ok := snapshot.Hypotheses[owner.ID]
		return ok
	case domain.OwnerExperiment:
		_, ok := snapshot.Experiments[owner.ID]
		return ok
	default:
		return false
	}
}

func maxActivitySeq(activities []Activity) int64 {
	var maxSeq int64
	for _, a := range activities {
		if a.Seq > maxSeq {
			maxSeq = a.Seq
		}
	}
	return maxSeq
}

func cloneHypothesis(h Hypothesis) Hypothesis {
	cp := h
	cp.Reach = cloneFloat(h.Reach)
	cp.Impact = cloneFloat(h.Impact)
	cp.Confidence = cloneFloat(h.Confidence)
	cp.Effort = cloneFloat(h.Effort)
	cp.RiceScore = cloneFloat(h.RiceScore)
	if h.DeskResearch != nil {
		dr := *h.DeskResearch
		dr.Sources = append([]string(nil), h.DeskResearch.Sources...)
		dr.Risks = append([]string(nil), h.DeskResearch.Risks...)
		dr.Opportunities = append([]string(nil), h.DeskResearch.Opportunities...)
		cp.DeskResearch = &dr
	}
	if h.DeletedAt != nil {
		t := *h.DeletedAt
		cp.DeletedAt = &t
	}
	return cp
}

func cloneCriteria(c SuccessCriteria) SuccessCriteria {
	cp := c
	cp.ActualValue = cloneFloat(c.ActualValue)
	if c.Achieved != nil {
		v := *c.Achieved
		cp.Achieved = &v
	}
	return cp
}

func cloneActivity(a Activity) Activity {
	cp := a
	if a.Metadata != nil {
		cp.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

func cloneActivities(in []Activity) []Activity {
	out := make([]Activity, 0, len(in))
	for _, a := range in {
		out = append(out, cloneActivity(a))
	}
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func sortActivities(activities []Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		if !activities[i].CreatedAt.Equal(activities[j].CreatedAt) {
			return activities[i].CreatedAt.Before(activities[j].CreatedAt)
		}
		return activities[i].Seq < activities[j].Seq
	})
}
