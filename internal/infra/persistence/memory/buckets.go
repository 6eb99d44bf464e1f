package memory

import (
	"encoding/json"
	"fmt"
)

// Buckets lists the state table keys written by snapshotting stores, in
// write order.
var Buckets = []string{
	"users",
	"ideas",
	"hypotheses",
	"ice_scores",
	"success_criteria",
	"experiments",
	"experiment_results",
	"transitions",
	"activities",
	"meta",
}

type snapshotMeta struct {
	Seq int64 `json:"seq"`
}

func (s *Snapshot) bucketTarget(bucket string) (any, bool) {
	switch bucket {
	case "users":
		return &s.Users, true
	case "ideas":
		return &s.Ideas, true
	case "hypotheses":
		return &s.Hypotheses, true
	case "ice_scores":
		return &s.IceScores, true
	case "success_criteria":
		return &s.Criteria, true
	case "experiments":
		return &s.Experiments, true
	case "experiment_results":
		return &s.Results, true
	case "transitions":
		return &s.Transitions, true
	case "activities":
		return &s.Activities, true
	default:
		return nil, false
	}
}

// EncodeBuckets marshals every bucket of the snapshot to JSON.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		var value any = snapshotMeta{Seq: snapshot.Seq}
		if target, ok := snapshot.bucketTarget(bucket); ok {
			value = target
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from stored bucket payloads. Unknown
// buckets are ignored and missing ones stay empty.
func DecodeBuckets(payloads map[string][]byte) (Snapshot, error) {
	var snapshot Snapshot
	for bucket, data := range payloads {
		if bucket == "meta" {
			var meta snapshotMeta
			if err := json.Unmarshal(data, &meta); err != nil {
				return Snapshot{}, fmt.Errorf("decode meta: %w", err)
			}
			snapshot.Seq = meta.Seq
			continue
		}
		target, ok := snapshot.bucketTarget(bucket)
		if !ok {
			continue
		}
		if err := json.Unmarshal(data, target); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	return migrateSnapshot(snapshot), nil
}
