package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"hadilab/internal/blob"
	"hadilab/pkg/domain"
)

// ErrNoBlobStore is returned by export operations when the service has no
// object store configured.
var ErrNoBlobStore = errors.New("history export: no blob store configured")

const (
	historyPrefix      = "history/"
	historyContentType = "application/json"
	historyStampLayout = "20060102T150405.000000000Z"

	entityHistoryExport domain.EntityType = "history_export"
)

// HistoryDocument is the JSON body written by ExportHistory.
type HistoryDocument struct {
	ExportedAt  time.Time              `json:"exported_at"`
	ExportedBy  string                 `json:"exported_by"`
	Hypothesis  Hypothesis             `json:"hypothesis"`
	Transitions []HypothesisTransition `json:"transitions"`
	Activities  []Activity             `json:"activities"`
}

// ListActivities returns activity rows matching filter oldest first.
func (s *Service) ListActivities(ctx context.Context, actor *User, filter ActivityFilter) ([]Activity, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return nil, err
	}
	rows, err := s.store.ListActivities(ctx, filter)
	if err != nil {
		return nil, s.classify("list_activities", err)
	}
	return rows, nil
}

// ExportHistory snapshots the ledger and activity log of a hypothesis into
// the blob store under history/<hypothesisID>/<timestamp>.json.
func (s *Service) ExportHistory(ctx context.Context, actor *User, hypothesisID string) (blob.Info, error) {
	const op = "export_history"
	var info blob.Info
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
			return err
		}
		if s.blobs == nil {
			return domain.UnavailableError(op, ErrNoBlobStore)
		}
		doc := HistoryDocument{ExportedAt: s.clock.Now().UTC(), ExportedBy: actor.ID}
		err := s.view(ctx, func(v TransactionView) error {
			h, ok := v.FindHypothesis(hypothesisID)
			if !ok {
				return domain.NotFoundError(domain.EntityHypothesis, hypothesisID)
			}
			doc.Hypothesis = h
			doc.Transitions = v.ListTransitions(hypothesisID)
			return nil
		})
		if err != nil {
			return err
		}
		doc.Activities, err = s.store.ListActivities(ctx, ActivityFilter{EntityType: domain.EntityHypothesis, EntityID: hypothesisID})
		if err != nil {
			return err
		}
		payload, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		key := historyKey(hypothesisID, doc.ExportedAt)
		info, err = s.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: historyContentType,
			Metadata: map[string]string{
				"hypothesis_id": hypothesisID,
				"exported_by":   actor.ID,
			},
		})
		return err
	})
	if err != nil {
		return blob.Info{}, err
	}
	s.logger.Info("history exported", "hypothesis", hypothesisID, "key", info.Key, "driver", string(s.blobs.Driver()))
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityCreated,
		Description: "history exported to " + info.Key,
		EntityType:  entityHistoryExport,
		EntityID:    info.Key,
		ActorID:     actor.ID,
		Metadata:    map[string]string{"hypothesis_id": hypothesisID},
	})
	return info, nil
}

// ListHistoryExports returns the stored exports of a hypothesis ordered by key,
// which is also chronological.
func (s *Service) ListHistoryExports(ctx context.Context, actor *User, hypothesisID string) ([]blob.Info, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return nil, err
	}
	if s.blobs == nil {
		return nil, domain.UnavailableError("list_history_exports", ErrNoBlobStore)
	}
	infos, err := s.blobs.List(ctx, historyPrefix+hypothesisID+"/")
	if err != nil {
		return nil, s.classify("list_history_exports", err)
	}
	return infos, nil
}

// GetHistoryExport opens a stored export. The caller closes the reader.
func (s *Service) GetHistoryExport(ctx context.Context, actor *User, key string) (blob.Info, io.ReadCloser, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return blob.Info{}, nil, err
	}
	if !strings.HasPrefix(key, historyPrefix) {
		return blob.Info{}, nil, domain.InvalidError(fmt.Sprintf("export key %q is outside %s", key, historyPrefix))
	}
	if s.blobs == nil {
		return blob.Info{}, nil, domain.UnavailableError("get_history_export", ErrNoBlobStore)
	}
	info, body, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return blob.Info{}, nil, domain.NotFoundError(entityHistoryExport, key)
	}
	if err != nil {
		return blob.Info{}, nil, s.classify("get_history_export", err)
	}
	return info, body, nil
}

func historyKey(hypothesisID string, at time.Time) string {
	return historyPrefix + hypothesisID + "/" + at.UTC().Format(historyStampLayout) + ".json"
}
