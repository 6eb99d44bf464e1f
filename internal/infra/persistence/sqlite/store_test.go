package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"hadilab/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	ctx := context.Background()
	var hypothesis domain.Hypothesis
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		idea, e := tx.CreateIdea(domain.Idea{Title: "Persist", CreatedBy: "u-1"})
		if e != nil {
			return e
		}
		hypothesis, e = tx.CreateHypothesis(domain.Hypothesis{Title: "H", IdeaID: idea.ID, CreatedBy: "u-1"})
		if e != nil {
			return e
		}
		_, e = tx.AppendTransition(domain.HypothesisTransition{HypothesisID: hypothesis.ID, FromStatus: domain.StatusDraft, ToStatus: domain.StatusScored})
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if reloaded.Path() != path {
		t.Fatalf("expected path %s, got %s", path, reloaded.Path())
	}
	if err := reloaded.View(ctx, func(v domain.TransactionView) error {
		got, ok := v.FindHypothesis(hypothesis.ID)
		if !ok {
			t.Fatalf("expected hypothesis after reload")
		}
		if got.State() != domain.InitialState {
			t.Fatalf("expected initial state, got %s", got.State())
		}
		if n := len(v.ListTransitions(hypothesis.ID)); n != 1 {
			t.Fatalf("expected 1 transition, got %d", n)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	// sequence numbers keep increasing across restarts
	if _, err := reloaded.RunInTransaction(ctx, func(tx domain.Transaction) error {
		row, e := tx.AppendTransition(domain.HypothesisTransition{HypothesisID: hypothesis.ID})
		if e == nil && row.Seq != 2 {
			t.Fatalf("expected seq 2 after reload, got %d", row.Seq)
		}
		return e
	}); err != nil {
		t.Fatalf("append after reload: %v", err)
	}
}

func TestSQLiteStoreWritesEveryBucket(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateUser(domain.User{Name: "Ada", Role: domain.RoleAdmin, IsActive: true, Status: domain.UserStatusActive})
		return e
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if count != 10 {
		t.Fatalf("expected 10 buckets, got %d", count)
	}
}

func TestSQLiteStoreRejectsCorruptBucket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('ideas', ?)`, []byte("{broken")); err != nil {
		t.Fatalf("seed corrupt bucket: %v", err)
	}
	_ = store.Close()
	if _, err := NewStore(path, domain.NewRulesEngine()); err == nil {
		t.Fatalf("expected decode failure for corrupt bucket")
	}
}
