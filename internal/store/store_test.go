package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"leadline/internal/domain"
	"leadline/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func seedLead(t *testing.T, s *store.Store, id string) domain.Lead {
	t.Helper()
	l := domain.Lead{
		ID:       id,
		DedupKey: "website:" + id,
		Source:   "website",
		Stage:    "new",
		Tier:     "cold",
	}
	if err := s.Leads().Upsert(context.Background(), l); err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return l
}

func TestUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedLead(t, s, "lead_1")

	got, err := s.Leads().Get(ctx, "lead_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DedupKey != "website:lead_1" {
		t.Fatalf("unexpected lead: %+v", got)
	}
	if _, err := s.Leads().Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateReadModifyWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedLead(t, s, "lead_1")

	updated, err := s.Leads().Update(ctx, "lead_1", func(l *domain.Lead) error {
		l.Stage = "scored"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Stage != "scored" {
		t.Fatalf("stage not applied: %+v", updated)
	}
	// fn error aborts the write
	_, err = s.Leads().Update(ctx, "lead_1", func(l *domain.Lead) error {
		l.Stage = "contacted"
		return errors.New("abort")
	})
	if err == nil {
		t.Fatal("expected error from fn")
	}
	got, _ := s.Leads().Get(ctx, "lead_1")
	if got.Stage != "scored" {
		t.Fatalf("aborted update leaked a write: %+v", got)
	}
}

func TestConcurrentDisjointFieldUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedLead(t, s, "lead_1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.Leads().Update(ctx, "lead_1", func(l *domain.Lead) error {
			l.Company = "Acme"
			return nil
		})
		if err != nil {
			t.Errorf("update company: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		_, err := s.Leads().Update(ctx, "lead_1", func(l *domain.Lead) error {
			l.Score = 55
			return nil
		})
		if err != nil {
			t.Errorf("update score: %v", err)
		}
	}()
	wg.Wait()

	got, err := s.Leads().Get(ctx, "lead_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Company != "Acme" || got.Score != 55 {
		t.Fatalf("updates clobbered each other: %+v", got)
	}
}

func TestMergeByFindsUnderLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	match := func(l domain.Lead) bool { return l.DedupKey == "reddit:abc" }
	mk := func(existing *domain.Lead) (domain.Lead, error) {
		if existing != nil {
			existing.Score++
			return *existing, nil
		}
		return domain.Lead{ID: "lead_x", DedupKey: "reddit:abc", Score: 1}, nil
	}
	if _, err := s.Leads().MergeBy(ctx, match, mk); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if _, err := s.Leads().MergeBy(ctx, match, mk); err != nil {
		t.Fatalf("second merge: %v", err)
	}
	all, err := s.Leads().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("merge inserted a duplicate: %d records", len(all))
	}
	if all[0].Score != 2 {
		t.Fatalf("second merge did not see the first: %+v", all[0])
	}
}

func TestCorruptPartitionFailsClosed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedLead(t, s, "lead_1")

	path := filepath.Join(s.Dir(), "leads.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt partition: %v", err)
	}

	var ce *store.CorruptError
	if _, err := s.Leads().Get(ctx, "lead_1"); !errors.As(err, &ce) {
		t.Fatalf("expected CorruptError, got %v", err)
	}
	if err := s.Leads().Upsert(ctx, domain.Lead{ID: "lead_2"}); !errors.As(err, &ce) {
		t.Fatalf("expected write against corrupt partition to fail, got %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read partition: %v", err)
	}
	if string(data) != "{not json" {
		t.Fatal("corrupt partition was rewritten")
	}
}

func TestLockTimeout(t *testing.T) {
	dir := t.TempDir()
	a, err := store.Open(dir)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	b, err := store.Open(dir)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	b.LockWait = 50 * time.Millisecond
	ctx := context.Background()

	seedLead(t, a, "lead_1")

	hold := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = a.Leads().Update(ctx, "lead_1", func(l *domain.Lead) error {
			close(hold)
			<-release
			return nil
		})
	}()
	<-hold
	defer func() { <-done }()
	defer close(release)

	_, err = b.Leads().Update(ctx, "lead_1", func(l *domain.Lead) error { return nil })
	if !errors.Is(err, store.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}
