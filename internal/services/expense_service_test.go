package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/identity"
	"expenses/internal/storage"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ExpenseChangedMessage
	err  error
}

func (p *recordingPublisher) PublishExpenseChanged(_ context.Context, msg *amqp.ExpenseChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func newService(pub Publisher) (*ExpenseService, *storage.MemoryMirror) {
	m := storage.NewMemoryMirror()
	return NewExpenseService(m, pub, ExpenseServiceConfig{MaxSessions: 4, SessionTTL: time.Hour}), m
}

var (
	alice = identity.Identity{UserID: "alice"}
	bob   = identity.Identity{UserID: "bob"}
)

func lunch() core.ExpenseInput {
	return core.ExpenseInput{
		Title:    "Lunch",
		Amount:   core.Cents(1250),
		Category: core.Food,
		Date:     time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestStoreIsSharedPerOwner(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	a1, err := svc.Store(ctx, alice)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	a2, _ := svc.Store(ctx, alice)
	b, _ := svc.Store(ctx, bob)
	if a1 != a2 {
		t.Fatal("same identity should reuse its store")
	}
	if a1 == b {
		t.Fatal("different identities must not share a store")
	}
}

func TestCreatePublishesAndIsolatesOwners(t *testing.T) {
	pub := &recordingPublisher{}
	svc, m := newService(pub)
	ctx := context.Background()

	rec, err := svc.Create(ctx, alice, lunch())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.UserID != "alice" {
		t.Fatalf("expected owner stamp, got %q", rec.UserID)
	}

	if _, ok, _ := m.Get(ctx, "expenses-alice"); !ok {
		t.Fatal("mirror not written under alice's key")
	}
	bobs, _ := svc.Records(ctx, bob)
	if len(bobs) != 0 {
		t.Fatalf("bob sees %d records", len(bobs))
	}

	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.OwnerKey != "expenses-alice" || msg.Operation != amqp.OpCreate || msg.ExpenseID != rec.ID || msg.RecordCount != 1 {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, _ := newService(pub)
	ctx := context.Background()

	if _, err := svc.Create(ctx, alice, lunch()); err != nil {
		t.Fatalf("create should succeed despite publish failure: %v", err)
	}
	recs, _ := svc.Records(ctx, alice)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
}

func TestServiceErrors(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	bad := lunch()
	bad.Amount = core.Cents(0)
	if _, err := svc.Create(ctx, alice, bad); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Update(ctx, alice, "missing", lunch()); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.SelectForEdit(ctx, alice, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, alice, "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestSelectionLifecycle(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()
	rec, _ := svc.Create(ctx, alice, lunch())

	if _, err := svc.SelectForEdit(ctx, alice, rec.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	snap, _ := svc.Dashboard(ctx, alice)
	if snap.Editing == nil || snap.Editing.ID != rec.ID {
		t.Fatalf("expected selection, got %+v", snap.Editing)
	}

	if err := svc.ClearSelection(ctx, alice); err != nil {
		t.Fatalf("clear: %v", err)
	}
	snap, _ = svc.Dashboard(ctx, alice)
	if snap.Editing != nil {
		t.Fatal("selection not cleared")
	}

	_, _ = svc.SelectForEdit(ctx, alice, rec.ID)
	in := lunch()
	in.Title = "Dinner"
	if _, err := svc.Update(ctx, alice, rec.ID, in); err != nil {
		t.Fatalf("update: %v", err)
	}
	snap, _ = svc.Dashboard(ctx, alice)
	if snap.Editing != nil || snap.Records[0].Title != "Dinner" {
		t.Fatalf("unexpected state after update: %+v", snap)
	}
}

func TestEvictedSessionReloadsFromMirror(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()
	if _, err := svc.Create(ctx, alice, lunch()); err != nil {
		t.Fatalf("create: %v", err)
	}
	svc.Sessions().Delete(alice.Owner().StorageKey())

	recs, err := svc.Records(ctx, alice)
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected reload from mirror, got %v (%v)", recs, err)
	}
}

func TestCorruptMirrorSurfacesPersistenceError(t *testing.T) {
	svc, m := newService(nil)
	ctx := context.Background()
	_ = m.Set(ctx, "expenses-alice", []byte(`nope`))

	if _, err := svc.Dashboard(ctx, alice); !core.IsPersistence(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if svc.Sessions().Size() != 0 {
		t.Fatal("failed load must not be cached")
	}
}

func TestClose(t *testing.T) {
	svc, _ := newService(&recordingPublisher{})
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := svc.Create(context.Background(), alice, lunch()); err != nil {
		t.Fatalf("create after close: %v", err)
	}
}

// blockingPublisher holds every publish until release is closed.
type blockingPublisher struct {
	recordingPublisher
	release chan struct{}
}

func (p *blockingPublisher) PublishExpenseChanged(ctx context.Context, msg *amqp.ExpenseChangedMessage) error {
	<-p.release
	return p.recordingPublisher.PublishExpenseChanged(ctx, msg)
}

func TestSlowPublisherDoesNotBlockMutations(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	svc, _ := newService(pub)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, alice, lunch())
			errs <- err
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		close(pub.release)
		t.Fatal("mutations waited on the publisher")
	}
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	recs, _ := svc.Records(ctx, alice)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}

	close(pub.release)
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(pub.msgs) != 3 {
		t.Fatalf("expected 3 published changes, got %d", len(pub.msgs))
	}
	for i, msg := range pub.msgs {
		if msg.RecordCount != i+1 {
			t.Fatalf("message %d out of commit order: %+v", i, msg)
		}
	}
}

func TestFullBacklogDropsChanges(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	svc := NewExpenseService(storage.NewMemoryMirror(), pub, ExpenseServiceConfig{PublishQueue: 1})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Create(ctx, alice, lunch()); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	close(pub.release)
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := len(pub.msgs); n == 0 || n > 2 {
		t.Fatalf("expected 1 or 2 published changes, got %d", n)
	}
}
