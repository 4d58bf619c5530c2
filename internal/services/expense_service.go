// Package services coordinates per-owner expense stores and the side effects
// of their mutations.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/cache"
	"expenses/internal/core"
	"expenses/internal/identity"
	applog "expenses/internal/log"
	"expenses/internal/storage"
	"expenses/internal/store"
)

// Publisher announces committed mutations.
type Publisher interface {
	PublishExpenseChanged(ctx context.Context, msg *amqp.ExpenseChangedMessage) error
}

// ExpenseServiceConfig bounds the set of stores kept in memory and the
// backlog of change events waiting to be published.
type ExpenseServiceConfig struct {
	MaxSessions  int
	SessionTTL   time.Duration
	PublishQueue int
}

func DefaultExpenseServiceConfig() ExpenseServiceConfig {
	return ExpenseServiceConfig{MaxSessions: 256, SessionTTL: 30 * time.Minute, PublishQueue: 1024}
}

type pendingChange struct {
	ctx context.Context
	msg *amqp.ExpenseChangedMessage
}

// ExpenseService keeps one loaded Store per owner key. Change events are
// published in commit order by a single dispatcher goroutine, so a slow
// broker never holds an owner's mutation lock.
type ExpenseService struct {
	medium    storage.Medium
	publisher Publisher
	sessions  *cache.LRUCache[*store.Store]
	storeOpts []store.Option

	changes    chan pendingChange
	dispatched chan struct{}
	closeMu    sync.RWMutex
	closed     bool
	closeOnce  sync.Once
	closeErr   error
}

func NewExpenseService(medium storage.Medium, publisher Publisher, cfg ExpenseServiceConfig, opts ...store.Option) *ExpenseService {
	def := DefaultExpenseServiceConfig()
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.PublishQueue <= 0 {
		cfg.PublishQueue = def.PublishQueue
	}
	s := &ExpenseService{
		medium:    medium,
		publisher: publisher,
		sessions:  cache.NewLRUCache[*store.Store](cfg.MaxSessions, cfg.SessionTTL),
		storeOpts: opts,
	}
	if publisher != nil {
		s.changes = make(chan pendingChange, cfg.PublishQueue)
		s.dispatched = make(chan struct{})
		go s.dispatch()
	}
	return s
}

// Sessions exposes the store cache so it can be swept by a cache.Manager.
func (s *ExpenseService) Sessions() *cache.LRUCache[*store.Store] {
	return s.sessions
}

// Store returns the loaded store of id's owner, loading it on first use.
func (s *ExpenseService) Store(ctx context.Context, id identity.Identity) (*store.Store, error) {
	owner := id.Owner()
	return s.sessions.GetOrCreate(owner.StorageKey(), func() (*store.Store, error) {
		st := store.New(s.medium, s.storeOpts...)
		if err := st.Load(ctx, owner); err != nil {
			return nil, fmt.Errorf("load %s: %w", owner, err)
		}
		st.OnChange(s.publishChange)

		logger(ctx).InfoContext(ctx, "Expense session opened",
			applog.FieldOwnerKey, owner.StorageKey(),
			applog.FieldRecordCount, len(st.Records()))
		return st, nil
	})
}

// Dashboard returns the owner's records and derived views.
func (s *ExpenseService) Dashboard(ctx context.Context, id identity.Identity) (store.Snapshot, error) {
	st, err := s.Store(ctx, id)
	if err != nil {
		return store.Snapshot{}, err
	}
	return st.Snapshot(), nil
}

func (s *ExpenseService) Records(ctx context.Context, id identity.Identity) ([]core.Expense, error) {
	st, err := s.Store(ctx, id)
	if err != nil {
		return nil, err
	}
	return st.Records(), nil
}

func (s *ExpenseService) Create(ctx context.Context, id identity.Identity, in core.ExpenseInput) (core.Expense, error) {
	st, err := s.Store(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	rec, err := st.Create(ctx, in)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	applog.NewStructuredLogger(logger(ctx)).
		LogExpenseChanged(ctx, store.OpCreate, id.Owner().StorageKey(), rec.ID, rec.Amount.Cents, rec.Category.String())
	return rec, nil
}

func (s *ExpenseService) Update(ctx context.Context, id identity.Identity, expenseID string, in core.ExpenseInput) (core.Expense, error) {
	st, err := s.Store(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	rec, err := st.Update(ctx, expenseID, in)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", expenseID, err)
	}
	applog.NewStructuredLogger(logger(ctx)).
		LogExpenseChanged(ctx, store.OpUpdate, id.Owner().StorageKey(), rec.ID, rec.Amount.Cents, rec.Category.String())
	return rec, nil
}

// Delete removes a record; deleting a missing id succeeds.
func (s *ExpenseService) Delete(ctx context.Context, id identity.Identity, expenseID string) error {
	st, err := s.Store(ctx, id)
	if err != nil {
		return err
	}
	if err := st.Delete(ctx, expenseID); err != nil {
		return fmt.Errorf("delete expense %s: %w", expenseID, err)
	}
	return nil
}

// SelectForEdit marks the record as being edited and returns it.
func (s *ExpenseService) SelectForEdit(ctx context.Context, id identity.Identity, expenseID string) (core.Expense, error) {
	st, err := s.Store(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	rec, ok := st.Get(expenseID)
	if !ok {
		return core.Expense{}, fmt.Errorf("select expense %s: %w", expenseID, core.ErrNotFound)
	}
	st.SelectForEdit(&rec)
	return rec, nil
}

func (s *ExpenseService) ClearSelection(ctx context.Context, id identity.Identity) error {
	st, err := s.Store(ctx, id)
	if err != nil {
		return err
	}
	st.SelectForEdit(nil)
	return nil
}

// publishChange runs after each commit and only enqueues the event. When the
// backlog is full the event is dropped; the exporter's reconcile pass picks
// the change up from the mirror.
func (s *ExpenseService) publishChange(ctx context.Context, op, expenseID string, snap store.Snapshot) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewExpenseChangedMessage(snap.Owner.StorageKey(), op, expenseID, len(snap.Records))

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.changes <- pendingChange{ctx: context.WithoutCancel(ctx), msg: msg}:
	default:
		logger(ctx).WarnContext(ctx, "Publish backlog full, dropping expense change",
			applog.FieldOwnerKey, msg.OwnerKey,
			applog.FieldOperation, op)
	}
}

// dispatch publishes queued events in order. The mirror is already written,
// so a failed publish is only logged.
func (s *ExpenseService) dispatch() {
	defer close(s.dispatched)
	for c := range s.changes {
		if err := s.publisher.PublishExpenseChanged(c.ctx, c.msg); err != nil {
			applog.NewStructuredLogger(logger(c.ctx)).LogError(c.ctx, "Failed to publish expense change", err,
				applog.ErrorTypeNetwork, c.msg.Operation, applog.NewFields().WithOwner(c.msg.OwnerKey))
		}
	}
}

// Close drains queued change events, then releases the medium and publisher
// when they hold resources. Calling it again returns the first result.
func (s *ExpenseService) Close() error {
	s.closeOnce.Do(func() {
		if s.changes != nil {
			s.closeMu.Lock()
			s.closed = true
			close(s.changes)
			s.closeMu.Unlock()
			<-s.dispatched
		}

		var errs []error
		if c, ok := s.medium.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
		}
		if c, ok := s.publisher.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("amqp: %w", err))
			}
		}
		if err := errors.Join(errs...); err != nil {
			s.closeErr = fmt.Errorf("close expense service: %w", err)
		}
	})
	return s.closeErr
}

func logger(ctx context.Context) *applog.Logger {
	return applog.FromContext(ctx).WithComponent(applog.ComponentExpense)
}
