package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// UnitOfWork owns the batch transaction of a migration run.
// The first write opens the transaction; reads see uncommitted batch state while
// it is open. Savepoints isolate single items and Commit ends the batch.
// Durable writes survive every rollback.
type UnitOfWork struct {
	db *gorm.DB

	mu          sync.Mutex
	tx          *gorm.DB
	seq         int
	savepoints  map[string]int
	afterCommit []pendingHook
	durable     []pendingWrite
}

type pendingWrite struct {
	seq int
	fn  func(*gorm.DB) error
}

type pendingHook struct {
	seq int
	fn  func()
}

// NewUnitOfWork creates a UnitOfWork on db
func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db, savepoints: make(map[string]int)}
}

// Conn returns the open transaction, or the plain connection when there is none.
func (u *UnitOfWork) Conn(ctx context.Context) *gorm.DB {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.tx != nil {
		return u.tx.WithContext(ctx)
	}
	return u.db.WithContext(ctx)
}

// Writer returns the batch transaction, opening it on first use.
func (u *UnitOfWork) Writer(ctx context.Context) (*gorm.DB, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.beginLocked(); err != nil {
		return nil, err
	}
	return u.tx.WithContext(ctx), nil
}

// InTransaction reports whether a batch transaction is open
func (u *UnitOfWork) InTransaction() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tx != nil
}

func (u *UnitOfWork) beginLocked() error {
	if u.tx != nil {
		return nil
	}
	// The transaction outlives single requests, so it is not bound to a caller context.
	tx := u.db.WithContext(context.Background()).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	u.tx = tx
	return nil
}

// Savepoint marks the current state of the batch and returns the savepoint name.
func (u *UnitOfWork) Savepoint(ctx context.Context) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.beginLocked(); err != nil {
		return "", err
	}
	u.seq++
	name := fmt.Sprintf("sp_%d", u.seq)
	if err := u.tx.WithContext(ctx).SavePoint(name).Error; err != nil {
		return "", fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}
	u.savepoints[name] = u.seq
	return name, nil
}

// RollbackTo discards everything written after the savepoint, including
// after-commit hooks registered since then.
func (u *UnitOfWork) RollbackTo(ctx context.Context, name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.tx == nil {
		return nil
	}
	seq, ok := u.savepoints[name]
	if !ok {
		return fmt.Errorf("unknown savepoint %s", name)
	}
	if err := u.tx.WithContext(ctx).RollbackTo(name).Error; err != nil {
		return fmt.Errorf("failed to roll back to savepoint %s: %w", name, err)
	}
	kept := u.afterCommit[:0]
	for _, h := range u.afterCommit {
		if h.seq < seq {
			kept = append(kept, h)
		}
	}
	u.afterCommit = kept
	for sp, s := range u.savepoints {
		if s > seq {
			delete(u.savepoints, sp)
		}
	}
	for _, w := range u.durable {
		if w.seq < seq {
			continue
		}
		if err := w.fn(u.tx.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to restore write after savepoint %s: %w", name, err)
		}
	}
	return nil
}

// Durable runs fn on the batch transaction and keeps its effect when the batch
// is rolled back, either to a savepoint or as a whole. Without an open
// transaction fn runs on the plain connection.
func (u *UnitOfWork) Durable(ctx context.Context, fn func(*gorm.DB) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.tx == nil {
		return fn(u.db.WithContext(ctx))
	}
	if err := fn(u.tx.WithContext(ctx)); err != nil {
		return err
	}
	u.durable = append(u.durable, pendingWrite{seq: u.seq, fn: fn})
	return nil
}

// SharesWriter reports whether the store allows a single writer only, so that
// writes outside the batch would wait for its commit.
func (u *UnitOfWork) SharesWriter() bool {
	return u.db.Dialector.Name() == "sqlite"
}

// AfterCommit runs fn once the batch commits. Without an open transaction fn runs immediately.
func (u *UnitOfWork) AfterCommit(fn func()) {
	u.mu.Lock()
	if u.tx == nil {
		u.mu.Unlock()
		fn()
		return
	}
	u.afterCommit = append(u.afterCommit, pendingHook{seq: u.seq, fn: fn})
	u.mu.Unlock()
}

// Commit commits the batch transaction, if any, and runs the after-commit hooks.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	if u.tx == nil {
		u.mu.Unlock()
		return nil
	}
	err := u.tx.Commit().Error
	hooks := u.afterCommit
	u.reset()
	u.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	for _, h := range hooks {
		h.fn()
	}
	return nil
}

// Rollback abandons the batch transaction. Durable writes are replayed on
// the plain connection.
func (u *UnitOfWork) Rollback() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback().Error
	writes := u.durable
	u.reset()
	if err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	var errs []error
	for _, w := range writes {
		if err := w.fn(u.db.WithContext(context.Background())); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to restore writes after rollback: %w", err)
	}
	return nil
}

func (u *UnitOfWork) reset() {
	u.tx = nil
	u.seq = 0
	u.savepoints = make(map[string]int)
	u.afterCommit = nil
	u.durable = nil
}
