package adb

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoTransaction is returned when a session has no open transaction.
	ErrNoTransaction = errors.New("no active transaction found")
	// ErrTransactionActive is returned when a session begins a second transaction.
	ErrTransactionActive = errors.New("transaction already active for session")
)

// Begin opens a transaction for the session. The transaction outlives ctx
// and stays open until Commit or Rollback.
func (m *Manager) Begin(ctx context.Context, session string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.txs[session]; ok {
		return fmt.Errorf("%w: %s", ErrTransactionActive, session)
	}
	tx, err := m.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	m.txs[session] = tx
	m.logger.Debugw("transaction started", "session_id", session)
	return nil
}

// Commit commits the session transaction.
func (m *Manager) Commit(session string) error {
	m.mutex.Lock()
	tx, ok := m.txs[session]
	delete(m.txs, session)
	m.mutex.Unlock()

	if !ok {
		return ErrNoTransaction
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	m.logger.Debugw("transaction committed", "session_id", session)
	return nil
}

// Rollback rolls back the session transaction. A session without one only
// produces a warning.
func (m *Manager) Rollback(session string) error {
	m.mutex.Lock()
	tx, ok := m.txs[session]
	delete(m.txs, session)
	m.mutex.Unlock()

	if !ok {
		m.logger.Warnw("rollback without active transaction", "session_id", session)
		return nil
	}
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	m.logger.Debugw("transaction rolled back", "session_id", session)
	return nil
}

// InTransaction reports whether the session has an open transaction.
func (m *Manager) InTransaction(session string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.txs[session]
	return ok
}

// ActiveTransactions returns the number of open session transactions.
func (m *Manager) ActiveTransactions() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.txs)
}

// ExecIn runs a statement inside the session transaction.
func (m *Manager) ExecIn(ctx context.Context, session, query string, args ...interface{}) *Result {
	m.mutex.Lock()
	tx, ok := m.txs[session]
	m.mutex.Unlock()

	if !ok {
		r := errorResult(CodeNoTransaction, ErrNoTransaction.Error())
		return r.finish(time.Now())
	}
	return m.run(ctx, tx, query, args...)
}
