package db

import (
	"context"

	"gorm.io/gorm"
)

// Tx is the unit of work handed to every transactional operation. Writes go
// through DB(); side effects that must only happen once the data is durable
// (notifications, cache invalidation) are registered with AfterCommit.
type Tx struct {
	conn        *gorm.DB
	afterCommit []func(context.Context)
}

// TxRunner opens a unit of work.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *Tx) error) error
}

// DB returns the transaction-bound GORM handle.
func (t *Tx) DB() *gorm.DB {
	return t.conn
}

// AfterCommit queues fn to run once the surrounding transaction commits.
// Hooks are dropped when the transaction rolls back.
func (t *Tx) AfterCommit(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	t.afterCommit = append(t.afterCommit, fn)
}

func (t *Tx) runAfterCommit(ctx context.Context) {
	hooks := t.afterCommit
	t.afterCommit = nil
	for _, hook := range hooks {
		hook(ctx)
	}
}

// InTx runs fn inside a database transaction and fires after-commit hooks on success.
func (c *Client) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	var unit *Tx
	err := c.WithTx(ctx, func(tx *gorm.DB) error {
		unit = &Tx{conn: tx}
		return fn(unit)
	})
	if err != nil {
		return err
	}
	if unit != nil {
		unit.runAfterCommit(ctx)
	}
	return nil
}
