package db

import (
	"context"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type txKey struct{}

// Conn returns the transaction carried by ctx, or base when there is none.
// Stores living outside this package use it to join a transaction.
func Conn(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return base.WithContext(ctx)
}

type transactor struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTransactor(db *gorm.DB, log *logger.Logger) ports.Transactor {
	return &transactor{db: db, log: log}
}

// WithinTransaction nests into an outer transaction when ctx already has one.
func (t *transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	if err != nil {
		t.log.Warnw("db_tx_rolled_back", "error", err)
	}
	return err
}
