// Package txctx passes an open GORM transaction through the context so
// collaborators called inside the transaction (the audit recorder above
// all) join it instead of opening their own connection.
package txctx

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx attaches an open transaction to ctx.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the transaction attached to ctx, or fallback when the
// caller is not inside one.
func TxFrom(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return fallback
}
