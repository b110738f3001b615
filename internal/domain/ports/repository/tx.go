package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque storage transaction handle. Repositories accept nil (NoTX) for
// the non-transactional path.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one storage transaction and hands it the tx handle.
// The refund finalization and guest claim both rely on it so the status write and the
// access change commit together.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		ok, err := txns.MarkRefunded(ctx, tx, id, token, upd)
//		...
//		_, err = access.Delete(ctx, tx, userID, productID)
//		return err
//	})
//
// A non-nil error from fn rolls the transaction back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
