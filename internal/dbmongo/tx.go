package dbmongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// TxRunner runs a multi-document write sequence. Atomic reports whether the
// sequence is rolled back on failure; callers compensate when it is not.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	Atomic() bool
}

func NewTxRunner(mc *MongoClient, transactions bool) TxRunner {
	if transactions {
		return &sessionTx{client: mc.Client}
	}
	return SequentialTx{}
}

type sessionTx struct {
	client *mongo.Client
}

func (t *sessionTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (t *sessionTx) Atomic() bool { return true }

// SequentialTx runs the steps as plain writes.
type SequentialTx struct{}

func (SequentialTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (SequentialTx) Atomic() bool { return false }
