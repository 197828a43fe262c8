// Package txn runs multi-document writes inside a MongoDB transaction when
// the deployment supports one.
//
// Standalone servers reject transactions. Callers that need atomicity check
// for ErrNotSupported and fall back to an ordered, idempotent sequence of
// single-document writes.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotSupported is returned by Run when the server cannot run transactions.
// No write inside fn has been committed when it is returned.
var ErrNotSupported = errors.New("transactions not supported by this deployment")

// Server error codes that mean "no transactions here".
//
//	20  IllegalOperation (standalone server)
//	51  IllegalOperation on older servers
//	263 OperationNotSupportedInTransaction
var notSupportedCodes = map[int32]bool{20: true, 51: true, 263: true}

var keywords = []string{"transaction", "replica set", "session", "not supported", "illegal operation"}

// IsNotSupported reports whether err indicates that the server cannot run a
// transaction. Known command codes match directly; otherwise at least two of
// the telltale phrases must appear in the message.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && notSupportedCodes[ce.Code] {
		return true
	}
	msg := strings.ToLower(err.Error())
	hits := 0
	for _, k := range keywords {
		if strings.Contains(msg, k) {
			hits++
		}
	}
	return hits >= 2
}

// Run executes fn inside a transaction on client. fn must use the context it
// is given for every operation so they join the session.
func Run(ctx context.Context, client *mongo.Client, fn func(ctx context.Context) error) error {
	sess, err := client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			return ErrNotSupported
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if IsNotSupported(err) {
		return ErrNotSupported
	}
	return err
}

// Runner binds Run to a client so services can depend on a one-method
// interface. A Runner without a client reports ErrNotSupported.
type Runner struct {
	Client *mongo.Client
}

func (r Runner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.Client == nil {
		return ErrNotSupported
	}
	return Run(ctx, r.Client, fn)
}
