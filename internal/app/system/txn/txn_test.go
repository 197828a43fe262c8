package txn

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/opethaiwoh/favored/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsNotSupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unrelated", errors.New("connection reset by peer"), false},
		{"standalone code", mongo.CommandError{Code: 20, Message: "Transaction numbers are only allowed on a replica set member or mongos"}, true},
		{"legacy code", mongo.CommandError{Code: 51, Message: "illegal op"}, true},
		{"op not allowed in txn", mongo.CommandError{Code: 263, Message: "createIndexes cannot run in a transaction"}, true},
		{"duplicate key", mongo.CommandError{Code: 11000, Message: "E11000 duplicate key"}, false},
		{"wrapped standalone code", fmt.Errorf("initiate: %w", mongo.CommandError{Code: 20}), true},
		{"two phrases", errors.New("Transaction numbers require a Replica Set"), true},
		{"one phrase", errors.New("transaction aborted: write conflict"), false},
		{"session and not supported", errors.New("sessions are not supported by this server"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotSupported(tt.err); got != tt.want {
				t.Errorf("IsNotSupported(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRunner_NoClient(t *testing.T) {
	called := false
	err := Runner{}.Run(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrNotSupported) {
		t.Fatalf("Run() = %v, want ErrNotSupported", err)
	}
	if called {
		t.Error("fn must not run without a client")
	}
}

// The test server may be standalone or a replica set. Either the writes
// commit together or nothing is written and ErrNotSupported comes back.
func TestRun_CommitsOrReportsUnsupported(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	coll := db.Collection("txn_writes")
	if err := db.CreateCollection(ctx, "txn_writes"); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	err := Runner{Client: db.Client()}.Run(ctx, func(ctx context.Context) error {
		if _, err := coll.InsertOne(ctx, bson.M{"n": 1}); err != nil {
			return err
		}
		_, err := coll.InsertOne(ctx, bson.M{"n": 2})
		return err
	})

	n, cerr := coll.CountDocuments(ctx, bson.M{})
	if cerr != nil {
		t.Fatalf("count: %v", cerr)
	}
	switch {
	case errors.Is(err, ErrNotSupported):
		if n != 0 {
			t.Errorf("unsupported run left %d documents", n)
		}
	case err != nil:
		t.Fatalf("Run: %v", err)
	default:
		if n != 2 {
			t.Errorf("committed %d documents, want 2", n)
		}
	}
}

func TestRun_RollsBackOnError(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	coll := db.Collection("txn_writes")
	if err := db.CreateCollection(ctx, "txn_writes"); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	boom := errors.New("boom")
	err := Run(ctx, db.Client(), func(ctx context.Context) error {
		if _, err := coll.InsertOne(ctx, bson.M{"n": 1}); err != nil {
			return err
		}
		return boom
	})
	if errors.Is(err, ErrNotSupported) {
		t.Skip("test server has no transactions")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want boom", err)
	}
	n, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("rolled back transaction left %d documents", n)
	}
}
