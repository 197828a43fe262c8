// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds the backends opened in ConnectDB. NATS is nil when event
// publishing is not configured.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	NATS          *nats.Conn
}
