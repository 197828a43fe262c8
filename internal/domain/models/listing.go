// internal/domain/models/listing.go
package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Collections that hold project listings a group can originate from.
const (
	ListingClientProjects = "client_projects"
	ListingPaidProjects   = "paid_projects"
	ListingProjects       = "projects"
)

// ListingCollections is the set of allowed ProjectRef.Collection values.
var ListingCollections = []string{
	ListingClientProjects,
	ListingPaidProjects,
	ListingProjects,
}

// ListingStatusCompleted marks a listing whose group finished the workflow.
const ListingStatusCompleted = "completed"

// ProjectRef points at a listing document in one of ListingCollections.
type ProjectRef struct {
	Collection string             `bson:"collection" json:"collection"`
	ID         primitive.ObjectID `bson:"id" json:"id"`
}

// Valid reports whether the reference names a known listing collection.
func (p ProjectRef) Valid() bool {
	return indexOf(ListingCollections, p.Collection) >= 0 && !p.ID.IsZero()
}
