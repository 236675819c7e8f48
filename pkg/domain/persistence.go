package domain

import (
	"context"
	"time"
)

// DefaultPageSize is used when a caller asks for a non-positive page size.
const DefaultPageSize = 30

// Attribute is a single key/value filter applied by GetByAttribute. Keys are
// dotted paths into the JSON form of a factory, for example "name",
// "creator.userId" or "workspace.projects.0.source.location".
type Attribute struct {
	Key   string
	Value string
}

// FactoryStore is the storage contract for factory records. Implementations
// must enforce id uniqueness and (name, creator.userId) uniqueness atomically
// with the write that could violate them.
type FactoryStore interface {
	// Create stores r and its images. Fails with InvalidArgument for a nil
	// record and Conflict for a duplicate id or name/creator pair.
	Create(ctx context.Context, r *Record) (*Record, error)
	// Update replaces the factory stored under r's id. Images are left as
	// they are. Fails with NotFound when the id is unknown.
	Update(ctx context.Context, r *Record) (*Record, error)
	// Remove deletes the record and its images.
	Remove(ctx context.Context, id string) error
	// GetByID returns the record stored under id.
	GetByID(ctx context.Context, id string) (*Record, error)
	// GetByAttribute returns a page of records matching every attribute.
	GetByAttribute(ctx context.Context, maxItems, skipCount int, attrs []Attribute) ([]*Record, error)
}

// ImageLinker is implemented by stores that can hand out a time limited URL
// for an image instead of its bytes. ok is false when the backing storage
// cannot sign URLs. An empty imageID selects the first image by name.
type ImageLinker interface {
	ImageURL(ctx context.Context, id, imageID string, expiry time.Duration) (link string, ok bool, err error)
}
