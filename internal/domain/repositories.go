package domain

import (
	"context"
	"net/url"
)

// Backend is the remote content store. Collections are addressed by their
// REST plural name ("products", "gym-plans"); records by documentId.
type Backend interface {
	// Find retrieves one page of a collection
	Find(ctx context.Context, collection string, q Query) (*CollectionResult, error)

	// Create inserts a record and returns it as stored
	Create(ctx context.Context, collection string, fields map[string]interface{}) (Record, error)

	// Update applies a partial field set to a record
	Update(ctx context.Context, collection, documentID string, fields map[string]interface{}) (Record, error)

	// Delete removes a record
	Delete(ctx context.Context, collection, documentID string) error

	// Upload stores files in the media library
	Upload(ctx context.Context, files []FileUpload) ([]UploadedFile, error)

	// DeleteUpload removes a stored file
	DeleteUpload(ctx context.Context, id int64) error

	// FindSingle reads a single type such as "home-page"
	FindSingle(ctx context.Context, singleType string, q Query) (Record, error)

	// UpdateSingle writes a single type
	UpdateSingle(ctx context.Context, singleType string, fields map[string]interface{}) (Record, error)

	// Get, Post, Put and DeletePath reach custom endpoints (otp, users
	// plugin, analytics)
	Get(ctx context.Context, path string, params url.Values, out interface{}) error
	Post(ctx context.Context, path string, body interface{}, out interface{}) error
	Put(ctx context.Context, path string, body interface{}, out interface{}) error
	DeletePath(ctx context.Context, path string) error
}

// HealthChecker defines the interface for health checks
type HealthChecker interface {
	// CheckConnection checks if the backend is reachable
	CheckConnection(ctx context.Context) error
}
