package query

import (
	"context"
	"fmt"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

// Page is a decoded page of typed records
type Page[T any] struct {
	Items []*T
	Meta  domain.Meta
}

// FetchTyped fetches a page and decodes every record into T
func FetchTyped[T any, PT interface {
	*T
	domain.Shape
}](ctx context.Context, c *Client, collection string, q domain.Query) (*Page[T], error) {
	res, err := c.Fetch(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	items, err := domain.DecodeAll[T, PT](collection, res.Records)
	if err != nil {
		return nil, err
	}
	return &Page[T]{Items: items, Meta: res.Meta}, nil
}

// DecodeSnapshot decodes the records of a view snapshot
func DecodeSnapshot[T any, PT interface {
	*T
	domain.Shape
}](collection string, snap Snapshot) ([]*T, error) {
	if snap.Data == nil {
		return nil, nil
	}
	return domain.DecodeAll[T, PT](collection, snap.Data.Records)
}

// ByDocumentID is the descriptor of a detail screen: one record by its
// documentId with the given relations expanded.
func ByDocumentID(documentID string, populate ...string) domain.Query {
	return domain.Query{
		Filters:    []domain.Filter{domain.Eq("documentId", documentID)},
		Populate:   populate,
		Pagination: &domain.Pagination{Page: 1, PageSize: 1},
	}
}

// FindOne fetches a single record by documentId. An empty result is
// domain.ErrNotFound, distinct from a failed request.
func FindOne[T any, PT interface {
	*T
	domain.Shape
}](ctx context.Context, c *Client, collection, documentID string, populate ...string) (*T, error) {
	if documentID == "" {
		return nil, domain.NewValidationError("documentId", "is required")
	}
	res, err := c.Fetch(ctx, collection, ByDocumentID(documentID, populate...))
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("%s %s: %w", collection, documentID, domain.ErrNotFound)
	}
	return domain.Decode[T, PT](collection, res.Records[0])
}
