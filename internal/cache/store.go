// Package cache implements the persistent cache store: named, ordered
// collections of posts that survive process restarts. The store performs no
// merging and no normalization; that is the synchronizer's job.
package cache

import (
	"context"

	"feedsync/internal/models"
)

// Collection namespaces. The layout is fixed: one global collection plus one
// collection per author whose profile the session has fetched.
const (
	GlobalKey       = "global"
	AuthorKeyPrefix = "author:"
)

// AuthorKey returns the collection name for a single author's feed.
func AuthorKey(authorID string) string {
	return AuthorKeyPrefix + authorID
}

// Store is a key-value store of named post collections. Get returns an empty
// collection (nil, nil) when the name is unknown. Implementations report
// failures as StorageError; callers treat a failed store as an empty one and
// never let it block the in-memory path.
type Store interface {
	Get(ctx context.Context, name string) ([]models.Post, error)
	Set(ctx context.Context, name string, posts []models.Post) error
}
