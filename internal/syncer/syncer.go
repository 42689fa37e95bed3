// Package syncer keeps the persistent cache's global and per-author post
// collections consistent with each other. It is the only writer of the cache
// store; store failures are logged and swallowed so they never block the
// in-memory feed.
package syncer

import (
	"context"
	"log/slog"

	"feedsync/internal/cache"
	"feedsync/internal/models"
)

// Synchronizer applies feed changes to the persistent cache store.
type Synchronizer struct {
	store  cache.Store
	logger *slog.Logger
}

// New creates a Synchronizer. A nil logger falls back to slog.Default().
func New(store cache.Store, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{store: store, logger: logger}
}

// MergeByID combines two post sequences into one, keeping exactly one entry
// per id. Incoming entries overwrite existing ones with the same id in place;
// new ids are appended. The result preserves first-seen insertion order, which
// makes repeated merges deterministic.
func MergeByID(existing, incoming []models.Post) []models.Post {
	index := make(map[string]int, len(existing))
	out := make([]models.Post, 0, len(existing)+len(incoming))
	for _, p := range existing {
		if i, ok := index[p.ID]; ok {
			out[i] = p
			continue
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	for _, p := range incoming {
		if i, ok := index[p.ID]; ok {
			out[i] = p
			continue
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}

// RecordCreate prepends the post to the global collection and to its author's
// collection. If the id is already present the entry is replaced in place
// instead of duplicated.
func (s *Synchronizer) RecordCreate(ctx context.Context, post models.Post) {
	global := s.load(ctx, cache.GlobalKey)
	s.save(ctx, cache.GlobalKey, prependPost(global, post))

	if post.Author != "" {
		key := cache.AuthorKey(post.Author)
		authored := s.load(ctx, key)
		s.save(ctx, key, prependPost(authored, post))
	}
}

// RecordDelete removes the post from the global collection and, when the
// author is known, from the author collection.
func (s *Synchronizer) RecordDelete(ctx context.Context, postID, authorID string) {
	global := s.load(ctx, cache.GlobalKey)
	s.save(ctx, cache.GlobalKey, removePost(global, postID))

	if authorID != "" {
		key := cache.AuthorKey(authorID)
		authored := s.load(ctx, key)
		s.save(ctx, key, removePost(authored, postID))
	}
}

// RecordUpdate replaces the post wherever it already appears without moving
// its position. Likes and comments changes do not reorder a feed. When
// authorID is empty the post's own author is used.
func (s *Synchronizer) RecordUpdate(ctx context.Context, post models.Post, authorID string) {
	if authorID == "" {
		authorID = post.Author
	}

	global := s.load(ctx, cache.GlobalKey)
	s.save(ctx, cache.GlobalKey, replacePost(global, post))

	if authorID != "" {
		key := cache.AuthorKey(authorID)
		authored := s.load(ctx, key)
		s.save(ctx, key, replacePost(authored, post))
	}
}

// RecordAuthorFeed replaces the author collection with a freshly fetched one
// and reconciles the global collection: posts by this author that are no
// longer present are dropped, the fresh ones are merged in. With prepend the
// authored posts lead the global ordering, otherwise they follow the existing
// non-author entries.
func (s *Synchronizer) RecordAuthorFeed(ctx context.Context, authorID string, posts []models.Post, prepend bool) {
	s.save(ctx, cache.AuthorKey(authorID), posts)

	global := s.load(ctx, cache.GlobalKey)
	kept := make([]models.Post, 0, len(global))
	for _, p := range global {
		if p.Author != authorID {
			kept = append(kept, p)
		}
	}
	if prepend {
		s.save(ctx, cache.GlobalKey, MergeByID(posts, kept))
	} else {
		s.save(ctx, cache.GlobalKey, MergeByID(kept, posts))
	}
}

// RecordGlobalFeed replaces the global collection wholesale. The feed store
// calls this after every successful list merge with its full in-memory
// collection.
func (s *Synchronizer) RecordGlobalFeed(ctx context.Context, posts []models.Post) {
	s.save(ctx, cache.GlobalKey, posts)
}

// LoadGlobal reads the cached global collection, treating a failed or empty
// store as an empty feed.
func (s *Synchronizer) LoadGlobal(ctx context.Context) []models.Post {
	return s.load(ctx, cache.GlobalKey)
}

// LoadAuthor reads one author's cached collection.
func (s *Synchronizer) LoadAuthor(ctx context.Context, authorID string) []models.Post {
	return s.load(ctx, cache.AuthorKey(authorID))
}

func (s *Synchronizer) load(ctx context.Context, name string) []models.Post {
	posts, err := s.store.Get(ctx, name)
	if err != nil {
		s.logger.Warn("cache read failed", "collection", name, "error", err)
		return nil
	}
	return posts
}

func (s *Synchronizer) save(ctx context.Context, name string, posts []models.Post) {
	if posts == nil {
		posts = []models.Post{}
	}
	if err := s.store.Set(ctx, name, posts); err != nil {
		s.logger.Warn("cache write failed", "collection", name, "error", err)
	}
}

func prependPost(list []models.Post, post models.Post) []models.Post {
	for i, p := range list {
		if p.ID == post.ID {
			out := append([]models.Post{}, list...)
			out[i] = post
			return out
		}
	}
	return append([]models.Post{post}, list...)
}

func removePost(list []models.Post, postID string) []models.Post {
	out := make([]models.Post, 0, len(list))
	for _, p := range list {
		if p.ID != postID {
			out = append(out, p)
		}
	}
	return out
}

func replacePost(list []models.Post, post models.Post) []models.Post {
	out := append([]models.Post{}, list...)
	for i, p := range out {
		if p.ID == post.ID {
			out[i] = post
		}
	}
	return out
}
