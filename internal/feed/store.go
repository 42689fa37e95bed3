// Package feed implements the optimistic in-memory feed store consumed by the
// UI layer. It owns the session's ordered post collection, applies mutations
// before the network confirms them, and reconciles or rolls them back when the
// remote call settles. Every successful state change is persisted through the
// cache synchronizer.
package feed

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"feedsync/internal/client"
	"feedsync/internal/models"
	"feedsync/internal/syncer"

	"github.com/google/uuid"
)

// ErrLoadInProgress is returned when a list fetch is requested while another
// one is still in flight. The caller gets an immediate failure instead of a
// queued duplicate request.
var ErrLoadInProgress = models.NewValidationError("feed load already in progress")

// RemoteClient is what the store needs from the remote feed client.
type RemoteClient interface {
	ListGlobal(ctx context.Context, page int, mode client.ListMode) (*client.ListResult, error)
	ListByAuthor(ctx context.Context, authorID string, page int, mode client.ListMode) (*client.ListResult, error)
	Create(ctx context.Context, input client.CreatePostInput) (models.Post, error)
	Remove(ctx context.Context, postID string) error
	Update(post models.Post) models.Post
	React(ctx context.Context, postID, accountID string) (models.Post, error)
	Comment(ctx context.Context, postID, content string) (models.Comment, error)
}

// Snapshot is a point-in-time copy of the store's reactive fields. The post
// slice never aliases the store's internal state.
type Snapshot struct {
	Posts   []models.Post
	Loading bool
	Err     error
	Page    int
	HasMore bool
}

// Store is the optimistic feed store for one authenticated session.
type Store struct {
	remote    RemoteClient
	sync      *syncer.Synchronizer
	accountID string
	pageSize  int
	logger    *slog.Logger

	mu      sync.Mutex
	posts   []models.Post
	loading bool
	err     error
	page    int
	hasMore bool
}

// NewStore creates a feed store for the given account. An empty accountID
// denotes an unauthenticated session; read operations work, mutations that
// need an identity fail fast.
func NewStore(remote RemoteClient, sync *syncer.Synchronizer, accountID string, pageSize int, logger *slog.Logger) *Store {
	if pageSize <= 0 {
		pageSize = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		remote:    remote,
		sync:      sync,
		accountID: accountID,
		pageSize:  pageSize,
		logger:    logger,
		posts:     []models.Post{},
		hasMore:   true,
	}
}

// Init seeds the store from the persistent cache for instant load, then
// refreshes from the network. A failed refresh keeps the cached posts; the
// failure is recorded, not fatal.
func (s *Store) Init(ctx context.Context) {
	cached := s.sync.LoadGlobal(ctx)

	s.mu.Lock()
	if len(cached) > 0 {
		s.posts = models.ClonePosts(cached)
	}
	s.mu.Unlock()

	if err := s.FetchPosts(ctx); err != nil && !models.IsCancelled(err) {
		s.logger.Warn("initial feed refresh failed, serving cached posts", "error", err)
	}
}

// Teardown clears the session's in-memory state. Called on logout; the
// persistent cache is left in place for the next session.
func (s *Store) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = []models.Post{}
	s.loading = false
	s.err = nil
	s.page = 0
	s.hasMore = true
}

// Snapshot returns a copy of the reactive fields the UI reads.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Posts:   models.ClonePosts(s.posts),
		Loading: s.loading,
		Err:     s.err,
		Page:    s.page,
		HasMore: s.hasMore,
	}
}

// FetchPosts loads the first page of the global feed in replace mode. A call
// made while another load is in flight fails immediately with
// ErrLoadInProgress and has no side effects.
func (s *Store) FetchPosts(ctx context.Context) error {
	return s.fetchGlobal(ctx, 1, client.ModeReplace)
}

// FetchNextPage loads the page after the last successful one in append mode.
// It is a no-op when there is nothing more to fetch or a load is in flight.
func (s *Store) FetchNextPage(ctx context.Context) error {
	s.mu.Lock()
	if s.loading || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	next := s.page + 1
	s.mu.Unlock()
	return s.fetchGlobal(ctx, next, client.ModeAppend)
}

func (s *Store) fetchGlobal(ctx context.Context, page int, mode client.ListMode) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrLoadInProgress
	}
	s.loading = true
	s.err = nil
	s.mu.Unlock()

	result, err := s.remote.ListGlobal(ctx, page, mode)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false

	if err != nil {
		if models.IsCancelled(err) {
			// Superseded request: drop the outcome, keep all state.
			return nil
		}
		s.err = err
		return err
	}

	if mode == client.ModeReplace {
		s.posts = result.Posts
	} else {
		s.posts = syncer.MergeByID(s.posts, result.Posts)
	}
	s.page = page
	if result.HasMoreKnown {
		s.hasMore = result.HasMore
	} else {
		s.hasMore = len(result.Posts) == s.pageSize
	}

	s.sync.RecordGlobalFeed(ctx, s.posts)
	return nil
}

// FetchUserPosts loads an author's feed for a profile page, replaces the
// author's cached collection, and reconciles the in-memory and cached global
// collections: the author's stale posts are dropped, fresh ones merged in
// after the existing non-author entries.
func (s *Store) FetchUserPosts(ctx context.Context, authorID string) ([]models.Post, error) {
	result, err := s.remote.ListByAuthor(ctx, authorID, 1, client.ModeReplace)
	if err != nil {
		if models.IsCancelled(err) {
			return nil, nil
		}
		return nil, err
	}

	s.mu.Lock()
	kept := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if p.Author != authorID {
			kept = append(kept, p)
		}
	}
	s.posts = syncer.MergeByID(kept, result.Posts)
	s.mu.Unlock()

	s.sync.RecordAuthorFeed(ctx, authorID, result.Posts, false)
	return models.ClonePosts(result.Posts), nil
}

// CreatePost submits a new post and prepends the server's canonical record to
// the feed. Creation is not optimistic: downstream like and comment calls
// need the server-assigned id, so the error propagates loudly instead of the
// feed degrading silently.
func (s *Store) CreatePost(ctx context.Context, input client.CreatePostInput) (models.Post, error) {
	if s.accountID == "" {
		return models.Post{}, models.NewUnauthenticatedError("creating a post requires authentication")
	}

	post, err := s.remote.Create(ctx, input)
	if err != nil {
		return models.Post{}, err
	}

	s.mu.Lock()
	s.posts = insertFirst(s.posts, post)
	s.mu.Unlock()

	s.sync.RecordCreate(ctx, post)
	return post, nil
}

// DeletePost removes a post after the server acknowledges the delete.
// Deletion is not optimistic: a failed delete that already vanished from the
// feed would be a ghost absence.
func (s *Store) DeletePost(ctx context.Context, postID string) error {
	s.mu.Lock()
	existing, ok := s.find(postID)
	s.mu.Unlock()
	if !ok {
		return models.NewNotFoundError("post", postID)
	}

	if err := s.remote.Remove(ctx, postID); err != nil {
		return err
	}

	s.mu.Lock()
	out := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if p.ID != postID {
			out = append(out, p)
		}
	}
	s.posts = out
	s.mu.Unlock()

	s.sync.RecordDelete(ctx, postID, existing.Author)
	return nil
}

// UpdatePost applies a local edit optimistically. The edit already happened
// client-side, so cache persistence is best-effort and there is no rollback.
func (s *Store) UpdatePost(ctx context.Context, post models.Post) (models.Post, error) {
	normalized := s.remote.Update(post)

	s.mu.Lock()
	_, ok := s.find(normalized.ID)
	if !ok {
		s.mu.Unlock()
		return models.Post{}, models.NewNotFoundError("post", normalized.ID)
	}
	s.replace(normalized)
	s.mu.Unlock()

	s.sync.RecordUpdate(ctx, normalized, normalized.Author)
	return normalized, nil
}

// ToggleLike flips the current account's like on a post, reflecting the
// change before the network call resolves. On success the server's canonical
// post wins over the optimistic guess; on failure the flip is re-applied to
// restore the previous state and a corrective full refetch is scheduled.
func (s *Store) ToggleLike(ctx context.Context, postID string) error {
	if s.accountID == "" {
		return models.NewUnauthenticatedError("liking a post requires authentication")
	}

	s.mu.Lock()
	target, ok := s.find(postID)
	if !ok {
		s.mu.Unlock()
		return models.NewNotFoundError("post", postID)
	}
	optimistic := target.Clone()
	optimistic.ToggleLike(s.accountID)
	s.replace(optimistic)
	s.mu.Unlock()

	canonical, err := s.remote.React(ctx, postID, s.accountID)
	if err != nil {
		// The flip is its own inverse: applying it again restores the
		// pre-mutation like set exactly.
		s.mu.Lock()
		if current, ok := s.find(postID); ok {
			reverted := current.Clone()
			reverted.ToggleLike(s.accountID)
			s.replace(reverted)
		}
		s.mu.Unlock()

		if refetchErr := s.FetchPosts(ctx); refetchErr != nil && !models.IsCancelled(refetchErr) {
			s.logger.Warn("corrective refetch after failed like toggle", "post", postID, "error", refetchErr)
		}
		return err
	}

	s.mu.Lock()
	s.replace(canonical)
	s.mu.Unlock()

	s.sync.RecordUpdate(ctx, canonical, canonical.Author)
	return nil
}

// AddComment appends the comment optimistically under a temporary id, then
// swaps in the server's canonical comment. On failure the temporary comment
// is rolled back and the error returned; an unconfirmed comment never
// lingers.
func (s *Store) AddComment(ctx context.Context, postID, content string) (models.Comment, error) {
	if s.accountID == "" {
		return models.Comment{}, models.NewUnauthenticatedError("commenting requires authentication")
	}
	if strings.TrimSpace(content) == "" {
		return models.Comment{}, models.NewValidationError("comment content is required")
	}

	s.mu.Lock()
	target, ok := s.find(postID)
	if !ok {
		s.mu.Unlock()
		return models.Comment{}, models.NewNotFoundError("post", postID)
	}
	temp := models.Comment{
		ID:      "tmp-" + uuid.NewString(),
		Author:  s.accountID,
		Content: content,
		Pending: true,
	}
	updated := target.Clone()
	updated.Comments = append(updated.Comments, temp)
	s.replace(updated)
	s.mu.Unlock()

	canonical, err := s.remote.Comment(ctx, postID, content)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.find(postID)
	if !ok {
		// The post disappeared while the call was in flight; nothing to fix.
		return canonical, err
	}
	patched := current.Clone()
	if err != nil {
		patched.Comments = removeComment(patched.Comments, temp.ID)
		s.replace(patched)
		return models.Comment{}, err
	}
	patched.Comments = swapComment(patched.Comments, temp.ID, canonical)
	s.replace(patched)
	s.sync.RecordUpdate(ctx, patched, patched.Author)
	return canonical, nil
}

// find returns the post with the given id. Caller holds the lock.
func (s *Store) find(postID string) (models.Post, bool) {
	for _, p := range s.posts {
		if p.ID == postID {
			return p, true
		}
	}
	return models.Post{}, false
}

// replace swaps the stored post with the same id in place. Caller holds the
// lock.
func (s *Store) replace(post models.Post) {
	for i, p := range s.posts {
		if p.ID == post.ID {
			s.posts[i] = post
			return
		}
	}
}

// insertFirst prepends the post, or replaces it in place when the id already
// exists.
func insertFirst(list []models.Post, post models.Post) []models.Post {
	for i, p := range list {
		if p.ID == post.ID {
			out := append([]models.Post{}, list...)
			out[i] = post
			return out
		}
	}
	return append([]models.Post{post}, list...)
}

func removeComment(comments []models.Comment, id string) []models.Comment {
	out := make([]models.Comment, 0, len(comments))
	for _, c := range comments {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

func swapComment(comments []models.Comment, tempID string, canonical models.Comment) []models.Comment {
	out := append([]models.Comment{}, comments...)
	for i, c := range out {
		if c.ID == tempID {
			out[i] = canonical
			return out
		}
	}
	return append(out, canonical)
}
