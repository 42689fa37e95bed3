package feed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"feedsync/internal/cache"
	"feedsync/internal/client"
	"feedsync/internal/models"
	"feedsync/internal/syncer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteStub is a stub for RemoteClient.
type remoteStub struct {
	mu           sync.Mutex
	listCalls    int
	listByAuthor int

	listGlobalFn   func(context.Context, int, client.ListMode) (*client.ListResult, error)
	listByAuthorFn func(context.Context, string, int, client.ListMode) (*client.ListResult, error)
	createFn       func(context.Context, client.CreatePostInput) (models.Post, error)
	removeFn       func(context.Context, string) error
	reactFn        func(context.Context, string, string) (models.Post, error)
	commentFn      func(context.Context, string, string) (models.Comment, error)
}

func (s *remoteStub) ListGlobal(ctx context.Context, page int, mode client.ListMode) (*client.ListResult, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()
	return s.listGlobalFn(ctx, page, mode)
}

func (s *remoteStub) ListByAuthor(ctx context.Context, authorID string, page int, mode client.ListMode) (*client.ListResult, error) {
	s.mu.Lock()
	s.listByAuthor++
	s.mu.Unlock()
	return s.listByAuthorFn(ctx, authorID, page, mode)
}

func (s *remoteStub) Create(ctx context.Context, input client.CreatePostInput) (models.Post, error) {
	return s.createFn(ctx, input)
}

func (s *remoteStub) Remove(ctx context.Context, postID string) error {
	return s.removeFn(ctx, postID)
}

func (s *remoteStub) Update(post models.Post) models.Post {
	post.Normalize()
	return post
}

func (s *remoteStub) React(ctx context.Context, postID, accountID string) (models.Post, error) {
	return s.reactFn(ctx, postID, accountID)
}

func (s *remoteStub) Comment(ctx context.Context, postID, content string) (models.Comment, error) {
	return s.commentFn(ctx, postID, content)
}

func (s *remoteStub) globalListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func post(id, author string, likes ...string) models.Post {
	if likes == nil {
		likes = []string{}
	}
	return models.Post{ID: id, Author: author, Likes: likes, Comments: []models.Comment{}, Views: []string{}, Shares: []string{}}
}

func listResult(mode client.ListMode, posts ...models.Post) *client.ListResult {
	return &client.ListResult{Posts: posts, Mode: mode}
}

func noopRemote() *remoteStub {
	return &remoteStub{
		listGlobalFn: func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
			return listResult(mode), nil
		},
		listByAuthorFn: func(_ context.Context, _ string, _ int, mode client.ListMode) (*client.ListResult, error) {
			return listResult(mode), nil
		},
		createFn: func(_ context.Context, _ client.CreatePostInput) (models.Post, error) {
			return models.Post{}, nil
		},
		removeFn: func(_ context.Context, _ string) error { return nil },
		reactFn: func(_ context.Context, _, _ string) (models.Post, error) {
			return models.Post{}, nil
		},
		commentFn: func(_ context.Context, _, _ string) (models.Comment, error) {
			return models.Comment{}, nil
		},
	}
}

func newTestStore(remote *remoteStub, store cache.Store, accountID string, pageSize int) *Store {
	return NewStore(remote, syncer.New(store, nil), accountID, pageSize, nil)
}

func ids(posts []models.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestFetchPosts_ReplacesAndPersists(t *testing.T) {
	remote := noopRemote()
	remote.listGlobalFn = func(_ context.Context, page int, mode client.ListMode) (*client.ListResult, error) {
		assert.Equal(t, 1, page)
		assert.Equal(t, client.ModeReplace, mode)
		return listResult(mode, post("p1", "u1"), post("p2", "u2")), nil
	}
	mem := cache.NewMemoryStore()
	s := newTestStore(remote, mem, "acct", 20)

	require.NoError(t, s.FetchPosts(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, []string{"p1", "p2"}, ids(snap.Posts))
	assert.Equal(t, 1, snap.Page)
	assert.False(t, snap.Loading)
	assert.NoError(t, snap.Err)

	cached, _ := mem.Get(context.Background(), cache.GlobalKey)
	assert.Equal(t, []string{"p1", "p2"}, ids(cached))
}

func TestFetchPosts_FailureKeepsLastKnownGood(t *testing.T) {
	remote := noopRemote()
	remote.listGlobalFn = func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
		return listResult(mode, post("p1", "u1")), nil
	}
	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 20)
	require.NoError(t, s.FetchPosts(context.Background()))

	remote.listGlobalFn = func(_ context.Context, _ int, _ client.ListMode) (*client.ListResult, error) {
		return nil, models.NewNetworkError(errors.New("offline"))
	}
	err := s.FetchPosts(context.Background())
	require.Error(t, err)

	snap := s.Snapshot()
	assert.Equal(t, []string{"p1"}, ids(snap.Posts))
	assert.Error(t, snap.Err)
	assert.False(t, snap.Loading)
}

func TestFetchPosts_Reentrancy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	remote := noopRemote()
	remote.listGlobalFn = func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
		close(started)
		<-release
		return listResult(mode, post("p1", "u1")), nil
	}
	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 20)

	done := make(chan error, 1)
	go func() {
		done <- s.FetchPosts(context.Background())
	}()
	<-started

	// Second call while the first is in flight fails immediately.
	err := s.FetchPosts(context.Background())
	assert.ErrorIs(t, err, ErrLoadInProgress)

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, remote.globalListCalls())
	assert.Equal(t, []string{"p1"}, ids(s.Snapshot().Posts))
}

func TestFetchNextPage_AppendsAndDedups(t *testing.T) {
	remote := noopRemote()
	remote.listGlobalFn = func(_ context.Context, page int, mode client.ListMode) (*client.ListResult, error) {
		if page == 1 {
			return listResult(mode, post("p1", "u1"), post("p2", "u2")), nil
		}
		updated := post("p2", "u2")
		updated.Content = "fresh"
		return listResult(mode, updated, post("p3", "u3")), nil
	}
	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 2)

	require.NoError(t, s.FetchPosts(context.Background()))
	require.True(t, s.Snapshot().HasMore, "a full page implies more may exist")

	require.NoError(t, s.FetchNextPage(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids(snap.Posts))
	assert.Equal(t, "fresh", snap.Posts[1].Content)
	assert.Equal(t, 2, snap.Page)
	assert.True(t, snap.HasMore)
}

func TestFetchNextPage_ShortPageEndsPagination(t *testing.T) {
	remote := noopRemote()
	remote.listGlobalFn = func(_ context.Context, page int, mode client.ListMode) (*client.ListResult, error) {
		if page == 1 {
			return listResult(mode, post("p1", "u1"), post("p2", "u2")), nil
		}
		return listResult(mode, post("p3", "u3")), nil
	}
	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 2)

	require.NoError(t, s.FetchPosts(context.Background()))
	require.NoError(t, s.FetchNextPage(context.Background()))
	assert.False(t, s.Snapshot().HasMore)

	// Exhausted pagination makes further calls no-ops.
	calls := remote.globalListCalls()
	require.NoError(t, s.FetchNextPage(context.Background()))
	assert.Equal(t, calls, remote.globalListCalls())
}

func TestFetchPosts_ExplicitHasMoreFlagWins(t *testing.T) {
	remote := noopRemote()
	remote.listGlobalFn = func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
		// A full page, but the server says there is nothing more.
		return &client.ListResult{
			Posts:        []models.Post{post("p1", "u1"), post("p2", "u2")},
			Mode:         mode,
			HasMore:      false,
			HasMoreKnown: true,
		}, nil
	}
	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 2)

	require.NoError(t, s.FetchPosts(context.Background()))
	assert.False(t, s.Snapshot().HasMore)
}

func TestInit_ColdStartFromCacheWhileOffline(t *testing.T) {
	mem := cache.NewMemoryStore()
	require.NoError(t, mem.Set(context.Background(), cache.GlobalKey, []models.Post{post("p1", "u1")}))

	remote := noopRemote()
	remote.listGlobalFn = func(_ context.Context, _ int, _ client.ListMode) (*client.ListResult, error) {
		return nil, models.NewNetworkError(errors.New("offline"))
	}
	s := newTestStore(remote, mem, "acct", 20)

	s.Init(context.Background())

	snap := s.Snapshot()
	require.Equal(t, []string{"p1"}, ids(snap.Posts))
	assert.Empty(t, snap.Posts[0].Likes)
	assert.False(t, snap.Loading)
}

func TestToggleLike_AppliedBeforeNetworkResolves(t *testing.T) {
	remote := noopRemote()
	var likesDuringCall []string
	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 20)

	remote.listGlobalFn = func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
		return listResult(mode, post("p1", "u1")), nil
	}
	require.NoError(t, s.FetchPosts(context.Background()))

	remote.reactFn = func(_ context.Context, postID, accountID string) (models.Post, error) {
		likesDuringCall = s.Snapshot().Posts[0].Likes
		canonical := post("p1", "u1", accountID)
		return canonical, nil
	}

	require.NoError(t, s.ToggleLike(context.Background(), "p1"))

	// The optimistic flip was visible while the network call was in flight.
	assert.Equal(t, []string{"acct"}, likesDuringCall)
	assert.Equal(t, []string{"acct"}, s.Snapshot().Posts[0].Likes)
}

func TestToggleLike_CanonicalVersionWins(t *testing.T) {
	remote := noopRemote()
	mem := cache.NewMemoryStore()
	s := newTestStore(remote, mem, "acct", 20)

	remote.listGlobalFn = func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
		return listResult(mode, post("p1", "u1")), nil
	}
	require.NoError(t, s.FetchPosts(context.Background()))

	// The server saw a concurrent like from another client.
	remote.reactFn = func(_ context.Context, _, _ string) (models.Post, error) {
		return post("p1", "u1", "acct", "rival"), nil
	}

	require.NoError(t, s.ToggleLike(context.Background(), "p1"))
	assert.Equal(t, []string{"acct", "rival"}, s.Snapshot().Posts[0].Likes)

	cached, _ := mem.Get(context.Background(), cache.GlobalKey)
	require.Len(t, cached, 1)
	assert.Equal(t, []string{"acct", "rival"}, cached[0].Likes)
}

func TestToggleLike_RollbackOnFailure(t *testing.T) {
	remote := noopRemote()
	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 20)

	original := post("p1", "u1", "other")
	remote.listGlobalFn = func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
		return listResult(mode, original), nil
	}
	require.NoError(t, s.FetchPosts(context.Background()))
	callsBefore := remote.globalListCalls()

	remote.reactFn = func(_ context.Context, _, _ string) (models.Post, error) {
		return models.Post{}, models.NewNetworkError(errors.New("flaky"))
	}

	err := s.ToggleLike(context.Background(), "p1")
	require.Error(t, err)

	// The like set is exactly as before the toggle.
	assert.Equal(t, []string{"other"}, s.Snapshot().Posts[0].Likes)

	// A corrective full refetch was scheduled.
	assert.Greater(t, remote.globalListCalls(), callsBefore)
}

func TestToggleLike_Preconditions(t *testing.T) {
	remote := noopRemote()
	reacted := false
	remote.reactFn = func(_ context.Context, _, _ string) (models.Post, error) {
		reacted = true
		return models.Post{}, nil
	}

	unauth := newTestStore(remote, cache.NewMemoryStore(), "", 20)
	err := unauth.ToggleLike(context.Background(), "p1")
	assert.True(t, models.IsCode(err, models.CodeUnauthenticated))

	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 20)
	err = s.ToggleLike(context.Background(), "ghost")
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	assert.False(t, reacted, "no network call without preconditions")
}

func TestCreateThenDelete(t *testing.T) {
	remote := noopRemote()
	mem := cache.NewMemoryStore()
	s := newTestStore(remote, mem, "u1", 20)

	remote.createFn = func(_ context.Context, input client.CreatePostInput) (models.Post, error) {
		created := post("p9", "u1")
		created.Content = input.Content
		return created, nil
	}

	created, err := s.CreatePost(context.Background(), client.CreatePostInput{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "p9", created.ID)

	snap := s.Snapshot()
	require.NotEmpty(t, snap.Posts)
	assert.Equal(t, "p9", snap.Posts[0].ID)

	cachedGlobal, _ := mem.Get(context.Background(), cache.GlobalKey)
	assert.Equal(t, []string{"p9"}, ids(cachedGlobal))
	cachedAuthor, _ := mem.Get(context.Background(), cache.AuthorKey("u1"))
	assert.Equal(t, []string{"p9"}, ids(cachedAuthor))

	require.NoError(t, s.DeletePost(context.Background(), "p9"))

	assert.Empty(t, s.Snapshot().Posts)
	cachedGlobal, _ = mem.Get(context.Background(), cache.GlobalKey)
	assert.Empty(t, cachedGlobal)
	cachedAuthor, _ = mem.Get(context.Background(), cache.AuthorKey("u1"))
	assert.Empty(t, cachedAuthor)
}

func TestCreatePost_FailsLoudly(t *testing.T) {
	remote := noopRemote()
	remote.createFn = func(_ context.Context, _ client.CreatePostInput) (models.Post, error) {
		return models.Post{}, models.NewHTTPError(500)
	}
	s := newTestStore(remote, cache.NewMemoryStore(), "u1", 20)

	_, err := s.CreatePost(context.Background(), client.CreatePostInput{Content: "x"})
	require.Error(t, err)
	assert.Empty(t, s.Snapshot().Posts, "no optimistic insertion without a server id")
}

func TestDeletePost_NotOptimistic(t *testing.T) {
	remote := noopRemote()
	remote.listGlobalFn = func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
		return listResult(mode, post("p1", "u1")), nil
	}
	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 20)
	require.NoError(t, s.FetchPosts(context.Background()))

	remote.removeFn = func(_ context.Context, _ string) error {
		// The post must still be visible while the delete is unacknowledged.
		assert.Equal(t, []string{"p1"}, ids(s.Snapshot().Posts))
		return models.NewNetworkError(errors.New("flaky"))
	}

	err := s.DeletePost(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, []string{"p1"}, ids(s.Snapshot().Posts))
}

func TestUpdatePost(t *testing.T) {
	remote := noopRemote()
	mem := cache.NewMemoryStore()
	s := newTestStore(remote, mem, "acct", 20)

	remote.listGlobalFn = func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
		return listResult(mode, post("p1", "u1"), post("p2", "u2")), nil
	}
	require.NoError(t, s.FetchPosts(context.Background()))

	edited := post("p1", "u1")
	edited.Content = "edited"
	got, err := s.UpdatePost(context.Background(), edited)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)

	snap := s.Snapshot()
	assert.Equal(t, []string{"p1", "p2"}, ids(snap.Posts), "update does not reorder")
	assert.Equal(t, "edited", snap.Posts[0].Content)

	_, err = s.UpdatePost(context.Background(), post("ghost", "u1"))
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestFetchUserPosts_MergesIntoGlobal(t *testing.T) {
	remote := noopRemote()
	mem := cache.NewMemoryStore()
	s := newTestStore(remote, mem, "acct", 20)

	x := post("x", "u1")
	y := post("y", "u2")
	remote.listGlobalFn = func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
		return listResult(mode, x, y), nil
	}
	require.NoError(t, s.FetchPosts(context.Background()))

	xUpdated := post("x", "u1")
	xUpdated.Content = "fresh"
	z := post("z", "u1")
	remote.listByAuthorFn = func(_ context.Context, authorID string, _ int, mode client.ListMode) (*client.ListResult, error) {
		assert.Equal(t, "u1", authorID)
		return listResult(mode, xUpdated, z), nil
	}

	authored, err := s.FetchUserPosts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "z"}, ids(authored))

	snap := s.Snapshot()
	require.Equal(t, []string{"y", "x", "z"}, ids(snap.Posts))
	assert.Equal(t, "fresh", snap.Posts[1].Content)

	cachedAuthor, _ := mem.Get(context.Background(), cache.AuthorKey("u1"))
	assert.Equal(t, []string{"x", "z"}, ids(cachedAuthor))
	cachedGlobal, _ := mem.Get(context.Background(), cache.GlobalKey)
	assert.Equal(t, []string{"y", "x", "z"}, ids(cachedGlobal))
}

func TestFetchUserPosts_CancelledIsNoOp(t *testing.T) {
	remote := noopRemote()
	remote.listByAuthorFn = func(_ context.Context, _ string, _ int, _ client.ListMode) (*client.ListResult, error) {
		return nil, models.NewCancelledError()
	}
	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 20)

	posts, err := s.FetchUserPosts(context.Background(), "u1")
	assert.NoError(t, err)
	assert.Nil(t, posts)
}

func TestAddComment_SwapsTempForCanonical(t *testing.T) {
	remote := noopRemote()
	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 20)

	remote.listGlobalFn = func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
		return listResult(mode, post("p1", "u1")), nil
	}
	require.NoError(t, s.FetchPosts(context.Background()))

	var pendingDuringCall bool
	remote.commentFn = func(_ context.Context, _, content string) (models.Comment, error) {
		comments := s.Snapshot().Posts[0].Comments
		pendingDuringCall = len(comments) == 1 && comments[0].Pending
		return models.Comment{ID: "c1", Author: "acct", Content: content}, nil
	}

	comment, err := s.AddComment(context.Background(), "p1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "c1", comment.ID)
	assert.True(t, pendingDuringCall, "temporary comment visible while in flight")

	comments := s.Snapshot().Posts[0].Comments
	require.Len(t, comments, 1)
	assert.Equal(t, "c1", comments[0].ID)
	assert.False(t, comments[0].Pending)
}

func TestAddComment_RollbackOnFailure(t *testing.T) {
	remote := noopRemote()
	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 20)

	remote.listGlobalFn = func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
		return listResult(mode, post("p1", "u1")), nil
	}
	require.NoError(t, s.FetchPosts(context.Background()))

	remote.commentFn = func(_ context.Context, _, _ string) (models.Comment, error) {
		return models.Comment{}, models.NewHTTPError(500)
	}

	_, err := s.AddComment(context.Background(), "p1", "hello")
	require.Error(t, err)
	assert.Empty(t, s.Snapshot().Posts[0].Comments, "unconfirmed comment does not linger")
}

func TestAddComment_Preconditions(t *testing.T) {
	s := newTestStore(noopRemote(), cache.NewMemoryStore(), "acct", 20)

	_, err := s.AddComment(context.Background(), "p1", "   ")
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = s.AddComment(context.Background(), "ghost", "hello")
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	unauth := newTestStore(noopRemote(), cache.NewMemoryStore(), "", 20)
	_, err = unauth.AddComment(context.Background(), "p1", "hello")
	assert.True(t, models.IsCode(err, models.CodeUnauthenticated))
}

func TestTeardown(t *testing.T) {
	remote := noopRemote()
	remote.listGlobalFn = func(_ context.Context, _ int, mode client.ListMode) (*client.ListResult, error) {
		return listResult(mode, post("p1", "u1")), nil
	}
	s := newTestStore(remote, cache.NewMemoryStore(), "acct", 20)
	require.NoError(t, s.FetchPosts(context.Background()))

	s.Teardown()

	snap := s.Snapshot()
	assert.Empty(t, snap.Posts)
	assert.Equal(t, 0, snap.Page)
	assert.NoError(t, snap.Err)
}
