// Package client talks to the remote feed service. It translates feed intents
// into HTTP calls, normalizes the service's inconsistent payload shapes into
// canonical models, and enforces at most one in-flight list request per scope.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"feedsync/internal/models"
)

// ListMode selects how a page of results is applied by the caller: Replace
// resets the collection, Append merges the page into it.
type ListMode string

const (
	ModeReplace ListMode = "replace"
	ModeAppend  ListMode = "append"
)

// ListResult is the outcome of a successful list call. HasMoreKnown reports
// whether the server sent an explicit has-more flag; when it is false the
// caller falls back to the full-page heuristic.
type ListResult struct {
	Posts        []models.Post
	Mode         ListMode
	HasMore      bool
	HasMoreKnown bool
}

// TokenFunc supplies the bearer credential for outgoing requests. Token
// issuance belongs to the auth collaborator; an empty string means the
// session is unauthenticated.
type TokenFunc func() string

// Client is the remote feed client. All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenFunc
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]*listState
}

type listState struct {
	cancel context.CancelFunc
	gen    uint64
}

// NewClient creates a feed client for the service at baseURL.
func NewClient(baseURL string, token TokenFunc, timeout time.Duration, logger *slog.Logger) *Client {
	if token == nil {
		token = func() string { return "" }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
		logger:     logger,
		inflight:   make(map[string]*listState),
	}
}

const scopeGlobal = "global"

func scopeAuthor(authorID string) string {
	return "author:" + authorID
}

// beginList cancels any in-flight list request for the scope and registers a
// new one. The returned generation identifies this request; a response is
// applied only if its generation is still the current one.
func (c *Client) beginList(ctx context.Context, scope string) (context.Context, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var gen uint64 = 1
	if prev, ok := c.inflight[scope]; ok {
		prev.cancel()
		gen = prev.gen + 1
	}
	reqCtx, cancel := context.WithCancel(ctx)
	c.inflight[scope] = &listState{cancel: cancel, gen: gen}
	return reqCtx, gen
}

// finishList reports whether the request with the given generation is still
// the current one for its scope, and clears the slot if so.
func (c *Client) finishList(scope string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.inflight[scope]
	if !ok || state.gen != gen {
		return false
	}
	state.cancel()
	delete(c.inflight, scope)
	return true
}

// ListGlobal fetches one page of the global feed. A call superseded by a
// newer ListGlobal resolves as Cancelled, which the caller discards silently.
func (c *Client) ListGlobal(ctx context.Context, page int, mode ListMode) (*ListResult, error) {
	return c.list(ctx, scopeGlobal, fmt.Sprintf("/posts?page=%d", page), mode)
}

// ListByAuthor fetches one page of a single author's feed. Cancellation is
// scoped per author: fetching one profile does not cancel another profile's
// fetch or the global one.
func (c *Client) ListByAuthor(ctx context.Context, authorID string, page int, mode ListMode) (*ListResult, error) {
	path := fmt.Sprintf("/users/%s/posts?page=%d", url.PathEscape(authorID), page)
	return c.list(ctx, scopeAuthor(authorID), path, mode)
}

func (c *Client) list(ctx context.Context, scope, path string, mode ListMode) (*ListResult, error) {
	reqCtx, gen := c.beginList(ctx, scope)

	body, err := c.do(reqCtx, http.MethodGet, path, nil)
	if err != nil {
		if !models.IsCancelled(err) {
			c.finishList(scope, gen)
		}
		return nil, err
	}
	if !c.finishList(scope, gen) {
		// A newer request for this scope was issued while we were decoding.
		return nil, models.NewCancelledError()
	}

	posts, hasMore, hasMoreKnown, err := decodeListPayload(body)
	if err != nil {
		return nil, err
	}
	return &ListResult{
		Posts:        posts,
		Mode:         mode,
		HasMore:      hasMore,
		HasMoreKnown: hasMoreKnown,
	}, nil
}

// CreatePostInput carries the opaque content fields of a new post.
type CreatePostInput struct {
	Title    string `json:"title,omitempty"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}

// Create submits a new post and returns the server's canonical record. A
// success response without a resulting id is a malformed response, not a
// success.
func (c *Client) Create(ctx context.Context, input CreatePostInput) (models.Post, error) {
	body, err := c.do(ctx, http.MethodPost, "/posts", input)
	if err != nil {
		return models.Post{}, err
	}
	return decodePostPayload(body)
}

// Remove deletes a post on the server.
func (c *Client) Remove(ctx context.Context, postID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(postID), nil)
	return err
}

// Update normalizes a locally edited post. Content edits need no network
// round trip beyond the caller's persistence step.
func (c *Client) Update(post models.Post) models.Post {
	post.Normalize()
	return post
}

// React toggles the account's like on a post and returns the server's
// authoritative version, which may disagree with the caller's optimistic
// guess.
func (c *Client) React(ctx context.Context, postID, accountID string) (models.Post, error) {
	payload := map[string]string{"user": accountID}
	body, err := c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/like", payload)
	if err != nil {
		return models.Post{}, err
	}
	return decodePostPayload(body)
}

// Comment creates a comment on a post. Empty or whitespace-only content and
// unauthenticated sessions are rejected before any network call.
func (c *Client) Comment(ctx context.Context, postID, content string) (models.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return models.Comment{}, models.NewValidationError("comment content is required")
	}
	if c.token() == "" {
		return models.Comment{}, models.NewUnauthenticatedError("commenting requires authentication")
	}
	payload := map[string]string{"content": content}
	body, err := c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments", payload)
	if err != nil {
		return models.Comment{}, err
	}
	return decodeCommentPayload(body)
}

// do performs one HTTP round trip and maps transport failures onto the error
// taxonomy. A context cancelled by a superseding request surfaces as
// Cancelled; everything else transport-level is NetworkError.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, models.NewNetworkError(err)
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, models.NewNetworkError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, models.NewCancelledError()
		}
		c.logger.Warn("feed request failed", "method", method, "path", path, "error", err)
		return nil, models.NewNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, models.NewHTTPError(resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, models.NewNetworkError(err)
	}
	return buf.Bytes(), nil
}
