// Package models contains data structures for the feed engine's domain.
package models

import (
	"strconv"
	"time"
)

// Comment represents a single comment on a post.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	// Pending marks an optimistic comment that the server has not confirmed yet.
	Pending bool `json:"pending,omitempty"`
}

// Post is the canonical feed entity. Title, Content and ImageURL are carried
// opaquely; the engine never interprets them. Likes, Comments, Views and
// Shares are never nil for a normalized post.
type Post struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	Likes     []string  `json:"likes"`
	Comments  []Comment `json:"comments"`
	Views     []string  `json:"views"`
	Shares    []string  `json:"shares"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Normalize coerces nil collections to empty ones so downstream code can rely
// on the §3 invariant without nil checks.
func (p *Post) Normalize() {
	if p.Likes == nil {
		p.Likes = []string{}
	}
	if p.Comments == nil {
		p.Comments = []Comment{}
	}
	if p.Views == nil {
		p.Views = []string{}
	}
	if p.Shares == nil {
		p.Shares = []string{}
	}
}

// HasLike reports whether the given account is in the post's like set.
func (p *Post) HasLike(accountID string) bool {
	for _, id := range p.Likes {
		if id == accountID {
			return true
		}
	}
	return false
}

// ToggleLike flips the account's membership in the like set. The flip is its
// own inverse, which is what makes the optimistic rollback path a second call
// to the same method.
func (p *Post) ToggleLike(accountID string) {
	for i, id := range p.Likes {
		if id == accountID {
			p.Likes = append(p.Likes[:i:i], p.Likes[i+1:]...)
			return
		}
	}
	p.Likes = append(p.Likes, accountID)
}

// Clone returns a deep copy of the post. Snapshots handed to callers must not
// alias the engine's internal slices.
func (p Post) Clone() Post {
	out := p
	out.Likes = append([]string{}, p.Likes...)
	out.Comments = append([]Comment{}, p.Comments...)
	out.Views = append([]string{}, p.Views...)
	out.Shares = append([]string{}, p.Shares...)
	return out
}

// ClonePosts deep-copies a slice of posts.
func ClonePosts(posts []Post) []Post {
	out := make([]Post, len(posts))
	for i, p := range posts {
		out[i] = p.Clone()
	}
	return out
}

// PostFromRaw normalizes a decoded JSON object into a Post. The remote service
// is inconsistent about field names, so the id may arrive as "_id" or "id" and
// the author as "author", "user", or an embedded profile object. A payload
// with no usable id fails closed.
func PostFromRaw(raw map[string]interface{}) (Post, error) {
	id := coerceID(raw["_id"])
	if id == "" {
		id = coerceID(raw["id"])
	}
	if id == "" {
		return Post{}, NewMalformedResponseError("post payload has no id")
	}

	author := coerceID(raw["author"])
	if author == "" {
		author = coerceID(raw["user"])
	}

	p := Post{
		ID:        id,
		Author:    author,
		Title:     coerceString(raw["title"]),
		Content:   coerceString(raw["content"]),
		ImageURL:  coerceString(raw["image_url"]),
		Likes:     coerceIDList(raw["likes"]),
		Views:     coerceIDList(raw["views"]),
		Shares:    coerceIDList(raw["shares"]),
		CreatedAt: coerceTime(raw["created_at"]),
	}

	p.Comments = []Comment{}
	if list, ok := raw["comments"].([]interface{}); ok {
		for _, item := range list {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if c, err := CommentFromRaw(obj); err == nil {
				p.Comments = append(p.Comments, c)
			}
		}
	}

	return p, nil
}

// CommentFromRaw normalizes a decoded JSON object into a Comment, with the
// same id and author coercion rules as PostFromRaw.
func CommentFromRaw(raw map[string]interface{}) (Comment, error) {
	id := coerceID(raw["_id"])
	if id == "" {
		id = coerceID(raw["id"])
	}
	if id == "" {
		return Comment{}, NewMalformedResponseError("comment payload has no id")
	}

	author := coerceID(raw["author"])
	if author == "" {
		author = coerceID(raw["user"])
	}

	return Comment{
		ID:        id,
		Author:    author,
		Content:   coerceString(raw["content"]),
		CreatedAt: coerceTime(raw["created_at"]),
	}, nil
}

// coerceID accepts a bare string id, a numeric id, or an embedded object
// carrying "_id"/"id", and returns the bare id.
func coerceID(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]interface{}:
		if id := coerceID(val["_id"]); id != "" {
			return id
		}
		return coerceID(val["id"])
	default:
		return ""
	}
}

func coerceString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// coerceIDList turns a heterogeneous JSON array into a list of bare ids.
// Anything that is not an array yields an empty list, never nil.
func coerceIDList(v interface{}) []string {
	out := []string{}
	list, ok := v.([]interface{})
	if !ok {
		return out
	}
	for _, item := range list {
		if id := coerceID(item); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func coerceTime(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
