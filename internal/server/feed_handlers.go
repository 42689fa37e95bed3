package server

import (
	"feedsync/internal/client"
	"feedsync/internal/models"

	"github.com/gofiber/fiber/v2"
)

// feedResponse mirrors the engine's reactive fields for the UI.
type feedResponse struct {
	Posts   []models.Post `json:"posts"`
	Loading bool          `json:"loading"`
	Error   string        `json:"error,omitempty"`
	Page    int           `json:"page"`
	HasMore bool          `json:"has_more"`
}

// GetFeed handles GET /api/feed
func (s *Server) GetFeed(c *fiber.Ctx) error {
	sess := s.sessionFor(c)
	return c.JSON(toResponse(sess))
}

// RefreshFeed handles POST /api/feed/refresh
func (s *Server) RefreshFeed(c *fiber.Ctx) error {
	sess := s.sessionFor(c)
	if err := sess.engine.FetchPosts(c.Context()); err != nil {
		return models.RespondWithError(c, statusForError(err), err)
	}
	return c.JSON(toResponse(sess))
}

// FetchNextPage handles POST /api/feed/next
func (s *Server) FetchNextPage(c *fiber.Ctx) error {
	sess := s.sessionFor(c)
	if err := sess.engine.FetchNextPage(c.Context()); err != nil {
		return models.RespondWithError(c, statusForError(err), err)
	}
	return c.JSON(toResponse(sess))
}

// GetUserPosts handles GET /api/users/:id/posts
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	sess := s.sessionFor(c)
	posts, err := sess.engine.FetchUserPosts(c.Context(), c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, statusForError(err), err)
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return c.JSON(fiber.Map{"posts": posts})
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	sess := s.sessionFor(c)

	var req client.CreatePostInput
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.Content == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Content is required"))
	}

	post, err := sess.engine.CreatePost(c.Context(), req)
	if err != nil {
		return models.RespondWithError(c, statusForError(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	sess := s.sessionFor(c)

	var req models.Post
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	req.ID = c.Params("id")

	post, err := sess.engine.UpdatePost(c.Context(), req)
	if err != nil {
		return models.RespondWithError(c, statusForError(err), err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	sess := s.sessionFor(c)
	if err := sess.engine.DeletePost(c.Context(), c.Params("id")); err != nil {
		return models.RespondWithError(c, statusForError(err), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleLike handles POST /api/posts/:id/like
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	sess := s.sessionFor(c)
	if err := sess.engine.ToggleLike(c.Context(), c.Params("id")); err != nil {
		return models.RespondWithError(c, statusForError(err), err)
	}
	return c.JSON(toResponse(sess))
}

// AddComment handles POST /api/posts/:id/comments
func (s *Server) AddComment(c *fiber.Ctx) error {
	sess := s.sessionFor(c)

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	comment, err := sess.engine.AddComment(c.Context(), c.Params("id"), req.Content)
	if err != nil {
		return models.RespondWithError(c, statusForError(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

func toResponse(sess *session) feedResponse {
	snap := sess.engine.Snapshot()
	resp := feedResponse{
		Posts:   snap.Posts,
		Loading: snap.Loading,
		Page:    snap.Page,
		HasMore: snap.HasMore,
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	return resp
}

// statusForError maps the engine's error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case models.IsCode(err, models.CodeUnauthenticated):
		return fiber.StatusUnauthorized
	case models.IsCode(err, models.CodeNotFound):
		return fiber.StatusNotFound
	case models.IsCode(err, models.CodeValidation):
		return fiber.StatusBadRequest
	case models.IsCode(err, models.CodeHTTP):
		return fiber.StatusBadGateway
	case models.IsCode(err, models.CodeMalformedResponse):
		return fiber.StatusBadGateway
	case models.IsCode(err, models.CodeNetwork):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
