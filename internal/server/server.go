// Package server exposes the feed engine over HTTP. It is the stand-in for
// the UI layer: each authenticated account gets one feed engine for its
// session, created on first request and torn down on DELETE /session.
package server

import (
	"log/slog"
	"sync"
	"time"

	"feedsync/internal/cache"
	"feedsync/internal/client"
	"feedsync/internal/config"
	"feedsync/internal/feed"
	"feedsync/internal/middleware"
	"feedsync/internal/syncer"

	"github.com/gofiber/fiber/v2"
)

// Server wires the facade's routes to per-session feed engines.
type Server struct {
	cfg    *config.Config
	store  cache.Store
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// session pairs one account's engine with its latest bearer credential. The
// credential is refreshed on every request so the engine never forwards a
// stale token upstream.
type session struct {
	engine *feed.Store

	mu    sync.Mutex
	token string
}

func (s *session) setToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *session) currentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// New creates the facade server.
func New(cfg *config.Config, store cache.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// App builds the Fiber application with middleware and routes.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Feed Sync API",
	})

	app.Use(middleware.StructuredLogger())

	api := app.Group("/api", middleware.AuthRequired)
	api.Get("/feed", s.GetFeed)
	api.Post("/feed/refresh", s.RefreshFeed)
	api.Post("/feed/next", s.FetchNextPage)
	api.Get("/users/:id/posts", s.GetUserPosts)
	api.Post("/posts", s.CreatePost)
	api.Put("/posts/:id", s.UpdatePost)
	api.Delete("/posts/:id", s.DeletePost)
	api.Post("/posts/:id/like", s.ToggleLike)
	api.Post("/posts/:id/comments", s.AddComment)
	api.Delete("/session", s.EndSession)

	return app
}

// sessionFor returns the account's session, creating and initializing the
// engine on first use.
func (s *Server) sessionFor(c *fiber.Ctx) *session {
	accountID := c.Locals("accountID").(string)
	token := c.Locals("token").(string)

	s.mu.Lock()
	sess, ok := s.sessions[accountID]
	if !ok {
		sess = &session{token: token}
		remote := client.NewClient(
			s.cfg.FeedAPIURL,
			sess.currentToken,
			time.Duration(s.cfg.HTTPTimeout)*time.Second,
			s.logger,
		)
		sess.engine = feed.NewStore(remote, syncer.New(s.store, s.logger), accountID, s.cfg.PageSize, s.logger)
		s.sessions[accountID] = sess
	}
	s.mu.Unlock()

	sess.setToken(token)
	if !ok {
		sess.engine.Init(c.Context())
	}
	return sess
}

// EndSession tears down the account's engine. The persistent cache stays.
func (s *Server) EndSession(c *fiber.Ctx) error {
	accountID := c.Locals("accountID").(string)

	s.mu.Lock()
	sess, ok := s.sessions[accountID]
	if ok {
		delete(s.sessions, accountID)
	}
	s.mu.Unlock()

	if ok {
		sess.engine.Teardown()
	}
	return c.SendStatus(fiber.StatusNoContent)
}
