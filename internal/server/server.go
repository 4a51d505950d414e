// Package server is the HTTP surface: credential endpoints, the OAuth and
// email-confirmation redirects, and the JSON data API served through the
// query cache.
package server

import (
	"context"
	"strings"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/robby3000/luxicle/cache"
	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/auth"
	"github.com/robby3000/luxicle/internal/models"
	"github.com/robby3000/luxicle/internal/storage"
	"github.com/robby3000/luxicle/repositorycache"
)

// AuthService is the part of the auth provider the HTTP surface calls.
type AuthService interface {
	SignUp(ctx context.Context, in models.RegisterInput) (*models.UserProfile, *auth.Session, error)
	SignIn(ctx context.Context, in models.SignInInput) (*auth.Session, error)
	SignOut(ctx context.Context, accessToken, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*auth.Session, error)
	Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error)
	User(ctx context.Context, accessToken string) (*models.UserProfile, error)
	RequestPasswordReset(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, accessToken, password string) (*models.UserProfile, error)
	VerifyOTP(ctx context.Context, typ, tokenHash string) (*auth.Session, error)
	AuthCodeURL(provider, state string) (string, error)
	ExchangeCode(ctx context.Context, provider, code string) (*auth.Session, error)
}

var _ AuthService = (*auth.Service)(nil)

type Config struct {
	// SiteURL prefixes browser redirects. Empty keeps them relative.
	SiteURL        string
	AllowedOrigins string
	SecureCookies  bool
	RefreshTTL     time.Duration
	// BodyLimit must leave room for a full-size image upload.
	BodyLimit int
}

func DefaultConfig() Config {
	return Config{
		AllowedOrigins: "http://localhost:3000",
		RefreshTTL:     30 * 24 * time.Hour,
		BodyLimit:      storage.MaxImageSize + 1<<20,
	}
}

type Server struct {
	cfg     Config
	auth    AuthService
	data    *repositorycache.Store
	uploads *storage.Uploader
	prom    *fiberprometheus.FiberPrometheus
	log     *zap.SugaredLogger
	app     *fiber.App
}

type Option func(*Server)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics records request metrics and serves them at /metrics.
func WithMetrics(prom *fiberprometheus.FiberPrometheus) Option {
	return func(s *Server) {
		s.prom = prom
	}
}

func New(cfg Config, authSvc AuthService, data *repositorycache.Store, uploads *storage.Uploader, opts ...Option) *Server {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultConfig().BodyLimit
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultConfig().RefreshTTL
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")

	s := &Server{
		cfg:     cfg,
		auth:    authSvc,
		data:    data,
		uploads: uploads,
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "luxicle",
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          s.handleError,
		DisableStartupMessage: true,
	})
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.log.Infow("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	if s.prom != nil {
		s.prom.RegisterAt(s.app, "/metrics")
		s.app.Use(s.prom.Middleware)
	}
	s.app.Use(s.requestLogger)
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	s.app.Use(s.identify)
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Browser redirects
	s.app.Get("/auth/oauth/:provider", s.OAuthRedirect)
	s.app.Get("/auth/callback", s.OAuthCallback)
	s.app.Get("/auth/confirm", s.Confirm)

	api := s.app.Group("/api")

	authAPI := api.Group("/auth")
	authAPI.Post("/login", s.Login)
	authAPI.Post("/register", s.Register)
	authAPI.Post("/logout", s.Logout)
	authAPI.Get("/session", s.Session)
	authAPI.Post("/refresh", s.Refresh)
	authAPI.Post("/reset-password", s.ResetPassword)
	authAPI.Post("/update-password", s.requireAuth, s.UpdatePassword)

	api.Get("/categories", s.ListCategories)
	api.Get("/tags", s.ListTags)

	challenges := api.Group("/challenges")
	challenges.Get("/", s.ListChallenges)
	challenges.Post("/", s.requireAuth, s.CreateChallenge)
	challenges.Get("/:id", s.GetChallenge)

	luxicles := api.Group("/luxicles")
	luxicles.Get("/search", s.SearchLuxicles)
	luxicles.Post("/", s.requireAuth, s.CreateLuxicle)
	luxicles.Get("/:id/comments", s.ListComments)
	luxicles.Post("/:id/comments", s.requireAuth, s.CreateComment)
	luxicles.Get("/:id/reactions", s.ListReactions)
	luxicles.Post("/:id/reactions", s.requireAuth, s.CreateReaction)
	luxicles.Post("/:id/flags", s.requireAuth, s.CreateFlag)
	luxicles.Get("/:id", s.GetLuxicle)
	luxicles.Patch("/:id", s.requireAuth, s.UpdateLuxicle)

	users := api.Group("/users")
	users.Get("/search", s.SearchUsers)
	users.Post("/:id/follow", s.requireAuth, s.Follow)
	users.Delete("/:id/follow", s.requireAuth, s.Unfollow)
	users.Get("/:id/followers", s.ListFollowers)
	users.Get("/:id/following", s.ListFollowing)
	users.Get("/:username", s.GetUserByUsername)

	messages := api.Group("/messages", s.requireAuth)
	messages.Get("/", s.ListMessages)
	messages.Post("/", s.SendMessage)

	// Reads here depend on the signed-in user and are disabled without one.
	profile := api.Group("/profile", s.gateUserReads)
	profile.Get("/", s.GetProfile)
	profile.Patch("/", s.requireAuth, s.UpdateProfile)
	profile.Post("/avatar", s.requireAuth, s.UploadAvatar)
	profile.Post("/cover", s.requireAuth, s.UploadCover)
}

// identify resolves the caller from the bearer token or session cookie.
// Bad tokens leave the request anonymous; auth-store outages fail it.
func (s *Server) identify(c *fiber.Ctx) error {
	token := accessToken(c)
	if token == "" {
		return c.Next()
	}
	claims, err := s.auth.Authenticate(c.UserContext(), token)
	switch {
	case err == nil:
		c.Locals(localUserID, claims.Subject)
		c.Locals(localAccessToken, token)
	case apperr.KindOf(err) == apperr.KindTransport:
		return err
	}
	return c.Next()
}

func (s *Server) requireAuth(c *fiber.Ctx) error {
	if currentUserID(c) == "" {
		return apperr.NewUnauthorized("authentication required")
	}
	return c.Next()
}

func (s *Server) gateUserReads(c *fiber.Ctx) error {
	ctx := repositorycache.WithReadOptions(c.UserContext(), cache.Enabled(currentUserID(c) != ""))
	c.SetUserContext(ctx)
	return c.Next()
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		// The error handler runs after this middleware returns.
		status = apperr.HTTPStatus(err)
	}
	s.log.Infow("http request",
		"request_id", c.Locals(requestid.ConfigDefault.ContextKey),
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration", time.Since(start),
		"user_id", currentUserID(c),
	)
	return err
}
