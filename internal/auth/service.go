// Package auth implements the auth provider: password and OAuth sign-in, JWT
// access tokens, Redis-backed refresh tokens, revocation, password reset and
// email confirmation.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
)

// Users is the slice of the data layer auth needs.
type Users interface {
	GetUserProfile(ctx context.Context, id string) (*models.UserProfile, error)
	GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error)
	CreateUserProfile(ctx context.Context, p *models.UserProfile) (*models.UserProfile, error)
	SetPassword(ctx context.Context, id, hash string) error
	ConfirmEmail(ctx context.Context, id string) (*models.UserProfile, error)
}

type Config struct {
	JWTSecret  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	ConfirmTTL time.Duration
	// RequireEmailConfirmation withholds the session at sign-up and refuses
	// password sign-in until the address is confirmed.
	RequireEmailConfirmation bool
	// SiteURL is the public origin used in emailed links.
	SiteURL string
}

func DefaultConfig() Config {
	return Config{
		Issuer:     "luxicle",
		AccessTTL:  time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
		ResetTTL:   time.Hour,
		ConfirmTTL: 24 * time.Hour,
		SiteURL:    "http://localhost:3000",
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.JWTSecret, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.AccessTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RefreshTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.ResetTTL, validation.Required),
		validation.Field(&c.ConfirmTTL, validation.Required),
		validation.Field(&c.SiteURL, validation.Required, is.URL),
	)
}

// Session is what a successful sign-in, refresh or verification hands back.
type Session struct {
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token"`
	TokenType    string              `json:"token_type"`
	ExpiresIn    int                 `json:"expires_in"`
	ExpiresAt    time.Time           `json:"expires_at"`
	User         *models.UserProfile `json:"user,omitempty"`
}

// Expired reports whether the access token is expired, or within a few
// seconds of expiring, at now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt.Add(-expiryLeeway))
}

const expiryLeeway = 10 * time.Second

type Service struct {
	cfg        Config
	users      Users
	redis      redis.Cmdable
	mailer     Mailer
	providers  map[string]*Provider
	log        *zap.SugaredLogger
	now        func() time.Time
	bcryptCost int
}

type Option func(*Service)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMailer(m Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithProvider registers an OAuth provider under p.Name.
func WithProvider(p *Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.providers[p.Name] = p
		}
	}
}

// WithBcryptCost overrides bcrypt.DefaultCost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func New(cfg Config, users Users, rdb redis.Cmdable, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:        cfg,
		users:      users,
		redis:      rdb,
		providers:  make(map[string]*Provider),
		log:        zap.NewNop().Sugar(),
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mailer == nil {
		s.mailer = NewLogMailer(s.log)
	}
	return s, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Service) HashPassword(password string) (string, error) {
	return HashPassword(password, s.bcryptCost)
}

// SignUp registers a password user and mails a confirmation link. The session
// is nil when email confirmation is required.
func (s *Service) SignUp(ctx context.Context, in models.RegisterInput) (*models.UserProfile, *Session, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, nil, apperr.WrapValidation(err)
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, nil, apperr.NewInternal(err)
	}

	u, err := s.users.CreateUserProfile(ctx, &models.UserProfile{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Infow("user registered", "user_id", u.ID, "username", u.Username)

	if err := s.sendConfirmation(ctx, u); err != nil {
		s.log.Warnw("confirmation mail failed", "user_id", u.ID, "error", err)
	}

	if s.cfg.RequireEmailConfirmation {
		return u, nil, nil
	}
	sess, err := s.issue(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return u, sess, nil
}

func invalidCredentials() error {
	return apperr.NewUnauthorized("invalid login credentials")
}

func (s *Service) SignIn(ctx context.Context, in models.SignInInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := in.Validate(); err != nil {
		return nil, apperr.WrapValidation(err)
	}

	u, err := s.users.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return nil, invalidCredentials()
	}
	if s.cfg.RequireEmailConfirmation && u.EmailConfirmedAt == nil {
		return nil, apperr.NewUnauthorized("email not confirmed")
	}

	sess, err := s.issue(ctx, u)
	if err != nil {
		return nil, err
	}
	s.log.Infow("user signed in", "user_id", u.ID)
	return sess, nil
}

// SignOut revokes the access token until it expires and drops the refresh
// token. Tokens that are already invalid are ignored.
func (s *Service) SignOut(ctx context.Context, accessToken, refreshToken string) error {
	if refreshToken != "" {
		if err := s.redis.Del(ctx, refreshKey(refreshToken)).Err(); err != nil {
			return redisErr(err)
		}
	}
	if accessToken == "" {
		return nil
	}

	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthorized) {
			return nil
		}
		return err
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, revokedKey(claims.ID), claims.Subject, ttl).Err(); err != nil {
		return redisErr(err)
	}
	s.log.Infow("user signed out", "user_id", claims.Subject)
	return nil
}

// Refresh rotates a refresh token: the old one is consumed and a new session issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, apperr.NewUnauthorized("refresh token is required")
	}
	userID, err := s.redis.GetDel(ctx, refreshKey(refreshToken)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.NewUnauthorized("invalid refresh token")
	}
	if err != nil {
		return nil, redisErr(err)
	}

	u, err := s.users.GetUserProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NewUnauthorized("invalid refresh token")
		}
		return nil, err
	}
	return s.issue(ctx, u)
}

// User returns the profile behind a valid access token.
func (s *Service) User(ctx context.Context, accessToken string) (*models.UserProfile, error) {
	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetUserProfile(ctx, claims.Subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NewUnauthorized("user no longer exists")
	}
	return u, err
}

func redisErr(err error) error {
	return &apperr.Error{Kind: apperr.KindTransport, Message: "session store unavailable", Err: err}
}
