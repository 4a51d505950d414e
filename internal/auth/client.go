package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
)

// Event names an auth state change.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// Listener receives auth events. session is nil for EventSignedOut.
type Listener func(event Event, session *Session)

// Backend is the auth surface a LocalClient drives. *Service implements it.
type Backend interface {
	SignIn(ctx context.Context, in models.SignInInput) (*Session, error)
	SignUp(ctx context.Context, in models.RegisterInput) (*models.UserProfile, *Session, error)
	SignOut(ctx context.Context, accessToken, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	User(ctx context.Context, accessToken string) (*models.UserProfile, error)
	RequestPasswordReset(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, accessToken, password string) (*models.UserProfile, error)
}

var _ Backend = (*Service)(nil)

// LocalClient keeps the current session in a TokenStore and broadcasts auth
// events to its listeners. It is the client-side counterpart of Service.
type LocalClient struct {
	backend Backend
	tokens  TokenStore
	log     *zap.SugaredLogger
	now     func() time.Time

	mu        sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64
}

type ClientOption func(*LocalClient)

func WithClientLogger(log *zap.SugaredLogger) ClientOption {
	return func(c *LocalClient) {
		if log != nil {
			c.log = log
		}
	}
}

func WithClientClock(now func() time.Time) ClientOption {
	return func(c *LocalClient) {
		if now != nil {
			c.now = now
		}
	}
}

func NewLocalClient(backend Backend, tokens TokenStore, opts ...ClientOption) *LocalClient {
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	c := &LocalClient{
		backend:   backend,
		tokens:    tokens,
		log:       zap.NewNop().Sugar(),
		now:       time.Now,
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnAuthStateChange registers fn and returns its unsubscribe func.
func (c *LocalClient) OnAuthStateChange(fn Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *LocalClient) emit(event Event, sess *Session) {
	c.mu.Lock()
	fns := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	c.log.Debugw("auth event", "event", event, "listeners", len(fns))
	for _, fn := range fns {
		fn(event, sess)
	}
}

// GetSession returns the stored session with a fresh user, refreshing the
// tokens when the access token expired. It returns nil, nil when signed out
// or when the stored tokens are no longer accepted.
func (c *LocalClient) GetSession(ctx context.Context) (*Session, error) {
	sess, err := c.tokens.Load(ctx)
	if err != nil || sess == nil {
		return nil, err
	}

	if sess.Expired(c.now()) {
		refreshed, err := c.backend.Refresh(ctx, sess.RefreshToken)
		if err != nil {
			return nil, c.dropRejected(ctx, err)
		}
		if err := c.tokens.Save(ctx, refreshed); err != nil {
			return nil, err
		}
		c.emit(EventTokenRefreshed, refreshed)
		return refreshed, nil
	}

	u, err := c.backend.User(ctx, sess.AccessToken)
	if err != nil {
		return nil, c.dropRejected(ctx, err)
	}
	sess.User = u
	return sess, nil
}

// dropRejected clears stored tokens the backend refused. Other errors pass through.
func (c *LocalClient) dropRejected(ctx context.Context, err error) error {
	if !errors.Is(err, apperr.ErrUnauthorized) {
		return err
	}
	c.log.Infow("stored session rejected", "error", err)
	return c.tokens.Clear(ctx)
}

func (c *LocalClient) SignIn(ctx context.Context, in models.SignInInput) (*Session, error) {
	sess, err := c.backend.SignIn(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := c.tokens.Save(ctx, sess); err != nil {
		return nil, err
	}
	c.emit(EventSignedIn, sess)
	return sess, nil
}

// SignUp registers and, when the backend returns a session, signs in.
func (c *LocalClient) SignUp(ctx context.Context, in models.RegisterInput) (*models.UserProfile, *Session, error) {
	u, sess, err := c.backend.SignUp(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return u, nil, nil
	}
	if err := c.tokens.Save(ctx, sess); err != nil {
		return nil, nil, err
	}
	c.emit(EventSignedIn, sess)
	return u, sess, nil
}

// SignOut always clears the local session and emits EventSignedOut. A backend
// failure to revoke the tokens is returned after that.
func (c *LocalClient) SignOut(ctx context.Context) error {
	sess, err := c.tokens.Load(ctx)
	if err != nil {
		c.log.Warnw("load session for sign-out", "error", err)
	}

	var revokeErr error
	if sess != nil {
		revokeErr = c.backend.SignOut(ctx, sess.AccessToken, sess.RefreshToken)
	}
	if err := c.tokens.Clear(ctx); err != nil {
		return err
	}
	c.emit(EventSignedOut, nil)
	return revokeErr
}

func (c *LocalClient) ResetPasswordForEmail(ctx context.Context, email string) error {
	return c.backend.RequestPasswordReset(ctx, email)
}

func (c *LocalClient) UpdatePassword(ctx context.Context, password string) (*Session, error) {
	sess, err := c.tokens.Load(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.NewUnauthorized("not signed in")
	}
	u, err := c.backend.UpdatePassword(ctx, sess.AccessToken, password)
	if err != nil {
		return nil, err
	}
	sess.User = u
	if err := c.tokens.Save(ctx, sess); err != nil {
		return nil, err
	}
	c.emit(EventUserUpdated, sess)
	return sess, nil
}
