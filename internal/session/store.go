// Package session holds the client-side auth state: the current user and
// session, whether an auth call is in progress, and the last error. It is fed
// by the auth client's events and notifies subscribers on every change.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/robby3000/luxicle/cache"
	"github.com/robby3000/luxicle/internal/auth"
	"github.com/robby3000/luxicle/internal/models"
)

type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
	StatusError           Status = "error"
)

type State struct {
	Status    Status
	User      *models.UserProfile
	Session   *auth.Session
	IsLoading bool
	Err       error
}

// Client is the auth client the store listens to. *auth.LocalClient implements it.
type Client interface {
	GetSession(ctx context.Context) (*auth.Session, error)
	OnAuthStateChange(fn auth.Listener) func()
	SignIn(ctx context.Context, in models.SignInInput) (*auth.Session, error)
	SignUp(ctx context.Context, in models.RegisterInput) (*models.UserProfile, *auth.Session, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email string) error
}

var _ Client = (*auth.LocalClient)(nil)

type Store struct {
	client Client
	log    *zap.SugaredLogger

	mu          sync.Mutex
	state       State
	pending     int
	listeners   map[uint64]func(State)
	nextID      uint64
	started     bool
	unsubscribe func()
}

type Option func(*Store)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

func New(client Client, opts ...Option) *Store {
	s := &Store{
		client:    client,
		log:       zap.NewNop().Sugar(),
		state:     State{Status: StatusUninitialized},
		listeners: make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to auth events and performs the initial session fetch.
// Calling it again is a no-op.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.state.Status = StatusLoading
	s.state.IsLoading = true
	s.mu.Unlock()
	s.notify()

	unsubscribe := s.client.OnAuthStateChange(s.handleEvent)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	sess, err := s.client.GetSession(ctx)
	if err != nil {
		s.fail(err)
		return err
	}
	s.apply(sess)
	return nil
}

// Close stops listening to auth events. The last state stays readable.
func (s *Store) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Subscribe registers fn for every state change and returns its unsubscribe func.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID is the signed-in user's id, or "" when not authenticated.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != StatusAuthenticated || s.state.User == nil {
		return ""
	}
	return s.state.User.ID
}

// ReadGate enables user-dependent cached reads only while someone is signed in.
func (s *Store) ReadGate() cache.ReadOption {
	return cache.Enabled(s.UserID() != "")
}

func (s *Store) SignIn(ctx context.Context, in models.SignInInput) error {
	s.begin()
	defer s.end()

	sess, err := s.client.SignIn(ctx, in)
	if err != nil {
		s.setErr(err)
		return err
	}
	s.apply(sess)
	return nil
}

func (s *Store) SignUp(ctx context.Context, in models.RegisterInput) (*models.UserProfile, error) {
	s.begin()
	defer s.end()

	u, sess, err := s.client.SignUp(ctx, in)
	if err != nil {
		s.setErr(err)
		return nil, err
	}
	if sess != nil {
		s.apply(sess)
	}
	return u, nil
}

func (s *Store) ResetPassword(ctx context.Context, email string) error {
	s.begin()
	defer s.end()

	if err := s.client.ResetPasswordForEmail(ctx, email); err != nil {
		s.setErr(err)
		return err
	}
	return nil
}

// SignOut moves to unauthenticated even when the client fails to revoke the
// session remotely; that error is still returned.
func (s *Store) SignOut(ctx context.Context) error {
	err := s.client.SignOut(ctx)
	if err != nil {
		s.log.Warnw("sign-out failed remotely", "error", err)
	}
	s.apply(nil)
	return err
}

func (s *Store) handleEvent(event auth.Event, sess *auth.Session) {
	s.log.Debugw("auth event received", "event", event)
	switch event {
	case auth.EventSignedOut:
		s.apply(nil)
	case auth.EventSignedIn, auth.EventTokenRefreshed, auth.EventUserUpdated:
		if sess != nil {
			s.apply(sess)
		}
	}
}

// apply moves to authenticated for a session carrying a user and to
// unauthenticated otherwise.
func (s *Store) apply(sess *auth.Session) {
	s.mu.Lock()
	if sess != nil && sess.User != nil {
		s.state.Status = StatusAuthenticated
		s.state.Session = sess
		s.state.User = sess.User
	} else {
		s.state.Status = StatusUnauthenticated
		s.state.Session = nil
		s.state.User = nil
	}
	s.state.Err = nil
	s.state.IsLoading = s.pending > 0
	s.mu.Unlock()
	s.notify()
}

func (s *Store) fail(err error) {
	s.log.Warnw("session retrieval failed", "error", err)
	s.mu.Lock()
	s.state.Status = StatusError
	s.state.Session = nil
	s.state.User = nil
	s.state.Err = err
	s.state.IsLoading = false
	s.mu.Unlock()
	s.notify()
}

// setErr records a failed auth call without changing the status.
func (s *Store) setErr(err error) {
	s.mu.Lock()
	s.state.Err = err
	s.mu.Unlock()
}

func (s *Store) begin() {
	s.mu.Lock()
	s.pending++
	s.state.IsLoading = true
	s.mu.Unlock()
	s.notify()
}

func (s *Store) end() {
	s.mu.Lock()
	s.pending--
	s.state.IsLoading = s.pending > 0 && s.state.Status != StatusError
	s.mu.Unlock()
	s.notify()
}

func (s *Store) notify() {
	s.mu.Lock()
	state := s.state
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
