package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
)

// Identity is what a provider's userinfo endpoint tells us about the user.
type Identity struct {
	Email     string
	Login     string
	Name      string
	AvatarURL string
}

// Provider is an OAuth authorization-code provider plus the endpoint that
// resolves a token to an Identity.
type Provider struct {
	Name        string
	Config      *oauth2.Config
	UserInfoURL string
	Decode      func(io.Reader) (Identity, error)
}

func GitHub(clientID, clientSecret, redirectURL string) *Provider {
	return &Provider{
		Name: "github",
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.GitHub,
			Scopes:       []string{"read:user", "user:email"},
		},
		UserInfoURL: "https://api.github.com/user",
		Decode:      DecodeGitHub,
	}
}

func Google(clientID, clientSecret, redirectURL string) *Provider {
	return &Provider{
		Name: "google",
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		Decode:      DecodeGoogle,
	}
}

func DecodeGitHub(r io.Reader) (Identity, error) {
	var body struct {
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return Identity{}, err
	}
	return Identity{Email: body.Email, Login: body.Login, Name: body.Name, AvatarURL: body.AvatarURL}, nil
}

func DecodeGoogle(r io.Reader) (Identity, error) {
	var body struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return Identity{}, err
	}
	if !body.EmailVerified {
		return Identity{}, errors.New("google email is not verified")
	}
	return Identity{Email: body.Email, Name: body.Name, AvatarURL: body.Picture}, nil
}

// Providers lists the registered provider names.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

func (s *Service) provider(name string) (*Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, apperr.NewValidation(fmt.Sprintf("unknown oauth provider %q", name))
	}
	return p, nil
}

// AuthCodeURL is the provider URL the browser is redirected to.
func (s *Service) AuthCodeURL(provider, state string) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}
	return p.Config.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// ExchangeCode completes the authorization-code flow. The user is matched by
// email and created on first sign-in.
func (s *Service) ExchangeCode(ctx context.Context, provider, code string) (*Session, error) {
	p, err := s.provider(provider)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, apperr.NewValidation("code is required")
	}

	tok, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindUnauthorized, Message: "oauth code exchange failed", Err: err}
	}

	id, err := s.fetchIdentity(ctx, p, tok)
	if err != nil {
		return nil, err
	}
	u, err := s.oauthUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Infow("oauth sign-in", "provider", p.Name, "user_id", u.ID)
	return s.issue(ctx, u)
}

func (s *Service) fetchIdentity(ctx context.Context, p *Provider, tok *oauth2.Token) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return Identity{}, apperr.NewInternal(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Config.Client(ctx, tok).Do(req)
	if err != nil {
		return Identity{}, &apperr.Error{Kind: apperr.KindTransport, Message: "oauth provider unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, apperr.NewUnauthorized(fmt.Sprintf("oauth userinfo returned %d", resp.StatusCode))
	}
	id, err := p.Decode(resp.Body)
	if err != nil {
		return Identity{}, &apperr.Error{Kind: apperr.KindUnauthorized, Message: "oauth userinfo rejected", Err: err}
	}
	if id.Email == "" {
		return Identity{}, apperr.NewUnauthorized("oauth provider did not return an email address")
	}
	return id, nil
}

const maxUsernameAttempts = 5

func (s *Service) oauthUser(ctx context.Context, id Identity) (*models.UserProfile, error) {
	u, err := s.users.GetUserByEmail(ctx, id.Email)
	if err == nil {
		if u.EmailConfirmedAt == nil {
			return s.users.ConfirmEmail(ctx, u.ID)
		}
		return u, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	base := usernameFrom(id)
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		username := base
		if attempt > 0 {
			username = fmt.Sprintf("%.25s_%s", base, uuid.NewString()[:4])
		}
		now := s.now().UTC()
		u, err = s.users.CreateUserProfile(ctx, &models.UserProfile{
			Email:            id.Email,
			Username:         username,
			DisplayName:      id.Name,
			AvatarURL:        id.AvatarURL,
			EmailConfirmedAt: &now,
		})
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}
	}
	return nil, err
}

var usernameInvalid = regexp.MustCompile(`[^a-z0-9_]+`)

// usernameFrom derives a valid username from the provider login or the
// email's local part.
func usernameFrom(id Identity) string {
	raw := id.Login
	if raw == "" {
		raw, _, _ = strings.Cut(id.Email, "@")
	}
	name := strings.Trim(usernameInvalid.ReplaceAllString(strings.ToLower(raw), "_"), "_")
	if len(name) > 30 {
		name = name[:30]
	}
	if len(name) < 3 {
		name = "user_" + name
	}
	return name
}
