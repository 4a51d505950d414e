package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/pkg/testsupport"
)

// newProviderServer fakes a GitHub-style token and userinfo endpoint pair.
func newProviderServer(t *testing.T, user map[string]any) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"bad_verification_code"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "provider-token", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server) *Provider {
	return &Provider{
		Name: "github",
		Config: &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost:3000/auth/callback",
			Endpoint: oauth2.Endpoint{
				AuthURL:   srv.URL + "/authorize",
				TokenURL:  srv.URL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		UserInfoURL: srv.URL + "/user",
		Decode:      DecodeGitHub,
	}
}

func TestAuthCodeURL(t *testing.T) {
	srv := newProviderServer(t, nil)
	f := newFixture(t, nil, WithProvider(testProvider(srv)))

	raw, err := f.svc.AuthCodeURL("github", "state-123")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "state-123", u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))

	_, err = f.svc.AuthCodeURL("myspace", "s")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, []string{"github"}, f.svc.Providers())
}

func TestExchangeCodeCreatesUserOnce(t *testing.T) {
	ctx := context.Background()
	srv := newProviderServer(t, map[string]any{
		"login":      "Octo-Cat",
		"name":       "The Octocat",
		"email":      "octo@example.com",
		"avatar_url": "https://avatars.example.com/octo.png",
	})
	f := newFixture(t, nil, WithProvider(testProvider(srv)))

	sess, err := f.svc.ExchangeCode(ctx, "github", "good-code")
	require.NoError(t, err)
	assert.Equal(t, "octo_cat", sess.User.Username)
	assert.Equal(t, "The Octocat", sess.User.DisplayName)
	assert.NotNil(t, sess.User.EmailConfirmedAt)

	again, err := f.svc.ExchangeCode(ctx, "github", "good-code")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, again.User.ID)

	_, err = f.svc.ExchangeCode(ctx, "github", "bad-code")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.svc.ExchangeCode(ctx, "github", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestExchangeCodeMatchesExistingEmail(t *testing.T) {
	ctx := context.Background()
	srv := newProviderServer(t, map[string]any{"login": "someone-else", "email": "grace@example.com"})
	f := newFixture(t, nil, WithProvider(testProvider(srv)))
	users := testsupport.CreateUsers(t, f.store)

	sess, err := f.svc.ExchangeCode(ctx, "github", "good-code")
	require.NoError(t, err)
	assert.Equal(t, users[1].ID, sess.User.ID)
	assert.Equal(t, "grace_h", sess.User.Username)
}

func TestExchangeCodeResolvesUsernameClash(t *testing.T) {
	ctx := context.Background()
	srv := newProviderServer(t, map[string]any{"login": "ada", "email": "ada.lovelace@example.com"})
	f := newFixture(t, nil, WithProvider(testProvider(srv)))
	testsupport.CreateUsers(t, f.store)

	sess, err := f.svc.ExchangeCode(ctx, "github", "good-code")
	require.NoError(t, err)
	assert.NotEqual(t, "ada", sess.User.Username)
	assert.Regexp(t, `^ada_[0-9a-f]{4}$`, sess.User.Username)
}

func TestExchangeCodeWithoutEmail(t *testing.T) {
	srv := newProviderServer(t, map[string]any{"login": "private"})
	f := newFixture(t, nil, WithProvider(testProvider(srv)))

	_, err := f.svc.ExchangeCode(context.Background(), "github", "good-code")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestUsernameFrom(t *testing.T) {
	cases := []struct {
		id   Identity
		want string
	}{
		{Identity{Login: "Octo-Cat"}, "octo_cat"},
		{Identity{Email: "jane.doe@example.com"}, "jane_doe"},
		{Identity{Email: "x@example.com"}, "user_x"},
		{Identity{Login: "__weird__name__"}, "weird__name"},
		{Identity{Login: "a-very-long-login-name-that-keeps-going"}, "a_very_long_login_name_that_ke"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, usernameFrom(tc.id))
	}
}
