package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/auth"
	"github.com/robby3000/luxicle/internal/models"
)

type sessionResponse struct {
	User    *models.UserProfile `json:"user"`
	Session *auth.Session       `json:"session,omitempty"`
	Message string              `json:"message,omitempty"`
}

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var in models.SignInInput
	if err := c.BodyParser(&in); err != nil {
		return badBody()
	}
	sess, err := s.auth.SignIn(c.UserContext(), in)
	if err != nil {
		return err
	}
	s.setSessionCookies(c, sess)
	return c.JSON(sessionResponse{User: sess.User, Session: sess})
}

// Register handles POST /api/auth/register. The session is omitted when the
// email address must be confirmed first.
func (s *Server) Register(c *fiber.Ctx) error {
	var in models.RegisterInput
	if err := c.BodyParser(&in); err != nil {
		return badBody()
	}
	u, sess, err := s.auth.SignUp(c.UserContext(), in)
	if err != nil {
		return err
	}

	resp := sessionResponse{User: u, Session: sess, Message: "Registration successful"}
	if sess != nil {
		s.setSessionCookies(c, sess)
	} else {
		resp.Message = "Registration successful. Please check your email to confirm your account."
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Logout handles POST /api/auth/logout. Cookies are cleared even when revocation fails.
func (s *Server) Logout(c *fiber.Ctx) error {
	access := accessToken(c)
	refresh := c.Cookies(RefreshCookie)
	if refresh == "" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = c.BodyParser(&body)
		refresh = body.RefreshToken
	}

	s.clearSessionCookies(c)
	if err := s.auth.SignOut(c.UserContext(), access, refresh); err != nil {
		return &apperr.Error{Kind: apperr.KindInternal, Message: "sign out failed", Err: err}
	}
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// Session handles GET /api/auth/session. An expired access cookie is renewed
// from the refresh cookie.
func (s *Server) Session(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if token := currentAccessToken(c); token != "" {
		u, err := s.auth.User(ctx, token)
		if err != nil {
			return err
		}
		return c.JSON(sessionResponse{User: u, Session: &auth.Session{AccessToken: token, TokenType: "bearer"}})
	}

	refresh := c.Cookies(RefreshCookie)
	if refresh == "" {
		return apperr.NewUnauthorized("no active session")
	}
	sess, err := s.auth.Refresh(ctx, refresh)
	if err != nil {
		s.clearSessionCookies(c)
		return err
	}
	s.setSessionCookies(c, sess)
	return c.JSON(sessionResponse{User: sess.User, Session: sess})
}

// Refresh handles POST /api/auth/refresh; the token comes from the body or the cookie.
func (s *Server) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.BodyParser(&body)
	refresh := body.RefreshToken
	if refresh == "" {
		refresh = c.Cookies(RefreshCookie)
	}
	if refresh == "" {
		return apperr.NewValidation("refresh_token is required")
	}

	sess, err := s.auth.Refresh(c.UserContext(), refresh)
	if err != nil {
		return err
	}
	s.setSessionCookies(c, sess)
	return c.JSON(sessionResponse{User: sess.User, Session: sess})
}

// ResetPassword handles POST /api/auth/reset-password. The answer does not
// reveal whether the address is registered.
func (s *Server) ResetPassword(c *fiber.Ctx) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badBody()
	}
	if err := s.auth.RequestPasswordReset(c.UserContext(), body.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "If an account exists for that email, a reset link has been sent."})
}

// UpdatePassword handles POST /api/auth/update-password
func (s *Server) UpdatePassword(c *fiber.Ctx) error {
	var body struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badBody()
	}
	u, err := s.auth.UpdatePassword(c.UserContext(), currentAccessToken(c), body.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": u, "message": "Password updated"})
}

// OAuthRedirect handles GET /auth/oauth/:provider. The state and the
// post-login path ride in a short-lived cookie.
func (s *Server) OAuthRedirect(c *fiber.Ctx) error {
	provider := c.Params("provider")
	state := uuid.NewString()

	target, err := s.auth.AuthCodeURL(provider, state)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    strings.Join([]string{provider, state, safeNext(c.Query("next"))}, "|"),
		Path:     "/auth",
		Expires:  time.Now().Add(10 * time.Minute),
		HTTPOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect(target, fiber.StatusSeeOther)
}

// OAuthCallback handles GET /auth/callback?code&state&next
func (s *Server) OAuthCallback(c *fiber.Ctx) error {
	saved := c.Cookies(stateCookie)
	c.Cookie(&fiber.Cookie{Name: stateCookie, Path: "/auth", Expires: time.Unix(0, 0), MaxAge: -1, HTTPOnly: true})

	parts := strings.SplitN(saved, "|", 3)
	if len(parts) != 3 || c.Query("state") == "" || parts[1] != c.Query("state") || c.Query("error") != "" {
		s.log.Warnw("oauth callback rejected", "reason", "state mismatch or provider error", "provider_error", c.Query("error"))
		return s.redirectLoginError(c, "OAuth authentication failed")
	}
	provider, next := parts[0], parts[2]
	if q := c.Query("next"); q != "" {
		next = q
	}

	sess, err := s.auth.ExchangeCode(c.UserContext(), provider, c.Query("code"))
	if err != nil {
		s.log.Warnw("oauth exchange failed", "provider", provider, "error", err)
		return s.redirectLoginError(c, "OAuth authentication failed")
	}
	s.setSessionCookies(c, sess)
	return s.redirect(c, safeNext(next))
}

// Confirm handles GET /auth/confirm?token_hash&type&next
func (s *Server) Confirm(c *fiber.Ctx) error {
	tokenHash, typ := c.Query("token_hash"), c.Query("type")
	if tokenHash == "" || typ == "" {
		return s.redirectLoginError(c, "Invalid confirmation link")
	}

	sess, err := s.auth.VerifyOTP(c.UserContext(), typ, tokenHash)
	if err != nil {
		s.log.Warnw("email verification failed", "type", typ, "error", err)
		msg := "Could not verify email"
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.Kind != apperr.KindInternal && appErr.Kind != apperr.KindStore {
			msg = appErr.Message
		}
		return s.redirectLoginError(c, msg)
	}

	if typ == auth.OTPSignup {
		return s.redirect(c, loginPath+"?message=Email+confirmed+successfully.+Please+log+in.")
	}
	s.setSessionCookies(c, sess)
	return s.redirect(c, safeNext(c.Query("next")))
}
