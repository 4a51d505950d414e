package server

import (
	"errors"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"

	"github.com/robby3000/luxicle/cache"
	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/auth"
)

const (
	AccessCookie  = "luxicle-access-token"
	RefreshCookie = "luxicle-refresh-token"
	stateCookie   = "luxicle-oauth-state"

	localUserID      = "userID"
	localAccessToken = "accessToken"

	loginPath = "/auth/login"
)

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details validation.Errors `json:"details,omitempty"`
}

// handleError is the fiber ErrorHandler. Application errors map to statuses by
// kind; 5xx bodies never carry the cause.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	resp := errorResponse{Code: string(apperr.KindOf(err))}
	status := apperr.HTTPStatus(err)

	var (
		fe     *fiber.Error
		appErr *apperr.Error
	)
	switch {
	case errors.As(err, &fe):
		status = fe.Code
		resp.Error = fe.Message
		resp.Code = codeForStatus(fe.Code)
	case errors.Is(err, cache.ErrDisabled):
		status = fiber.StatusUnauthorized
		resp.Error = "authentication required"
		resp.Code = string(apperr.KindUnauthorized)
	case errors.As(err, &appErr):
		resp.Error = appErr.Error()
		if appErr.Kind == apperr.KindValidation {
			var fields validation.Errors
			if errors.As(appErr.Err, &fields) {
				resp.Error = appErr.Message
				resp.Details = fields
			}
		}
	default:
		resp.Error = err.Error()
	}

	if status >= fiber.StatusInternalServerError {
		s.log.Errorw("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err,
		)
		if appErr == nil || appErr.Kind != apperr.KindTransport {
			resp.Error = "internal server error"
		} else {
			resp.Error = "service temporarily unavailable"
		}
	}
	return c.Status(status).JSON(resp)
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return string(apperr.KindNotFound)
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
		return string(apperr.KindValidation)
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	default:
		return "HTTP_ERROR"
	}
}

func badBody() error {
	return apperr.NewValidation("invalid request body")
}

// accessToken prefers the Authorization header and falls back to the session cookie.
func accessToken(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Cookies(AccessCookie)
}

func currentUserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func currentAccessToken(c *fiber.Ctx) string {
	tok, _ := c.Locals(localAccessToken).(string)
	return tok
}

func (s *Server) setSessionCookies(c *fiber.Ctx, sess *auth.Session) {
	c.Cookie(&fiber.Cookie{
		Name:     AccessCookie,
		Value:    sess.AccessToken,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HTTPOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookie,
		Value:    sess.RefreshToken,
		Path:     "/",
		Expires:  time.Now().Add(s.cfg.RefreshTTL),
		HTTPOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookies(c *fiber.Ctx) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HTTPOnly: true,
			Secure:   s.cfg.SecureCookies,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
}

// safeNext keeps redirects on this site: only absolute paths are accepted.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.ContainsAny(next, `\`) {
		return "/"
	}
	return next
}

// redirect sends the browser to path on the site origin.
func (s *Server) redirect(c *fiber.Ctx, path string) error {
	return c.Redirect(s.cfg.SiteURL+path, fiber.StatusSeeOther)
}

func (s *Server) redirectLoginError(c *fiber.Ctx, msg string) error {
	return s.redirect(c, loginPath+"?"+url.Values{"error": {msg}}.Encode())
}
