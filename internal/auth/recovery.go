package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
)

// Verification types carried by emailed links.
const (
	OTPSignup   = "signup"
	OTPEmail    = "email"
	OTPRecovery = "recovery"
)

var passwordRules = []validation.Rule{
	validation.Required.Error("password is required"),
	validation.Length(8, 72).Error("password must be at least 8 characters long"),
}

func (s *Service) link(path string, q url.Values) string {
	return strings.TrimRight(s.cfg.SiteURL, "/") + path + "?" + q.Encode()
}

func (s *Service) sendConfirmation(ctx context.Context, u *models.UserProfile) error {
	token := uuid.NewString()
	if err := s.redis.Set(ctx, confirmKey(token), u.ID, s.cfg.ConfirmTTL).Err(); err != nil {
		return redisErr(err)
	}
	link := s.link("/auth/confirm", url.Values{"token_hash": {token}, "type": {OTPSignup}, "next": {"/"}})
	return s.mailer.Send(ctx, Mail{
		To:      u.Email,
		Subject: "Confirm your Luxicle account",
		Body:    fmt.Sprintf("Welcome to Luxicle, %s. Confirm your email address: %s", u.Username, link),
	})
}

// RequestPasswordReset mails a recovery link. Unknown addresses succeed
// silently so the endpoint cannot be used to discover which accounts exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.Validate(email, validation.Required.Error("email is required"), is.EmailFormat.Error("invalid email format")); err != nil {
		return apperr.WrapValidation(validation.Errors{"email": err})
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		s.log.Debugw("password reset for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	token := uuid.NewString()
	if err := s.redis.Set(ctx, resetKey(token), u.ID, s.cfg.ResetTTL).Err(); err != nil {
		return redisErr(err)
	}
	link := s.link("/auth/confirm", url.Values{"token_hash": {token}, "type": {OTPRecovery}, "next": {"/reset-password"}})
	if err := s.mailer.Send(ctx, Mail{
		To:      u.Email,
		Subject: "Reset your Luxicle password",
		Body:    "Follow this link to choose a new password: " + link,
	}); err != nil {
		return apperr.NewInternal(err)
	}
	s.log.Infow("password reset requested", "user_id", u.ID)
	return nil
}

// VerifyOTP consumes an emailed token and signs the user in. Signup and email
// tokens also confirm the address.
func (s *Service) VerifyOTP(ctx context.Context, typ, tokenHash string) (*Session, error) {
	if tokenHash == "" {
		return nil, apperr.NewValidation("token_hash is required")
	}

	var key string
	switch typ {
	case OTPSignup, OTPEmail:
		key = confirmKey(tokenHash)
	case OTPRecovery:
		key = resetKey(tokenHash)
	default:
		return nil, apperr.NewValidation("unsupported verification type")
	}

	userID, err := s.redis.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.NewUnauthorized("verification link is invalid or has expired")
	}
	if err != nil {
		return nil, redisErr(err)
	}

	var u *models.UserProfile
	if typ == OTPRecovery {
		u, err = s.users.GetUserProfile(ctx, userID)
	} else {
		u, err = s.users.ConfirmEmail(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	s.log.Infow("verification accepted", "user_id", u.ID, "type", typ)
	return s.issue(ctx, u)
}

// UpdatePassword sets a new password for the user behind accessToken.
func (s *Service) UpdatePassword(ctx context.Context, accessToken, password string) (*models.UserProfile, error) {
	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if err := validation.Validate(password, passwordRules...); err != nil {
		return nil, apperr.WrapValidation(validation.Errors{"password": err})
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, apperr.NewInternal(err)
	}
	if err := s.users.SetPassword(ctx, claims.Subject, hash); err != nil {
		return nil, err
	}
	s.log.Infow("password updated", "user_id", claims.Subject)
	return s.users.GetUserProfile(ctx, claims.Subject)
}
