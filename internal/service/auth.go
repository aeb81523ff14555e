package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dockhive/dockhive/internal/apperror"
	"github.com/dockhive/dockhive/internal/auth"
	"github.com/dockhive/dockhive/internal/mail"
	"github.com/dockhive/dockhive/internal/model"
	"github.com/dockhive/dockhive/internal/repository"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
	minPasswordLength = 8
)

// AuthService handles signup, email verification and login.
//
// Every failure a caller could use to probe for accounts (unknown user,
// wrong password, unverified account) collapses into the same generic
// Unauthorized at login.
type AuthService struct {
	users          repository.UserRepository
	codes          repository.VerificationCodeRepository
	ipLogs         repository.IPLogRepository
	tokens         *auth.TokenService
	passwords      *auth.PasswordService
	mailer         mail.Mailer
	baseURL        string
	allowedDomains []string
	logger         *slog.Logger
}

// NewAuthService creates an AuthService. baseURL is used to build
// verification links; allowedDomains restricts signup emails, empty meaning
// unrestricted.
func NewAuthService(
	users repository.UserRepository,
	codes repository.VerificationCodeRepository,
	ipLogs repository.IPLogRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mailer mail.Mailer,
	baseURL string,
	allowedDomains []string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:          users,
		codes:          codes,
		ipLogs:         ipLogs,
		tokens:         tokens,
		passwords:      passwords,
		mailer:         mailer,
		baseURL:        baseURL,
		allowedDomains: allowedDomains,
		logger:         logger,
	}
}

// Signup registers a new, unverified user and emails a verification link.
//
// The verification code is a signed token with a one-hour expiry; storing it
// in the codes table is what limits redemption to exactly once. The emailed
// link carries the code base64-encoded so it survives URL handling.
func (s *AuthService) Signup(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if err := s.validateSignup(username, email, password); err != nil {
		return err
	}

	taken, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return fmt.Errorf("checking username %s: %w", username, err)
	}
	if taken {
		return apperror.Conflict("user", username)
	}

	taken, err = s.users.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("checking email: %w", err)
	}
	if taken {
		return apperror.Conflict("email", email)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password for %s: %w", username, err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Verified:     false,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return fmt.Errorf("creating user %s: %w", username, err)
	}

	code, err := s.tokens.Issue(user.Username, auth.VerificationTTL)
	if err != nil {
		return fmt.Errorf("issuing verification code for %s: %w", username, err)
	}
	if err := s.codes.InsertCode(ctx, &model.VerificationCode{Code: code, Username: user.Username}); err != nil {
		return fmt.Errorf("storing verification code for %s: %w", username, err)
	}

	link := fmt.Sprintf("%s/api/verify?code=%s", s.baseURL, base64.URLEncoding.EncodeToString([]byte(code)))
	body := fmt.Sprintf(
		`<html><body><h1>Verify your account</h1><p>Click the link below to verify your email address. The link expires in one hour.</p><p><a href=%q>Verify email</a></p></body></html>`,
		link,
	)
	if err := s.mailer.Send(email, "Your verification email", body); err != nil {
		return fmt.Errorf("sending verification mail for %s: %w", username, err)
	}

	s.logger.Info("user signed up", slog.String("username", user.Username))

	return nil
}

// Verify redeems a base64-encoded verification code: the code must still be
// in the store, must validate as an unexpired token, and is consumed exactly
// once. All failure modes are the same generic validation error.
func (s *AuthService) Verify(ctx context.Context, encodedCode string) error {
	invalid := apperror.ValidationFailed("code", "invalid or expired verification code")

	if encodedCode == "" {
		return invalid
	}

	decoded, err := base64.URLEncoding.DecodeString(encodedCode)
	if err != nil {
		// Older links used standard encoding.
		decoded, err = base64.StdEncoding.DecodeString(encodedCode)
		if err != nil {
			return invalid
		}
	}
	code := string(decoded)

	exists, err := s.codes.Exists(ctx, code)
	if err != nil {
		return fmt.Errorf("checking verification code: %w", err)
	}
	if !exists {
		return invalid
	}

	username, err := s.tokens.Validate(code)
	if err != nil {
		return invalid
	}

	if err := s.users.MarkVerified(ctx, username); err != nil {
		return fmt.Errorf("marking %s verified: %w", username, err)
	}

	if err := s.codes.Consume(ctx, code); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// Lost the race with a concurrent redemption.
			return invalid
		}
		return fmt.Errorf("consuming verification code: %w", err)
	}

	s.logger.Info("user verified", slog.String("username", username))

	return nil
}

// LoginResult bundles the authenticated user and their bearer token.
type LoginResult struct {
	User  *model.User
	Token string
}

// Login authenticates by username or email plus password and issues a
// session token. Unverified accounts are blocked here, before any lifecycle
// operation is reachable. The caller's address is recorded in the ip log.
func (s *AuthService) Login(ctx context.Context, identifier, password, remoteIP string) (*LoginResult, error) {
	denied := apperror.Unauthorized("invalid username/email or password")

	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return nil, denied
	}

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, denied
		}
		return nil, fmt.Errorf("looking up user %s: %w", identifier, err)
	}

	if !user.Verified {
		return nil, denied
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, denied
	}

	if remoteIP != "" {
		if err := s.ipLogs.Record(ctx, user.Username, remoteIP); err != nil {
			// Login still succeeds; the log is best effort.
			s.logger.Warn("recording login ip failed",
				slog.String("username", user.Username),
				slog.String("error", err.Error()))
		}
	}

	token, err := s.tokens.Issue(user.Username, auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing session token for %s: %w", user.Username, err)
	}

	s.logger.Info("user logged in", slog.String("username", user.Username))

	return &LoginResult{User: user, Token: token}, nil
}

func (s *AuthService) validateSignup(username, email, password string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be between %d and %d characters", minUsernameLength, maxUsernameLength))
	}
	for _, r := range username {
		if r > 127 {
			return apperror.ValidationFailed("username", "username must be ASCII")
		}
	}
	if len(password) < minPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(s.allowedDomains) > 0 {
		at := strings.LastIndex(email, "@")
		if at < 0 {
			return apperror.ValidationFailed("email", "invalid email address")
		}
		domain := email[at+1:]
		allowed := false
		for _, d := range s.allowedDomains {
			if domain == d {
				allowed = true
				break
			}
		}
		if !allowed {
			return apperror.ValidationFailed("email", "email domain is not accepted")
		}
	}
	return nil
}
