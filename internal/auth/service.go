// Package auth authenticates consultants and issues access tokens.
package auth

import (
	"context"
	"time"

	"tripflow_backend/internal/consultants/repository"
	"tripflow_backend/platform/apperr"
	"tripflow_backend/platform/config"
	"tripflow_backend/platform/logger"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	opLogin = "auth.service.login"

	errInvalidCredentials = "invalid email or password"
)

// ConsultantDirectory resolves consultants by login email.
type ConsultantDirectory interface {
	GetByEmail(ctx context.Context, email string) (repository.Consultant, error)
}

// LoginResult carries the issued token and the authenticated consultant.
type LoginResult struct {
	AccessToken string                `json:"accessToken"`
	ExpiresAt   time.Time             `json:"expiresAt"`
	Consultant  repository.Consultant `json:"consultant"`
}

type Service struct {
	consultants ConsultantDirectory
	cfg         config.AuthServiceConfig
	log         *logger.Logger
	now         func() time.Time
}

func NewService(consultants ConsultantDirectory, cfg config.AuthServiceConfig, log *logger.Logger) *Service {
	return &Service{consultants: consultants, cfg: cfg, log: log, now: time.Now}
}

// Login verifies credentials and issues a signed access token. Unknown
// emails and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	consultant, err := s.consultants.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return LoginResult{}, apperr.Unauthorized(errInvalidCredentials).WithOp(opLogin)
		}
		return LoginResult{}, err
	}

	if !consultant.Active {
		return LoginResult{}, apperr.Unauthorized(errInvalidCredentials).WithOp(opLogin)
	}

	if bcrypt.CompareHashAndPassword([]byte(consultant.PasswordHash), []byte(password)) != nil {
		s.log.Warn("failed login attempt", "email", email)
		return LoginResult{}, apperr.Unauthorized(errInvalidCredentials).WithOp(opLogin)
	}

	expiresAt := s.now().Add(s.cfg.GetAccessTokenTTL())
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  consultant.ID.String(),
		"name": consultant.Name,
		"iat":  s.now().Unix(),
		"exp":  expiresAt.Unix(),
	})

	signed, err := token.SignedString([]byte(s.cfg.GetJWTAccessSecret()))
	if err != nil {
		return LoginResult{}, apperr.Internal("failed to sign access token").WithOp(opLogin)
	}

	return LoginResult{
		AccessToken: signed,
		ExpiresAt:   expiresAt,
		Consultant:  consultant,
	}, nil
}

// HashPassword produces a bcrypt hash for seeding and account management.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
