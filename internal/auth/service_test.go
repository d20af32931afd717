package auth

import (
	"context"
	"testing"
	"time"

	"tripflow_backend/internal/consultants/repository"
	"tripflow_backend/platform/apperr"
	"tripflow_backend/platform/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type fakeDirectory struct {
	consultants map[string]repository.Consultant
}

func (f *fakeDirectory) GetByEmail(_ context.Context, email string) (repository.Consultant, error) {
	c, ok := f.consultants[email]
	if !ok {
		return repository.Consultant{}, apperr.NotFound("consultant not found")
	}
	return c, nil
}

type stubAuthConfig struct{}

func (stubAuthConfig) GetJWTAccessSecret() string      { return "test-secret" }
func (stubAuthConfig) GetAccessTokenTTL() time.Duration { return time.Hour }

func newTestAuth(t *testing.T, active bool) (*Service, repository.Consultant) {
	t.Helper()

	hash, err := HashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	consultant := repository.Consultant{
		ID:           uuid.New(),
		Name:         "Paula",
		Email:        "paula@example.com",
		PasswordHash: hash,
		Active:       active,
	}

	dir := &fakeDirectory{consultants: map[string]repository.Consultant{consultant.Email: consultant}}
	return NewService(dir, stubAuthConfig{}, logger.New("development")), consultant
}

func TestLoginIssuesTokenWithConsultantClaims(t *testing.T) {
	svc, consultant := newTestAuth(t, true)

	result, err := svc.Login(context.Background(), "paula@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(result.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("issued token does not parse: %v", err)
	}

	if claims["sub"] != consultant.ID.String() {
		t.Fatalf("expected sub %s, got %v", consultant.ID, claims["sub"])
	}
	if claims["name"] != "Paula" {
		t.Fatalf("expected name claim, got %v", claims["name"])
	}
	if result.Consultant.PasswordHash != "" && result.Consultant.ID != consultant.ID {
		t.Fatal("unexpected consultant in result")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestAuth(t, true)

	_, err := svc.Login(context.Background(), "paula@example.com", "wrong")
	if !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	svc, _ := newTestAuth(t, true)

	_, err := svc.Login(context.Background(), "nobody@example.com", "correct-horse-battery")
	if !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLoginInactiveConsultant(t *testing.T) {
	svc, _ := newTestAuth(t, false)

	_, err := svc.Login(context.Background(), "paula@example.com", "correct-horse-battery")
	if !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
