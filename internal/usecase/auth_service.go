package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"foodrun/internal/domain"
	"foodrun/internal/session"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type UserRepo interface {
	PutUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
}

type AuthService struct {
	Repo      UserRepo
	JWTSecret string
	TTL       time.Duration
	Now       func() time.Time
}

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Address     string `json:"address"`
	Description string `json:"description"`
	OpeningTime string `json:"openingTime"`
	ClosingTime string `json:"closingTime"`
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, *session.Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !strings.Contains(email, "@") {
		return nil, nil, ErrBadRequest("invalid email")
	}
	if len(in.Password) < 6 {
		return nil, nil, ErrBadRequest("password must be at least 6 characters")
	}
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return nil, nil, ErrBadRequest(err.Error())
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(in.Name),
		Role:         role,
		Address:      in.Address,
		Description:  in.Description,
		OpeningTime:  in.OpeningTime,
		ClosingTime:  in.ClosingTime,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.PutUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, nil, ErrConflict("email already registered")
		}
		return nil, nil, err
	}
	sess, err := session.Issue(s.JWTSecret, u.ID, u.Email, u.Role, s.TTL, now)
	if err != nil {
		return nil, nil, err
	}
	return u, sess, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, *session.Session, error) {
	u, err := s.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, ErrUnauthorized("invalid email or password")
	}
	if err != nil {
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrUnauthorized("invalid email or password")
	}
	sess, err := session.Issue(s.JWTSecret, u.ID, u.Email, u.Role, s.TTL, s.now())
	if err != nil {
		return nil, nil, err
	}
	return u, sess, nil
}

func (s *AuthService) Verify(token string) (*session.Session, error) {
	return session.Parse(token, s.JWTSecret, time.Now())
}

func (s *AuthService) ListRestaurants(ctx context.Context) ([]domain.User, error) {
	return s.Repo.ListUsersByRole(ctx, domain.RoleKitchen)
}
