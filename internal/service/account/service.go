package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chessweb/internal/domain"
)

var (
	ErrUsernameRequired   = errors.New("username is required")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// MinPasswordLength is the smallest password Register accepts.
const MinPasswordLength = 8

type RegisterRequest struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

type Service struct {
	repo   Repository
	cost   int
	logger *zap.Logger
}

func NewService(repo Repository, bcryptCost int, logger *zap.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, cost: bcryptCost, logger: logger}, nil
}

// Register creates a new account. Usernames are case-insensitive unique.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if len(req.Password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.repo.Insert(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.logger.Info("account created", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Authenticate verifies the credentials and returns the matching user.
// Unknown usernames and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
