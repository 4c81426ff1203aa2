package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"stagepass/internal/auth"
	"stagepass/internal/logger"
	"stagepass/internal/models"
	"stagepass/internal/utils"
)

type DBLayer interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	Taken(ctx context.Context, username, email string) (bool, error)
}

type TokenIssuer interface {
	Issue(user *models.User) (string, error)
}

const minPasswordLen = 6

type UserService struct {
	DB     DBLayer
	Tokens TokenIssuer
	Logger *logger.Logger
}

func NewUserService(store DBLayer, tokens TokenIssuer, log *logger.Logger) *UserService {
	return &UserService{DB: store, Tokens: tokens, Logger: log}
}

func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" || email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", models.ErrInvalidRequest)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", models.ErrInvalidRequest)
	}
	if len(req.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidRequest, minPasswordLen)
	}

	taken, err := s.DB.Taken(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: username or email already registered", models.ErrConflict)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           utils.GenerateID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Organizer:    req.Organizer,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.DB.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.Logger.Info("USERS", fmt.Sprintf("Registered user %s (organizer=%t)", user.Username, user.Organizer))
	return user, nil
}

// Login checks credentials and issues a session token. Unknown emails and
// wrong passwords produce the same error.
func (s *UserService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", models.ErrInvalidRequest)
	}

	badCredentials := fmt.Errorf("%w: invalid email or password", models.ErrInvalidRequest)

	user, err := s.DB.GetUserByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		s.Logger.LogSecurity("LOGIN_FAILED", "unknown email")
		return nil, badCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.Logger.LogSecurity("LOGIN_FAILED", fmt.Sprintf("bad password for %s", user.Username))
		return nil, badCredentials
	}

	token, err := s.Tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{
		Message:   "Login successful",
		Token:     token,
		Username:  user.Username,
		Organizer: user.Organizer,
	}, nil
}
