// Package auth registers users, issues access tokens and resolves the
// authenticated user of a request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atmx/college-market/internal/httpapi"
	"github.com/atmx/college-market/internal/model"
	"github.com/atmx/college-market/internal/store"
)

// DefaultStartingBalance is credited to every new account, in cents.
const DefaultStartingBalance = 1_000_000

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20,alphanum"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        *model.User `json:"user"`
}

// Service implements registration, login and token resolution.
type Service struct {
	store           store.Store
	jwt             JWT
	startingBalance int64
	hashCost        int
}

// Option configures a Service.
type Option func(*Service)

// WithHashCost sets the bcrypt cost for new password hashes. Zero keeps
// bcrypt.DefaultCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// NewService creates an auth service. A non-positive startingBalance falls
// back to DefaultStartingBalance.
func NewService(st store.Store, j JWT, startingBalance int64, opts ...Option) *Service {
	if startingBalance <= 0 {
		startingBalance = DefaultStartingBalance
	}
	s := &Service{store: st, jwt: j, startingBalance: startingBalance}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account with the starting balance. Username and
// email are stored lower-cased, so both are unique regardless of case.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := httpapi.Validate(&req); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password, s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		Username:       req.Username,
		Email:          req.Email,
		HashedPassword: hash,
		Balance:        s.startingBalance,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	slog.Info("user registered", "user", u.ID, "username", u.Username)
	return u, nil
}

// Login checks the credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))

	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(u.HashedPassword, req.Password) {
		return nil, model.ErrInvalidCredentials
	}

	token, expiresAt, err := s.jwt.Sign(u.ID, u.Username)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		User:        u,
	}, nil
}

// Authenticate verifies a bearer token and returns the user ID it names.
func (s *Service) Authenticate(token string) (int64, error) {
	claims, err := s.jwt.Verify(token)
	if err != nil {
		return 0, model.ErrInvalidToken
	}
	id, err := claims.UserID()
	if err != nil {
		return 0, model.ErrInvalidToken
	}
	return id, nil
}

// Me returns the user behind an authenticated request.
func (s *Service) Me(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.ErrInvalidToken
		}
		return nil, err
	}
	return u, nil
}
