package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenConfig holds signing secrets and lifetimes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// AuthService covers registration, login and the caller's own profile.
type AuthService interface {
	Register(ctx context.Context, payload dto.RegisterRequest) (dto.UserResponse, error)
	Login(ctx context.Context, payload dto.LoginRequest) (dto.TokenResponse, error)
	Refresh(ctx context.Context, payload dto.RefreshRequest) (dto.TokenResponse, error)
	Profile(ctx context.Context, principal policy.Principal) (dto.UserResponse, error)
	UpdateProfile(ctx context.Context, principal policy.Principal, payload dto.ProfileUpdateRequest) (dto.UserResponse, error)
}

type authService struct {
	users     repository.UserRepository
	validator *validator.Validate
	tokens    TokenConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAuthService wires the authentication service.
func NewAuthService(users repository.UserRepository, validate *validator.Validate, tokens TokenConfig, logger zerolog.Logger) AuthService {
	if tokens.AccessTTL <= 0 {
		tokens.AccessTTL = 15 * time.Minute
	}
	if tokens.RefreshTTL <= 0 {
		tokens.RefreshTTL = 7 * 24 * time.Hour
	}
	return &authService{
		users:     users,
		validator: validate,
		tokens:    tokens,
		logger:    logger.With().Str("component", "auth_service").Logger(),
		now:       time.Now,
	}
}

func (s *authService) Register(ctx context.Context, payload dto.RegisterRequest) (dto.UserResponse, error) {
	if err := validate(s.validator, payload); err != nil {
		return dto.UserResponse{}, err
	}

	role := models.RoleStudent
	if payload.Role != "" {
		role = models.ParseRole(payload.Role)
	}
	if role == models.RoleAdmin || role == "" {
		return dto.UserResponse{}, validationError("role must be student or teacher")
	}

	user, err := prepareUser(ctx, s.users, payload.Username, payload.Email, payload.Password)
	if err != nil {
		return dto.UserResponse{}, err
	}
	user.FirstName = strings.TrimSpace(payload.FirstName)
	user.LastName = strings.TrimSpace(payload.LastName)
	user.Phone = strings.TrimSpace(payload.Phone)
	user.DateOfBirth = payload.DateOfBirth
	user.Role = role

	if err := s.users.Create(ctx, &user); err != nil {
		if isDuplicate(err) {
			return dto.UserResponse{}, ErrUserExists
		}
		return dto.UserResponse{}, unexpected("create user", err)
	}

	s.logger.Info().Uint("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	return dto.NewUserResponse(user), nil
}

// prepareUser checks uniqueness and hashes the password. Shared with admin account creation.
func prepareUser(ctx context.Context, users repository.UserRepository, username, email, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	exists, err := users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return models.User{}, unexpected("check user exists", err)
	}
	if exists {
		return models.User{}, ErrUserExists
	}

	hash, err := hashPassword(password)
	if err != nil {
		return models.User{}, unexpected("hash password", err)
	}

	return models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}, nil
}

func (s *authService) Login(ctx context.Context, payload dto.LoginRequest) (dto.TokenResponse, error) {
	if err := validate(s.validator, payload); err != nil {
		return dto.TokenResponse{}, err
	}

	user, err := s.users.GetByLogin(ctx, strings.TrimSpace(payload.Username))
	if err != nil {
		err = translateNotFound(err, ErrInvalidCredentials)
		if errors.Is(err, ErrInvalidCredentials) {
			return dto.TokenResponse{}, err
		}
		return dto.TokenResponse{}, unexpected("load user", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.Password)) != nil {
		s.logger.Warn().Uint("user_id", user.ID).Msg("login rejected: bad password")
		return dto.TokenResponse{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return dto.TokenResponse{}, ErrAccountInactive
	}

	now := s.now()
	user.LastLoginAt = &now
	if user.NormalizeRole() {
		if err := s.users.Update(ctx, &user); err != nil {
			return dto.TokenResponse{}, unexpected("normalise superuser role", err)
		}
	} else if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to record last login")
	}

	return s.issueTokens(user)
}

func (s *authService) Refresh(ctx context.Context, payload dto.RefreshRequest) (dto.TokenResponse, error) {
	if err := validate(s.validator, payload); err != nil {
		return dto.TokenResponse{}, err
	}

	claims, err := ParseToken(payload.RefreshToken, s.tokens.RefreshSecret, TokenTypeRefresh)
	if err != nil {
		return dto.TokenResponse{}, ErrInvalidToken
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return dto.TokenResponse{}, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, uint(userID))
	if err != nil {
		err = translateNotFound(err, ErrInvalidToken)
		if errors.Is(err, ErrInvalidToken) {
			return dto.TokenResponse{}, err
		}
		return dto.TokenResponse{}, unexpected("load user", err)
	}
	if !user.IsActive {
		return dto.TokenResponse{}, ErrAccountInactive
	}

	return s.issueTokens(user)
}

func (s *authService) Profile(ctx context.Context, principal policy.Principal) (dto.UserResponse, error) {
	user, err := s.loadSelf(ctx, principal)
	if err != nil {
		return dto.UserResponse{}, err
	}
	if user.NormalizeRole() {
		if err := s.users.Update(ctx, &user); err != nil {
			return dto.UserResponse{}, unexpected("normalise superuser role", err)
		}
	}
	return dto.NewUserResponse(user), nil
}

func (s *authService) UpdateProfile(ctx context.Context, principal policy.Principal, payload dto.ProfileUpdateRequest) (dto.UserResponse, error) {
	if err := validate(s.validator, payload); err != nil {
		return dto.UserResponse{}, err
	}

	user, err := s.loadSelf(ctx, principal)
	if err != nil {
		return dto.UserResponse{}, err
	}

	if payload.FirstName != nil {
		user.FirstName = strings.TrimSpace(*payload.FirstName)
	}
	if payload.LastName != nil {
		user.LastName = strings.TrimSpace(*payload.LastName)
	}
	if payload.Phone != nil {
		user.Phone = strings.TrimSpace(*payload.Phone)
	}
	if payload.Address != nil {
		user.Address = strings.TrimSpace(*payload.Address)
	}
	if payload.Bio != nil {
		user.Bio = strings.TrimSpace(*payload.Bio)
	}
	if payload.DateOfBirth != nil {
		user.DateOfBirth = payload.DateOfBirth
	}

	if err := s.users.Update(ctx, &user); err != nil {
		return dto.UserResponse{}, unexpected("update profile", err)
	}
	return dto.NewUserResponse(user), nil
}

func (s *authService) loadSelf(ctx context.Context, principal policy.Principal) (models.User, error) {
	if !principal.Authenticated() {
		return models.User{}, permissionError("authentication required")
	}
	user, err := s.users.GetByID(ctx, principal.ID)
	if err != nil {
		return models.User{}, unexpected("load user", translateNotFound(err, ErrUserNotFound))
	}
	return user, nil
}

func (s *authService) issueTokens(user models.User) (dto.TokenResponse, error) {
	now := s.now()
	accessExpiry := now.Add(s.tokens.AccessTTL)

	access, err := signToken(user, TokenTypeAccess, s.tokens.AccessSecret, now, accessExpiry)
	if err != nil {
		return dto.TokenResponse{}, unexpected("sign access token", err)
	}
	refresh, err := signToken(user, TokenTypeRefresh, s.tokens.RefreshSecret, now, now.Add(s.tokens.RefreshTTL))
	if err != nil {
		return dto.TokenResponse{}, unexpected("sign refresh token", err)
	}

	return dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExpiry,
		User:         dto.NewUserResponse(user),
	}, nil
}

// TokenClaims is the JWT payload issued by the service.
type TokenClaims struct {
	Role string `json:"role"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

func signToken(user models.User, tokenType, secret string, issuedAt, expiresAt time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is empty")
	}
	claims := TokenClaims{
		Role: string(user.Role),
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies an HS256 token and checks its type claim.
func ParseToken(raw, secret, expectedType string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Type != expectedType {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, repository.ErrDuplicateActive) || repository.IsUniqueViolation(err)
}
