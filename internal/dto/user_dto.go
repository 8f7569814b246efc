package dto

import (
	"time"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// RegisterRequest is the self-service sign-up payload. Only student and teacher roles are accepted.
type RegisterRequest struct {
	Username    string     `json:"username" validate:"required,min=3,max=150,alphanum"`
	Email       string     `json:"email" validate:"required,email"`
	Password    string     `json:"password" validate:"required,min=8,max=72"`
	FirstName   string     `json:"first_name" validate:"omitempty,max=150"`
	LastName    string     `json:"last_name" validate:"omitempty,max=150"`
	Role        string     `json:"role" validate:"omitempty,oneof=student teacher"`
	Phone       string     `json:"phone" validate:"omitempty,max=20"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

// LoginRequest carries credentials.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest exchanges a refresh token for a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenResponse is returned after a successful login or refresh.
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         UserResponse `json:"user"`
}

// UserCreateRequest lets admins create accounts of any role.
type UserCreateRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=150,alphanum"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	FirstName   string `json:"first_name" validate:"omitempty,max=150"`
	LastName    string `json:"last_name" validate:"omitempty,max=150"`
	Role        string `json:"role" validate:"required,oneof=admin teacher student"`
	IsSuperuser bool   `json:"is_superuser"`
	Phone       string `json:"phone" validate:"omitempty,max=20"`
}

// UserUpdateRequest is the admin partial update payload.
type UserUpdateRequest struct {
	Email       *string `json:"email" validate:"omitempty,email"`
	FirstName   *string `json:"first_name" validate:"omitempty,max=150"`
	LastName    *string `json:"last_name" validate:"omitempty,max=150"`
	Role        *string `json:"role" validate:"omitempty,oneof=admin teacher student"`
	IsSuperuser *bool   `json:"is_superuser"`
	IsActive    *bool   `json:"is_active"`
	Phone       *string `json:"phone" validate:"omitempty,max=20"`
}

// ProfileUpdateRequest lets a user edit their own contact details.
type ProfileUpdateRequest struct {
	FirstName   *string    `json:"first_name" validate:"omitempty,max=150"`
	LastName    *string    `json:"last_name" validate:"omitempty,max=150"`
	Phone       *string    `json:"phone" validate:"omitempty,max=20"`
	Address     *string    `json:"address" validate:"omitempty,max=1000"`
	Bio         *string    `json:"bio" validate:"omitempty,max=2000"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

// UserListRequest filters the admin user listing.
type UserListRequest struct {
	Page     int
	PageSize int
	Role     string
	IsActive *bool
	Search   string
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID          uint       `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	FullName    string     `json:"full_name"`
	Role        string     `json:"role"`
	IsSuperuser bool       `json:"is_superuser"`
	IsActive    bool       `json:"is_active"`
	Phone       string     `json:"phone"`
	Address     string     `json:"address"`
	Bio         string     `json:"bio"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// UserListResponse wraps a paginated user listing.
type UserListResponse struct {
	Items      []UserResponse `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// NewUserResponse converts a user model into a DTO.
func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		FullName:    user.FullName(),
		Role:        string(user.Role),
		IsSuperuser: user.IsSuperuser,
		IsActive:    user.IsActive,
		Phone:       user.Phone,
		Address:     user.Address,
		Bio:         user.Bio,
		DateOfBirth: user.DateOfBirth,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
}
