package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Role identifies the access tier of a user account.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	default:
		return false
	}
}

// ParseRole normalises free-form role input. Unknown values yield an empty role.
func ParseRole(value string) Role {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return ""
	}
	return role
}

// User is an account of any role. Superusers are always admins.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	FirstName    string     `gorm:"size:150" json:"first_name"`
	LastName     string     `gorm:"size:150" json:"last_name"`
	Phone        string     `gorm:"size:20" json:"phone"`
	Address      string     `gorm:"type:text" json:"address"`
	Bio          string     `gorm:"type:text" json:"bio"`
	DateOfBirth  *time.Time `json:"date_of_birth"`
	Role         Role       `gorm:"size:16;index;not null" json:"role"`
	IsSuperuser  bool       `gorm:"not null" json:"is_superuser"`
	IsActive     bool       `gorm:"not null;index" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NormalizeRole coerces superusers to the admin role and reports whether anything changed.
func (u *User) NormalizeRole() bool {
	if u.IsSuperuser && u.Role != RoleAdmin {
		u.Role = RoleAdmin
		return true
	}
	return false
}

// BeforeSave keeps the superuser invariant on every insert and update.
func (u *User) BeforeSave(_ *gorm.DB) error {
	u.NormalizeRole()
	return nil
}

// FullName joins first and last name, falling back to the username.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}
