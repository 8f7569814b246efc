package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Sentinel errors raised inside transactional repository operations.
var (
	ErrCourseClosed    = errors.New("course is not active")
	ErrCourseFull      = errors.New("course capacity reached")
	ErrDuplicateActive = errors.New("an active row already exists")
	ErrAttemptLimit    = errors.New("attempt limit reached")
	ErrStaleState      = errors.New("row no longer in the expected state")
	ErrDeadlinePassed  = errors.New("deadline passed")

	ErrCapacityBelowActive = errors.New("capacity lower than active enrollments")
)

// IsUniqueViolation reports whether err comes from a unique index.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}
