package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrCategoryExists        = errors.New("category already exists")
	ErrCategoryInUse         = errors.New("category is in use")
	ErrNoAlternativeCategory = errors.New("no other category to move expenses to")
	ErrNoActiveUser          = errors.New("no active user")
	ErrInvalidInput          = errors.New("invalid input")
)

// CategoryInUseError blocks deleting a category without a migration target.
// Default categories always need one, even when nothing refers to them.
type CategoryInUseError struct {
	Count         int
	Default       bool
	NoAlternative bool
}

func (e *CategoryInUseError) Error() string {
	if e.Count == 0 && e.Default {
		return "default category needs a migration target"
	}
	return fmt.Sprintf("category is used by %d expenses", e.Count)
}

func (e *CategoryInUseError) Is(target error) bool {
	return target == ErrCategoryInUse
}

func (e *CategoryInUseError) Unwrap() error {
	if e.NoAlternative {
		return ErrNoAlternativeCategory
	}
	return nil
}

// translate maps storage errors onto service errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrCategoryExists
	}
	return err
}
