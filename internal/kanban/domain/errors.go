package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrBoardNotFound   = errors.New("board not found")
	ErrColumnNotFound  = errors.New("column not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrCommentNotFound = errors.New("comment not found")
	ErrForbidden       = errors.New("not allowed")
	ErrProjectKeyTaken = errors.New("project key already exists")
	ErrCrossBoardMove  = errors.New("columns belong to different boards")
	ErrStaleSource     = errors.New("task is no longer in the source column")
	ErrWIPLimitReached = errors.New("destination column is at its WIP limit")
	ErrInvalidOrder    = errors.New("column order must be a permutation of the board's columns")
	ErrColumnNotEmpty  = errors.New("column still has tasks")
	ErrBoardArchived   = errors.New("board is archived")
	ErrValidation      = errors.New("validation failed")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
