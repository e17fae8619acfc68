package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ValidationError lists every rule the input broke.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, ", ")
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

var ErrPostNotFound = &NotFoundError{Resource: "Post"}

// translate maps store errors onto the service taxonomy.
func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrPostNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &ValidationError{Problems: []string{"Duplicate field value. Please use another value"}}
	}
	var nf *NotFoundError
	var ve *ValidationError
	if errors.As(err, &nf) || errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
