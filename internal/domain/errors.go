package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrUpstream   = errors.New("upstream request failed")
	ErrValidation = errors.New("invalid input")
)

// InvalidStateError is returned when a snipe operation does not apply to the snipe's current status.
type InvalidStateError struct {
	Op     string
	Status SnipeStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s snipe in status %q", e.Op, e.Status)
}
