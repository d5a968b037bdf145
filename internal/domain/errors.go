package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateID matches any *DuplicateIDError
	ErrDuplicateID = errors.New("duplicate id")
	// ErrNotFound matches any *NotFoundError
	ErrNotFound = errors.New("not found")
)

// DuplicateIDError is returned when a city id is registered twice
type DuplicateIDError struct {
	ID CityID
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("city %q already exists", e.ID)
}

// Is lets errors.Is match ErrDuplicateID
func (e *DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateID
}

// NotFoundError names the city ids that were referenced but never declared
type NotFoundError struct {
	IDs []CityID
}

func (e *NotFoundError) Error() string {
	quoted := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	if len(quoted) == 1 {
		return fmt.Sprintf("city %s not found", quoted[0])
	}
	return fmt.Sprintf("cities %s not found", strings.Join(quoted, ", "))
}

// Is lets errors.Is match ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
