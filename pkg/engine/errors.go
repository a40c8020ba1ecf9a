package engine

import (
	"errors"
	"fmt"

	"momentum-hq/engine/pkg/rules"
	"momentum-hq/engine/pkg/store"
)

var (
	// ErrNotFound is returned when a learner, streak or task does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// translate maps store and classifier errors onto the engine's sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, rules.ErrValidation):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return err
	}
}
