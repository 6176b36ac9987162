package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrMalformedQuery         = fmt.Errorf("malformed query: %w", ErrInvalidInput)
	ErrStrategyUnavailable    = errors.New("retrieval strategy unavailable")
	ErrAllStrategiesFailed    = errors.New("no documents could be searched")
	ErrClassificationFallback = errors.New("query analysis unavailable")
	ErrGeneration             = errors.New("answer generation failed")
	ErrTemporary              = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
