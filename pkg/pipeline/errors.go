package pipeline

import (
	"github.com/pkg/errors"
)

var (
	// ErrStepsMissing is returned by New when any stage collaborator is nil.
	ErrStepsMissing = errors.New("every pipeline step must be set")

	// ErrNoProducts is returned when the association defines no products.
	ErrNoProducts = errors.New("association has no products")
)
