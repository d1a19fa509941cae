// Package faceerr defines the error kinds shared by the index, the stores and the match services.
// Callers test for them with errors.Is; context is added with fmt.Errorf("...: %w").
package faceerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a malformed request: empty vector, k <= 0, unreadable image.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDimensionMismatch reports a vector whose length differs from the configured dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrNotFound reports a missing image or face.
	ErrNotFound = errors.New("not found")
	// ErrOutOfRange reports a threshold outside its accepted band.
	ErrOutOfRange = errors.New("out of range")
	// ErrIndexUnavailable reports that no index snapshot has been loaded or built.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrAlreadyExists reports a duplicate face or image id.
	ErrAlreadyExists = errors.New("already exists")
)

// ErrNoEmbedding is returned when a face or image yields no usable embedding.
var ErrNoEmbedding = fmt.Errorf("%w: no embedding could be computed", ErrInvalidArgument)

// Dimension builds a DimensionMismatch error carrying the observed and expected lengths.
func Dimension(got, want int) error {
	return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, got, want)
}
