package vectier

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/embed"
	"github.com/hupe1980/vectier/index/diskann"
	"github.com/hupe1980/vectier/router"
	"github.com/hupe1980/vectier/tier"
	"github.com/hupe1980/vectier/vectorstore"
)

var (
	// ErrNotFound is returned for ids that are neither hot nor archived.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when inserting an id that is already stored.
	ErrAlreadyExists = errors.New("already exists")

	// ErrDimensionMismatch matches every *DimensionMismatchError.
	ErrDimensionMismatch = distance.ErrDimensionMismatch

	// ErrBuild is returned when an index cannot be built from the given records.
	ErrBuild = errors.New("index build failed")

	// ErrEmbeddingUnavailable is returned when the embedder fails.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrMigrationPartialFailure is returned with a report listing the ids
	// that stayed hot.
	ErrMigrationPartialFailure = errors.New("migration partially failed")

	// ErrIndexDegraded is advisory: recall may be reduced until the index is
	// repaired. It never fails a query; see Result.Advisory.
	ErrIndexDegraded = errors.New("index degraded")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("db closed")

	// ErrNoEmbedder is returned by text operations without a configured embedder.
	ErrNoEmbedder = errors.New("no embedder configured")
)

// DimensionMismatchError indicates a vector of the wrong length.
//
// The original underlying error can be accessed via errors.Unwrap.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	cause    error
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return e.cause }

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *distance.DimensionMismatchError
	if errors.As(err, &dm) {
		return &DimensionMismatchError{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	switch {
	case errors.Is(err, vectorstore.ErrNotFound),
		errors.Is(err, tier.ErrNotFound),
		errors.Is(err, diskann.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, diskann.ErrBuild):
		return fmt.Errorf("%w: %w", ErrBuild, err)
	case errors.Is(err, embed.ErrUnavailable), errors.Is(err, embed.ErrEmptyInput):
		return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	case errors.Is(err, tier.ErrMigrationPartialFailure):
		return fmt.Errorf("%w: %w", ErrMigrationPartialFailure, err)
	case errors.Is(err, router.ErrInvalidK), errors.Is(err, diskann.ErrInvalidK):
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	case errors.Is(err, diskann.ErrClosed), errors.Is(err, tier.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return err
}
