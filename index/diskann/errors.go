package diskann

import (
	"errors"

	"github.com/hupe1980/vectier/distance"
)

var (
	// ErrBuild is returned when Build receives insufficient or inconsistent input.
	ErrBuild = errors.New("diskann: build failed")

	// ErrNotFound is returned for ids unknown to the index or the vector source.
	ErrNotFound = errors.New("diskann: id not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("diskann: index is closed")

	// ErrInvalidK is returned for a non-positive k.
	ErrInvalidK = errors.New("diskann: k must be positive")

	// ErrDimensionMismatch is returned when a query has the wrong dimension.
	ErrDimensionMismatch = distance.ErrDimensionMismatch
)
