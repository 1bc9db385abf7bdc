package archive

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vectier/distance"
)

var (
	// ErrCorrupt is returned when a batch fails structural validation.
	ErrCorrupt = errors.New("archive: corrupt batch")
	// ErrChecksum is returned when stored bytes do not match their checksum.
	// It wraps ErrCorrupt.
	ErrChecksum = fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	// ErrNotFound is returned when a batch does not contain an id.
	ErrNotFound = errors.New("archive: id not found")
	// ErrUnsorted is returned when records are appended out of id order.
	ErrUnsorted = errors.New("archive: ids must be strictly ascending")
	// ErrClosed is returned when using a closed writer.
	ErrClosed = errors.New("archive: writer closed")
	// ErrDimensionMismatch is returned for vectors of the wrong length.
	ErrDimensionMismatch = distance.ErrDimensionMismatch
)
