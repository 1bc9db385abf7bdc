package tier

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vectier/blobstore"
	"github.com/hupe1980/vectier/model"
)

var (
	// ErrMigrationPartialFailure is returned with a report when some ids could
	// not be archived. Those ids stay in the hot store.
	ErrMigrationPartialFailure = errors.New("tier: migration partially failed")
	// ErrUnknownTier is returned for a tier the manager has never seen.
	ErrUnknownTier = errors.New("tier: unknown tier")
	// ErrNoBackend is returned when migrating without a blob store.
	ErrNoBackend = errors.New("tier: backend has no blob store")
	// ErrNotFound is returned when an id is not archived.
	ErrNotFound = errors.New("tier: record not archived")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("tier: manager closed")
)

// BackendKind tells where a tier's data lives.
type BackendKind int

const (
	// Local data lives in process memory or on local disk.
	Local BackendKind = iota
	// External data lives in object storage.
	External
)

func (k BackendKind) String() string {
	switch k {
	case Local:
		return "local"
	case External:
		return "external"
	default:
		return fmt.Sprintf("BackendKind(%d)", int(k))
	}
}

// Backend describes the storage of a tier.
type Backend struct {
	Kind BackendKind
	// Location is a human readable address such as "s3://bucket/prefix".
	// It identifies the backend in catalog entries.
	Location string
	// Store holds the archive batches. It is nil for hot-only tiers.
	Store blobstore.BlobStore
}

// Mode tells how a tier can be queried.
type Mode int

const (
	// QueryableDirect tiers are served by an index or the hot store.
	QueryableDirect Mode = iota
	// ScanOnly tiers are served by scanning archive batches.
	ScanOnly
)

func (m Mode) String() string {
	switch m {
	case QueryableDirect:
		return "queryable-directly"
	case ScanOnly:
		return "scan-only"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Tier is a named partition of records bound to a storage backend.
type Tier struct {
	ID      model.TierID
	Backend Backend
	Mode    Mode
	// Archived is set once a migration left no hot records in the tier.
	Archived bool
}

// MigrationReport summarizes a Migrate or ReclassifyBoundary run.
type MigrationReport struct {
	Tier       model.TierID
	RunID      string
	MovedCount int
	// FailedIDs could not be copied or verified, or changed while being
	// migrated. They stay in the hot store.
	FailedIDs []model.ID
	Batches   int
	Bytes     int64
}
