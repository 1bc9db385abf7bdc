package diskann

import (
	"io"
	"log/slog"
)

const (
	// DefaultMaxDegree is the default max out-degree (R).
	DefaultMaxDegree = 64
	// DefaultSearchListSize is the default search list size (L).
	DefaultSearchListSize = 100
	// DefaultAlpha is the default pruning factor.
	DefaultAlpha = 1.2
	// DefaultDegradedRatio is the tombstone ratio above which the index degrades.
	DefaultDegradedRatio = 0.1
	// DefaultMaxVisited caps the nodes visited by a single search.
	DefaultMaxVisited = 50_000

	// ctx is checked every ctxCheckInterval graph expansions.
	ctxCheckInterval = 64
	// ctx is checked every buildCheckInterval records during Build and scans.
	buildCheckInterval = 1000
)

// Config configures an Index.
type Config struct {
	// MaxDegree is the max out-degree of a node (default: 64).
	MaxDegree int
	// SearchListSize is the default beam width for insert and search (default: 100).
	SearchListSize int
	// Alpha is the RobustPrune diversity factor (default: 1.2).
	Alpha float32
	// MaxVisited bounds the visited set of a single search (default: 50000).
	MaxVisited int
	// DegradedRatio is the tombstone fraction that moves the index to Degraded (default: 0.1).
	DegradedRatio float64
	// AutoRepair starts a background Repair when the index degrades.
	AutoRepair bool
	// Logger receives index events (default: discard).
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDegree:      DefaultMaxDegree,
		SearchListSize: DefaultSearchListSize,
		Alpha:          DefaultAlpha,
		MaxVisited:     DefaultMaxVisited,
		DegradedRatio:  DefaultDegradedRatio,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxDegree <= 0 {
		c.MaxDegree = DefaultMaxDegree
	}
	if c.SearchListSize <= 0 {
		c.SearchListSize = DefaultSearchListSize
	}
	if c.Alpha <= 0 {
		c.Alpha = DefaultAlpha
	}
	if c.MaxVisited <= 0 {
		c.MaxVisited = DefaultMaxVisited
	}
	if c.DegradedRatio <= 0 {
		c.DegradedRatio = DefaultDegradedRatio
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}
