package vectier

import (
	"log/slog"

	"github.com/hupe1980/vectier/archive"
	"github.com/hupe1980/vectier/blobstore"
	"github.com/hupe1980/vectier/catalog"
	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/embed"
	"github.com/hupe1980/vectier/index/diskann"
	"github.com/hupe1980/vectier/internal/resource"
	"github.com/hupe1980/vectier/tier"
)

// DefaultBlockSize is the block granularity of the archive block cache.
const DefaultBlockSize = 64 << 10

type options struct {
	metric               distance.Metric
	indexConfig          diskann.Config
	catalog              catalog.Catalog
	classifier           tier.Classifier
	backend              tier.Backend
	embedder             embed.Embedder
	logger               *Logger
	metricsCollector     MetricsCollector
	limits               Limits
	maxScanSize          int
	maxCandidatesPerTier int
	batchSize            int
	codec                archive.Codec
	blockCacheBytes      int64
}

// Option configures New.
type Option func(*options)

func defaultOptions() options {
	return options{
		metric:      distance.MetricCosine,
		indexConfig: diskann.DefaultConfig(),
		classifier:  tier.YearClassifier,
		backend: tier.Backend{
			Kind:     tier.Local,
			Location: "memory://archive",
			Store:    blobstore.NewMemoryStore(),
		},
		metricsCollector: NoopMetricsCollector{},
		batchSize:        tier.DefaultBatchSize,
		codec:            archive.CodecLZ4,
	}
}

func applyOptions(optFns []Option) options {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	if o.catalog == nil {
		o.catalog = catalog.NewMemory()
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	return o
}

// WithDefaultMetric sets the metric of the per-tier indexes and the default
// metric of Search (default: cosine).
func WithDefaultMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithIndexConfig configures the per-tier DiskANN indexes.
func WithIndexConfig(cfg diskann.Config) Option {
	return func(o *options) {
		o.indexConfig = cfg
	}
}

// WithCatalog sets the catalog of archived batches (default: in-memory).
func WithCatalog(c catalog.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithClassifier sets the tier classifier (default: tier.YearClassifier).
func WithClassifier(c tier.Classifier) Option {
	return func(o *options) {
		if c != nil {
			o.classifier = c
		}
	}
}

// WithBackend sets the archival backend used by MigrateTier
// (default: an in-memory blob store).
func WithBackend(b tier.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithEmbedder enables InsertText and SearchText.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithLogLevel installs a text logger to stderr at level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// Limits bounds the resources used by background work and archive reads.
// Zero values mean unlimited, except BackgroundWorkers which defaults to 1.
type Limits struct {
	// MemoryBytes caps the memory used by the archive block cache.
	MemoryBytes int64
	// BackgroundWorkers caps concurrent migrations.
	BackgroundWorkers int64
	// IOBytesPerSec throttles archive writes and verification reads.
	IOBytesPerSec int64
}

// WithLimits configures resource limits.
func WithLimits(l Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithMaxScanSize bounds the archived records scanned per tier and query.
// Hitting the bound marks the result partial. Zero means unbounded.
func WithMaxScanSize(n int) Option {
	return func(o *options) {
		o.maxScanSize = n
	}
}

// WithMaxCandidatesPerTier caps the candidates requested from one tier
// (default: 1000).
func WithMaxCandidatesPerTier(n int) Option {
	return func(o *options) {
		o.maxCandidatesPerTier = n
	}
}

// WithBatchSize sets the number of records per archive batch.
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

// WithCodec sets the archive row-group codec (default: LZ4).
func WithCodec(c archive.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithBlockCache wraps the archival backend in an LRU block cache of the
// given capacity in bytes.
func WithBlockCache(capacity int64) Option {
	return func(o *options) {
		o.blockCacheBytes = capacity
	}
}

func (o options) resourceConfig() resource.Config {
	return resource.Config{
		MemoryLimitBytes:     o.limits.MemoryBytes,
		MaxBackgroundWorkers: o.limits.BackgroundWorkers,
		IOBytesPerSec:        o.limits.IOBytesPerSec,
	}
}
