package config

// Default configuration values
const (
	DefaultDimension = 128
	DefaultMetric    = "cosine"

	// Index defaults
	DefaultMaxDegree      = 64
	DefaultSearchListSize = 100
	DefaultAlpha          = 1.2
	DefaultDegradedRatio  = 0.1

	// Archive defaults
	DefaultArchiveBackend = "memory"
	DefaultArchivePath    = "./vectier-archive"
	DefaultArchivePrefix  = "vectier"
	DefaultCodec          = "lz4"
	DefaultBatchSize      = 1000

	// Catalog defaults
	DefaultCatalogKind  = "memory"
	DefaultCatalogPath  = "./vectier-catalog.db"
	DefaultCatalogTable = "vectier-catalog"

	// Embedding defaults
	DefaultEmbeddingProvider = "hashing"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)
