package cli

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/vectier"
	"github.com/hupe1980/vectier/archive"
	"github.com/hupe1980/vectier/blobstore"
	"github.com/hupe1980/vectier/blobstore/minio"
	"github.com/hupe1980/vectier/blobstore/s3"
	"github.com/hupe1980/vectier/catalog"
	"github.com/hupe1980/vectier/catalog/bolt"
	"github.com/hupe1980/vectier/catalog/dynamo"
	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/embed"
	"github.com/hupe1980/vectier/index/diskann"
	"github.com/hupe1980/vectier/internal/config"
	"github.com/hupe1980/vectier/tier"
)

// openDB builds a DB from cfg. The returned closer releases the DB and any
// catalog handle.
func openDB(ctx context.Context, cfg *config.Config) (*vectier.DB, func() error, error) {
	metric, err := distance.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, nil, err
	}
	codec, err := archive.ParseCodec(cfg.Archive.Codec)
	if err != nil {
		return nil, nil, err
	}

	backend, err := openBackend(ctx, cfg.Archive)
	if err != nil {
		return nil, nil, fmt.Errorf("archive backend: %w", err)
	}

	cat, closeCatalog, err := openCatalog(ctx, cfg.Catalog)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: %w", err)
	}

	embedder, err := openEmbedder(cfg)
	if err != nil {
		_ = closeCatalog()
		return nil, nil, err
	}

	idx := diskann.DefaultConfig()
	idx.MaxDegree = cfg.Index.MaxDegree
	idx.SearchListSize = cfg.Index.SearchListSize
	idx.Alpha = float32(cfg.Index.Alpha)
	idx.DegradedRatio = cfg.Index.DegradedRatio
	idx.AutoRepair = cfg.Index.AutoRepair

	db, err := vectier.New(cfg.Dimension,
		vectier.WithDefaultMetric(metric),
		vectier.WithIndexConfig(idx),
		vectier.WithBackend(backend),
		vectier.WithCatalog(cat),
		vectier.WithEmbedder(embedder),
		vectier.WithCodec(codec),
		vectier.WithBatchSize(cfg.Archive.BatchSize),
		vectier.WithBlockCache(cfg.Archive.BlockCacheBytes),
		vectier.WithMaxScanSize(cfg.Archive.MaxScanSize),
		vectier.WithLimits(vectier.Limits{
			MemoryBytes:       cfg.Limits.MemoryBytes,
			BackgroundWorkers: cfg.Limits.BackgroundWorkers,
			IOBytesPerSec:     cfg.Limits.IOBytesPerSec,
		}),
		vectier.WithLogger(&vectier.Logger{Logger: logger}),
	)
	if err != nil {
		_ = closeCatalog()
		return nil, nil, err
	}

	return db, func() error {
		return errors.Join(db.Close(), closeCatalog())
	}, nil
}

func openBackend(ctx context.Context, ac config.ArchiveConfig) (tier.Backend, error) {
	switch ac.Backend {
	case "memory":
		return tier.Backend{Kind: tier.Local, Location: "memory://archive", Store: blobstore.NewMemoryStore()}, nil
	case "local":
		return tier.Backend{Kind: tier.Local, Location: "file://" + ac.Path, Store: blobstore.NewLocalStore(ac.Path)}, nil
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return tier.Backend{}, err
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if ac.Endpoint != "" {
				o.BaseEndpoint = &ac.Endpoint
				o.UsePathStyle = true
			}
		})
		return tier.Backend{
			Kind:     tier.External,
			Location: "s3://" + ac.Bucket + "/" + ac.Prefix,
			Store:    s3.NewStore(client, ac.Bucket, s3.WithPrefix(ac.Prefix)),
		}, nil
	case "minio":
		client, err := miniogo.New(ac.Endpoint, &miniogo.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: ac.UseSSL,
		})
		if err != nil {
			return tier.Backend{}, err
		}
		return tier.Backend{
			Kind:     tier.External,
			Location: "minio://" + ac.Endpoint + "/" + ac.Bucket + "/" + ac.Prefix,
			Store:    minio.NewStore(client, ac.Bucket, ac.Prefix),
		}, nil
	default:
		return tier.Backend{}, fmt.Errorf("unknown backend %q", ac.Backend)
	}
}

func openCatalog(ctx context.Context, cc config.CatalogConfig) (catalog.Catalog, func() error, error) {
	noop := func() error { return nil }

	switch cc.Kind {
	case "memory":
		return catalog.NewMemory(), noop, nil
	case "bolt":
		c, err := bolt.Open(cc.Path)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, err
		}
		return dynamo.New(dynamodb.NewFromConfig(awsCfg), cc.Table), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog %q", cc.Kind)
	}
}

func openEmbedder(cfg *config.Config) (embed.Embedder, error) {
	switch cfg.Embeddings.Provider {
	case "hashing":
		return embed.NewHashing(cfg.Dimension), nil
	case "openai":
		oc := cfg.Embeddings.OpenAI
		if oc.APIKey == "" {
			return nil, errors.New("embeddings.openai.api_key or OPENAI_API_KEY is required")
		}
		opts := []embed.OpenAIOption{
			embed.WithModel(oc.Model),
			embed.WithDimension(cfg.Dimension),
		}
		if oc.BaseURL != "" {
			opts = append(opts, embed.WithBaseURL(oc.BaseURL))
		}
		return embed.NewOpenAI(oc.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Embeddings.Provider)
	}
}
