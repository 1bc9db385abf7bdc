// Package vectier is a tiered vector-similarity engine.
//
// A DB keeps fixed-dimension vectors in a sharded in-memory store, indexes
// every hot tier with a DiskANN-style graph and moves cold tiers to archival
// object storage without losing queryability. Queries fan out over all tiers
// and are merged by ascending distance, ties by ascending id.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := vectier.New(768)
//	defer db.Close()
//
//	_ = db.Insert(ctx, 1, vec, time.Now())
//	res, _ := db.Search(ctx, query, 10)
//	for _, r := range res.Results {
//	    fmt.Println(r.ID, r.Distance, r.Tier)
//	}
//
// # Tiers
//
// Records are assigned to tiers by a classifier, by default the UTC year of
// their creation time. A tier is moved to the archival backend with
//
//	report, err := db.MigrateTier(ctx, "2020")
//
// Archived records are still returned by Search through an exact scan of the
// archive batches. Migration verifies every copy before removing the hot
// record, so a failed migration never loses data:
//
//	if errors.Is(err, vectier.ErrMigrationPartialFailure) {
//	    log.Println("still hot:", report.FailedIDs)
//	}
//
// # Archival Backends
//
//	store := s3.NewStore(client, "my-bucket", s3.WithPrefix("archive"))
//	db, _ := vectier.New(768, vectier.WithBackend(tier.Backend{
//	    Kind:     tier.External,
//	    Location: "s3://my-bucket/archive",
//	    Store:    store,
//	}), vectier.WithCatalog(dynamoCatalog), vectier.WithBlockCache(64<<20))
//
// # Text Search
//
//	db, _ := vectier.New(1536, vectier.WithEmbedder(embed.NewOpenAI(apiKey)))
//	res, err := db.SearchText(ctx, "tiered storage", 5)
//
// Embedding failures surface as ErrEmbeddingUnavailable and are never retried.
package vectier
