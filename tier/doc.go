// Package tier partitions records into named tiers and moves cold tiers to
// archival storage.
//
// A Manager observes the vector store and keeps the set of hot ids of every
// tier. Migrate copies one tier to a blobstore.BlobStore in verified archive
// batches, publishes them in a catalog.Catalog and only then removes the
// records from the hot store:
//
//	mgr, _ := tier.NewManager(store, catalog.NewMemory())
//	report, err := mgr.Migrate(ctx, "2020", tier.Backend{
//		Kind:     tier.External,
//		Location: "s3://archive",
//		Store:    s3store,
//	})
//
// Readers that need a consistent view of hot and archived records hold a
// View while querying; a migrating record is visible in exactly one of the
// two places.
package tier
