// Package catalog records which archived batches exist for each tier and
// which ids in each batch are still visible.
//
// Migration publishes one Entry per verified batch. Promotion of archived
// records back into the hot store hides their ids instead of rewriting the
// batch, so batches stay immutable. Implementations live in this package
// (Memory) and in the bolt and dynamo subpackages.
package catalog
