// Package router answers top-k queries across all tiers.
//
// Every tier is queried concurrently under one tier.View, so a record that is
// being migrated is seen exactly once. Hot tiers are served by a registered
// graph index of the query metric or, without one, by an exact scan of the
// vector store; archived batches are scanned exactly, bounded by
// Config.MaxScanSize. The per-tier lists are merged with a k-way heap by
// ascending distance and ascending id.
package router
