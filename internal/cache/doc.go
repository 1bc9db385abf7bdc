// Package cache provides a byte-bounded LRU cache for immutable blocks read
// from archival blob stores.
//
// Keys identify a block by blob name and block-aligned offset. Cached slices
// are shared and must be treated as read-only. Memory for cached blocks is
// optionally charged against a resource.Controller; when the controller
// refuses a reservation the block is simply not cached.
package cache
