// Package archive implements the columnar batch format used for migrated
// tiers.
//
// A batch file is laid out as
//
//	header | row group 0 | ... | row group n-1 | footer | trailer
//
// The header records the format version, codec, vector dimension and tier.
// Each row group stores up to RowGroupRows records column by column (ids,
// created, updated, vectors), compressed as a single block with LZ4 or ZSTD.
// The footer is a directory with one entry per row group: its offset, stored
// length, row count, first and last id and an xxhash64 checksum of the stored
// bytes. The fixed-size trailer locates the footer and checksums it.
//
// Records are written in ascending id order, so a lookup by id is a binary
// search over the directory followed by one ranged read of a single row
// group. Vector bits are preserved exactly.
package archive
