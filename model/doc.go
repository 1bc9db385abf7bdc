// Package model defines the core data types shared by the store, the index,
// the tier manager and the query router.
package model
