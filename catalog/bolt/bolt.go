// Package bolt persists the archive catalog in a local bbolt database.
//
// Each tier is a nested bucket below "tiers"; keys are batch names and
// values msgpack-encoded entries.
package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/vectier/catalog"
	"github.com/hupe1980/vectier/model"
	"go.etcd.io/bbolt"
)

var bucketTiers = []byte("tiers")

// Catalog implements catalog.Catalog on bbolt.
type Catalog struct {
	db *bbolt.DB
}

var _ catalog.Catalog = (*Catalog)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Catalog, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTiers)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) Put(ctx context.Context, e catalog.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := catalog.Validate(e); err != nil {
		return err
	}

	data, err := catalog.Encode(e)
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketTiers).CreateBucketIfNotExists([]byte(e.Tier))
		if err != nil {
			return err
		}
		if b.Get([]byte(e.Batch)) != nil {
			return catalog.ErrExists
		}
		return b.Put([]byte(e.Batch), data)
	})
}

func (c *Catalog) Entries(ctx context.Context, tier model.TierID) ([]catalog.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []catalog.Entry
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTiers).Bucket([]byte(tier))
		if b == nil {
			return nil
		}
		// Cursor order is byte order of the batch names.
		return b.ForEach(func(k, v []byte) error {
			e, err := catalog.Decode(v)
			if err != nil {
				return fmt.Errorf("bolt: batch %s: %w", k, err)
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Catalog) Hide(ctx context.Context, tier model.TierID, batch string, ids []model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTiers).Bucket([]byte(tier))
		if b == nil {
			return catalog.ErrNotFound
		}
		v := b.Get([]byte(batch))
		if v == nil {
			return catalog.ErrNotFound
		}

		e, err := catalog.Decode(v)
		if err != nil {
			return err
		}
		catalog.HideIDs(&e, ids)

		data, err := catalog.Encode(e)
		if err != nil {
			return err
		}
		return b.Put([]byte(batch), data)
	})
}

func (c *Catalog) Tiers(ctx context.Context) ([]model.TierID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []model.TierID
	err := c.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketTiers)
		return root.ForEach(func(k, v []byte) error {
			// Nested buckets have nil values.
			if v != nil {
				return nil
			}
			if first, _ := root.Bucket(k).Cursor().First(); first != nil {
				out = append(out, model.TierID(k))
			}
			return nil
		})
	})
	return out, err
}
