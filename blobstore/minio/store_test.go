package minio

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/hupe1980/vectier/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyMapping(t *testing.T) {
	s := NewStore(nil, "bucket", "/vectier/")
	assert.Equal(t, "vectier/2020/b1", s.key("2020/b1"))
	assert.Equal(t, "2020/b1", s.name("vectier/2020/b1"))

	bare := NewStore(nil, "bucket", "")
	assert.Equal(t, "2020/b1", bare.key("2020/b1"))
	assert.Equal(t, "2020/b1", bare.name("2020/b1"))
}

func TestReadAtBounds(t *testing.T) {
	b := &blob{size: 4}
	ctx := context.Background()

	n, err := b.ReadAt(ctx, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = b.ReadAt(ctx, make([]byte, 1), 4)
	assert.ErrorIs(t, err, io.EOF)

	_, err = b.ReadAt(ctx, make([]byte, 1), -1)
	assert.Error(t, err)
}

func TestIntegrationStore(t *testing.T) {
	endpoint := os.Getenv("VECTIER_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("VECTIER_TEST_MINIO_ENDPOINT not set")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(
			os.Getenv("VECTIER_TEST_MINIO_ACCESS_KEY"),
			os.Getenv("VECTIER_TEST_MINIO_SECRET_KEY"), ""),
	})
	require.NoError(t, err)

	ctx := context.Background()
	bucket := "vectier-test"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, fmt.Sprintf("run-%d", time.Now().UnixNano()))

	require.NoError(t, store.Put(ctx, "2020/b1", []byte("hello minio")))

	w, err := store.Create(ctx, "2020/b2")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	names, err := store.List(ctx, "2020/")
	require.NoError(t, err)
	assert.Equal(t, []string{"2020/b1", "2020/b2"}, names)

	b, err := store.Open(ctx, "2020/b1")
	require.NoError(t, err)
	all, err := blobstore.ReadAll(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "hello minio", string(all))

	require.NoError(t, store.Delete(ctx, "2020/b1"))
	require.NoError(t, store.Delete(ctx, "2020/b2"))

	_, err = store.Open(ctx, "2020/b1")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
