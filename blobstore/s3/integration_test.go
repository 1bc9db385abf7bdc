package s3

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/vectier/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrationStore(t *testing.T) {
	bucket := os.Getenv("VECTIER_TEST_S3_BUCKET")
	if bucket == "" {
		t.Skip("VECTIER_TEST_S3_BUCKET not set")
	}

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err)

	store := NewStore(awss3.NewFromConfig(cfg), bucket,
		WithPrefix(fmt.Sprintf("vectier-test-%d", time.Now().UnixNano())))

	data := make([]byte, 1<<20)
	_, _ = rand.Read(data)

	w, err := store.Create(ctx, "2020/batch-1")
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	defer func() { _ = store.Delete(ctx, "2020/batch-1") }()

	names, err := store.List(ctx, "2020/")
	require.NoError(t, err)
	assert.Equal(t, []string{"2020/batch-1"}, names)

	b, err := store.Open(ctx, "2020/batch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), b.Size())

	buf := make([]byte, 100)
	_, err = b.ReadAt(ctx, buf, 1024)
	require.NoError(t, err)
	assert.Equal(t, data[1024:1124], buf)

	_, err = store.Open(ctx, "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
