package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/vectier/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.HeadObjectOutput)
	return out, args.Error(1)
}

func (m *mockClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *mockClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockClient) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func (m *mockClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

func (m *mockClient) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.UploadPartOutput)
	return out, args.Error(1)
}

func (m *mockClient) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.CreateMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *mockClient) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.CompleteMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *mockClient) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.AbortMultipartUploadOutput)
	return out, args.Error(1)
}

func TestStoreOpen(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", WithPrefix("vectier/"))
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
			return *in.Bucket == "bucket" && *in.Key == "vectier/missing"
		})).Return(nil, &types.NotFound{}).Once()

		_, err := store.Open(ctx, "missing")
		assert.True(t, errors.Is(err, blobstore.ErrNotFound))
	})

	t.Run("Found", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
			return *in.Key == "vectier/2020/batch-1"
		})).Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(100)}, nil).Once()

		b, err := store.Open(ctx, "2020/batch-1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), b.Size())
		require.NoError(t, b.Close())
	})

	client.AssertExpectations(t)
}

func TestBlobReadAt(t *testing.T) {
	client := new(mockClient)
	b := &blob{client: client, bucket: "b", key: "k", size: 10}
	ctx := context.Background()

	t.Run("Full", func(t *testing.T) {
		client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return *in.Range == "bytes=0-4"
		})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("hello"))}, nil).Once()

		buf := make([]byte, 5)
		n, err := b.ReadAt(ctx, buf, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "hello", string(buf))
	})

	t.Run("Tail", func(t *testing.T) {
		client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return *in.Range == "bytes=7-9"
		})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("xyz"))}, nil).Once()

		buf := make([]byte, 8)
		n, err := b.ReadAt(ctx, buf, 7)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 3, n)
		assert.Equal(t, "xyz", string(buf[:n]))
	})

	t.Run("PastEnd", func(t *testing.T) {
		_, err := b.ReadAt(ctx, make([]byte, 1), 10)
		assert.ErrorIs(t, err, io.EOF)
	})

	client.AssertExpectations(t)
}

func TestStorePut(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket")

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Key == "2020/batch-1" && aws.ToInt64(in.ContentLength) == 4
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, store.Put(context.Background(), "2020/batch-1", []byte("data")))
	client.AssertExpectations(t)
}

func TestStoreCreate(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", WithPrefix("p"))

	var uploaded string
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "bucket" && *in.Key == "p/new"
	})).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.PutObjectInput)
		data, _ := io.ReadAll(in.Body)
		uploaded = string(data)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	w, err := store.Create(context.Background(), "new")
	require.NoError(t, err)

	_, err = w.Write([]byte("batch-"))
	require.NoError(t, err)
	_, err = w.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, blobstore.ErrClosed)

	assert.Equal(t, "batch-content", uploaded)
	client.AssertExpectations(t)
}

func TestStoreCreateUploadError(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket")

	client.On("PutObject", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		_, _ = io.ReadAll(args.Get(1).(*s3.PutObjectInput).Body)
	}).Return(nil, errors.New("access denied")).Once()

	w, err := store.Create(context.Background(), "new")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	assert.Error(t, w.Close())
}

func TestStoreDelete(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", WithPrefix("prefix"))

	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Key == "prefix/old"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()

	require.NoError(t, store.Delete(context.Background(), "old"))
	client.AssertExpectations(t)
}

func TestStoreListPagination(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", WithPrefix("prefix/"))

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return *in.Prefix == "prefix/2020/" && in.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("token"),
		Contents:              []types.Object{{Key: aws.String("prefix/2020/b2")}},
	}, nil).Once()

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return in.ContinuationToken != nil && *in.ContinuationToken == "token"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(false),
		Contents:    []types.Object{{Key: aws.String("prefix/2020/b1")}},
	}, nil).Once()

	names, err := store.List(context.Background(), "2020/")
	require.NoError(t, err)
	assert.Equal(t, []string{"2020/b1", "2020/b2"}, names)
	client.AssertExpectations(t)
}
