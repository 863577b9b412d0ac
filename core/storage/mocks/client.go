package mocks

import (
	"context"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
)

// Client is a testify mock of storage.Client.
type Client struct {
	mock.Mock
}

func (m *Client) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *Client) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	body, _ := args.Get(0).(io.ReadCloser)
	return body, args.Error(1)
}

func (m *Client) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	info, _ := args.Get(0).(minio.ObjectInfo)
	return info, args.Error(1)
}

// ListObjects returns the configured channel, or an empty closed one.
func (m *Client) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	if ch, ok := args.Get(0).(<-chan minio.ObjectInfo); ok {
		return ch
	}
	return ObjectChannel()
}

// ExpectObject makes GetObject return body for key in bucket.
func (m *Client) ExpectObject(bucket, key, body string) *mock.Call {
	return m.On("GetObject", mock.Anything, bucket, key, mock.Anything).
		Return(io.NopCloser(strings.NewReader(body)), nil)
}

// ExpectListing makes a recursive listing of prefix return keys.
func (m *Client) ExpectListing(bucket, prefix string, keys ...string) *mock.Call {
	return m.On("ListObjects", mock.Anything, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}).
		Return(Keys(keys...))
}

// Keys returns a listing channel holding one object per key.
func Keys(keys ...string) <-chan minio.ObjectInfo {
	objects := make([]minio.ObjectInfo, len(keys))
	for i, k := range keys {
		objects[i] = minio.ObjectInfo{Key: k}
	}
	return ObjectChannel(objects...)
}

// ObjectChannel returns a closed, pre-filled listing channel.
func ObjectChannel(objects ...minio.ObjectInfo) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(objects))
	for _, o := range objects {
		ch <- o
	}
	close(ch)
	return ch
}
