package chroma

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"kb-bridge/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Fetcher downloads foreign store snapshots from object storage.
type Fetcher struct {
	client storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewFetcher creates a fetcher over the given bucket. Keys are resolved
// under prefix unless they already carry it.
func NewFetcher(client storage.Client, bucket, prefix string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (f *Fetcher) key(name string) string {
	name = strings.TrimPrefix(name, "/")
	if f.prefix == "" || strings.HasPrefix(name, f.prefix) {
		return name
	}
	return path.Join(f.prefix, name)
}

func isDatabaseFile(key string) bool {
	return strings.HasSuffix(key, ".sqlite3") || strings.HasSuffix(key, ".db")
}

// Fetch downloads the snapshot named by key into dir and returns the local
// path to open. A key naming a database file downloads just that file;
// any other key is treated as a directory and copied whole.
func (f *Fetcher) Fetch(ctx context.Context, name, dir string) (string, error) {
	key := f.key(name)
	if isDatabaseFile(key) {
		dst := filepath.Join(dir, path.Base(key))
		if err := f.download(ctx, key, dst); err != nil {
			return "", err
		}
		return dst, nil
	}

	prefix := strings.TrimSuffix(key, "/") + "/"
	keys, err := storage.ListKeys(ctx, f.client, f.bucket, prefix)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("no objects under %s in bucket %s", prefix, f.bucket)
	}
	root := filepath.Clean(dir) + string(os.PathSeparator)
	for _, k := range keys {
		dst := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(k, prefix)))
		if !strings.HasPrefix(dst, root) {
			return "", fmt.Errorf("object %s escapes the download directory", k)
		}
		if err := f.download(ctx, k, dst); err != nil {
			return "", err
		}
	}
	f.logger.Debug("Fetched foreign snapshot", zap.String("prefix", prefix), zap.Int("objects", len(keys)))
	return dir, nil
}

func (f *Fetcher) download(ctx context.Context, key, dst string) error {
	obj, err := f.client.GetObject(ctx, f.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, obj); err != nil {
		out.Close()
		return fmt.Errorf("download %s: %w", key, err)
	}
	return out.Close()
}
