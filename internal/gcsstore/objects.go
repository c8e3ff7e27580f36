// Package gcsstore keeps ledger records, source documents and analysis
// results in Google Cloud Storage.
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// errNotExist is returned by objects implementations for missing objects.
var errNotExist = storage.ErrObjectNotExist

// objectInfo is the listing view of one object.
type objectInfo struct {
	Name     string
	Created  time.Time
	Metadata map[string]string
}

// objects is the subset of bucket operations the stores use.
type objects interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte, contentType string, metadata map[string]string) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]objectInfo, error)
}

// bucketObjects implements objects over a real bucket handle.
type bucketObjects struct {
	bkt *storage.BucketHandle
}

func (b bucketObjects) Read(ctx context.Context, name string) ([]byte, error) {
	r, err := b.bkt.Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader %q: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object %q: %w", name, err)
	}
	return data, nil
}

func (b bucketObjects) Write(ctx context.Context, name string, data []byte, contentType string, metadata map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := b.bkt.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write GCS object %q: %w", name, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload %q: %w", name, err)
	}
	return nil
}

func (b bucketObjects) Delete(ctx context.Context, name string) error {
	if err := b.bkt.Object(name).Delete(ctx); err != nil {
		return fmt.Errorf("delete GCS object %q: %w", name, err)
	}
	return nil
}

func (b bucketObjects) List(ctx context.Context, prefix string) ([]objectInfo, error) {
	it := b.bkt.Objects(ctx, &storage.Query{Prefix: prefix})
	var out []objectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list GCS objects under %q: %w", prefix, err)
		}
		out = append(out, objectInfo{Name: attrs.Name, Created: attrs.Created, Metadata: attrs.Metadata})
	}
	return out, nil
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %s", uri)
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}

// URI formats a bucket and object as a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}
