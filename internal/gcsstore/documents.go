package gcsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/pipeline"
)

// TextSuffixes are the object extensions treated as text documents.
var TextSuffixes = []string{".txt", ".md", ".text"}

// Documents reads text documents from any bucket.
type Documents struct {
	bucket func(name string) objects
}

// NewDocuments creates a document reader over client.
func NewDocuments(client *storage.Client) *Documents {
	return &Documents{bucket: func(name string) objects {
		return bucketObjects{bkt: client.Bucket(name)}
	}}
}

// Fetch downloads the text of a gs:// document.
func (d *Documents) Fetch(ctx context.Context, uri string) (string, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	if object == "" {
		return "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	data, err := d.bucket(bucket).Read(ctx, object)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", uri, err)
	}
	return string(data), nil
}

// List returns the URIs of text documents under a gs://bucket/prefix URI.
func (d *Documents) List(ctx context.Context, uri string) ([]string, error) {
	bucket, prefix, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	infos, err := d.bucket(bucket).List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, info := range infos {
		if isTextDocument(info.Name) {
			out = append(out, URI(bucket, info.Name))
		}
	}
	return out, nil
}

func isTextDocument(name string) bool {
	if strings.HasSuffix(name, "/") {
		return false
	}
	ext := strings.ToLower(path.Ext(name))
	for _, s := range TextSuffixes {
		if ext == s {
			return true
		}
	}
	return false
}

// ResultArchive writes analysis results as JSON objects.
type ResultArchive struct {
	objs   objects
	bucket string
	prefix string
}

// NewResultArchive creates an archive in bucket under prefix.
func NewResultArchive(client *storage.Client, bucket, prefix string) *ResultArchive {
	return &ResultArchive{objs: bucketObjects{bkt: client.Bucket(bucket)}, bucket: bucket, prefix: prefix}
}

// Save stores result as "<prefix><base>_<YYYYMMDD_HHMMSS>_result.json" and
// returns its URI.
func (a *ResultArchive) Save(ctx context.Context, result domain.DocumentAnalysisResult) (string, error) {
	at := result.CompletedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	name := pipeline.ResultObjectName(a.prefix, result.DocumentName, at)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result for %s: %w", result.DocumentName, err)
	}
	meta := map[string]string{"run-id": result.RunID, "status": string(result.Status)}
	if err := a.objs.Write(ctx, name, data, "application/json", meta); err != nil {
		return "", err
	}
	return URI(a.bucket, name), nil
}

// UploadFile uploads a local file to a GCS bucket under the given object name.
// It assumes Application Default Credentials are configured (gcloud auth application-default login).
func UploadFile(ctx context.Context, client *storage.Client, bucketName, objectName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read file %q: %w", filePath, err)
	}
	contentType := "application/octet-stream"
	if isTextDocument(objectName) {
		contentType = "text/plain; charset=utf-8"
	}
	return bucketObjects{bkt: client.Bucket(bucketName)}.Write(ctx, objectName, data, contentType, nil)
}
