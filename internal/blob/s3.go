// Package blob stores document bytes in S3-compatible object storage,
// content-addressed by sha-256.
package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store is the BlobStore capability: opaque refs in, bytes out. Documents
// reference blobs by ref; the primary store never holds file bytes.
type Store interface {
	// Put writes data and returns its ref and content hash. Identical
	// content yields the same ref (content-addressed), making re-uploads
	// idempotent.
	Put(ctx context.Context, data []byte, contentType string) (ref, contentHash string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
}

// NewS3Store builds the store. A non-empty endpoint points at an
// S3-compatible server (MinIO in development); path-style addressing is
// required there.
func NewS3Store(ctx context.Context, bucket, region, endpoint string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("blob store bucket is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, data []byte, contentType string) (string, string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	key := "documents/" + hash

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", fmt.Errorf("upload blob: %w", err)
	}
	return key, hash, nil
}

func (s *S3Store) Get(ctx context.Context, ref string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("download blob: %w", err)
	}
	return buf.Bytes(), nil
}

// MemoryStore keeps blobs in process. Development and tests only.
type MemoryStore struct {
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, data []byte, _ string) (string, string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	key := "documents/" + hash
	m.blobs[key] = append([]byte(nil), data...)
	return key, hash, nil
}

func (m *MemoryStore) Get(_ context.Context, ref string) ([]byte, error) {
	data, ok := m.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", ref)
	}
	return data, nil
}
