// Package objstore keeps organization collections as objects in an S3-compatible bucket.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"chartline/internal/store"
)

const contentType = "application/json"

// Options configures the bucket connection.
type Options struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Secure    bool
	Prefix    string
}

// Store implements store.Store on top of a minio client. Each organization is one object
// named <prefix>/<org>.json.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ store.Store = (*Store)(nil)

// New connects to the endpoint. It does not create the bucket; see EnsureBucket.
func New(opts Options) (*Store, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("objstore: endpoint is required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("objstore: bucket is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: create client: %w", err)
	}
	return NewWithClient(client, opts.Bucket, opts.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *minio.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// EnsureBucket creates the bucket when it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("objstore: bucket exists %s: %w", s.bucket, err)
	}
	if ok {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("objstore: make bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Key returns the object name for orgID.
func (s *Store) Key(orgID string) string {
	name := orgID + ".json"
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *Store) Load(ctx context.Context, orgID string) ([]byte, error) {
	if orgID == "" {
		return nil, store.ErrInvalidOrg
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.Key(orgID), minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	defer func() {
		_ = obj.Close()
	}()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, translate(err)
	}
	return data, nil
}

func (s *Store) Save(ctx context.Context, orgID string, blob []byte) error {
	if orgID == "" {
		return store.ErrInvalidOrg
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.Key(orgID), bytes.NewReader(blob), int64(len(blob)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return translate(err)
	}
	return nil
}

func isMissing(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func translate(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code != "" {
		return fmt.Errorf("objstore: %s: %w", resp.Code, err)
	}
	return fmt.Errorf("objstore: %w", err)
}
