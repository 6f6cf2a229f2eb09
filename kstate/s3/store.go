package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/birdayz/kstreams/kprocessor"
	"github.com/birdayz/kstreams/kstate"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config configures the S3-backed store backend. Endpoint, bucket and
// credentials are required; Secure enables TLS and is false unless set.
type Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Secure          bool
}

type s3Store struct {
	client *minio.Client

	name   string
	prefix string
	bucket string
}

func (s *s3Store) Name() string {
	return s.name
}

func (s *s3Store) Init(ctx kprocessor.ProcessorContextInternal) error {
	return nil
}

func (s *s3Store) Persistent() bool {
	return true
}

func (s *s3Store) Flush(ctx context.Context) error {
	return nil
}

func (s *s3Store) Close() error {
	return nil
}

func (s *s3Store) Set(k, v []byte) error {
	ctx := context.Background()
	if v == nil {
		return s.Delete(k)
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.objectName(k), bytes.NewReader(v), int64(len(v)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("put %s: %w", s.objectName(k), err)
	}
	return nil
}

func (s *s3Store) Get(k []byte) ([]byte, error) {
	ctx := context.Background()
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(k), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.objectName(k), err)
	}
	defer obj.Close()

	// GetObject never round-trips until the body is touched; Stat forces
	// that round-trip so a missing key surfaces here as ErrKeyNotFound
	// instead of a read error further down.
	if _, statErr := obj.Stat(); statErr != nil {
		if minio.ToErrorResponse(statErr).Code == "NoSuchKey" {
			return nil, kstate.ErrKeyNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", s.objectName(k), statErr)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.objectName(k), err)
	}
	return data, nil
}

func (s *s3Store) Delete(k []byte) error {
	ctx := context.Background()
	if err := s.client.RemoveObject(ctx, s.bucket, s.objectName(k), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", s.objectName(k), err)
	}
	return nil
}

// Range iterates keys in [lower, upper) order. S3 lists objects in
// lexicographic key order, so this needs no local sorting, but every
// matching object's content is fetched one at a time (no bulk GET in the
// S3 API), unlike pebble's in-process iterator.
func (s *s3Store) Range(lower, upper []byte) iter.Seq2[[]byte, []byte] {
	return s.listRange(lower, upper)
}

func (s *s3Store) All() iter.Seq2[[]byte, []byte] {
	return s.listRange(nil, nil)
}

func (s *s3Store) listRange(lower, upper []byte) iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		objCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:     s.prefix + "/",
			Recursive:  true,
			StartAfter: s.objectNameBefore(lower),
		})

		for obj := range objCh {
			if obj.Err != nil {
				return
			}

			key := s.keyFromObjectName(obj.Key)
			if lower != nil && bytes.Compare(key, lower) < 0 {
				continue
			}
			if upper != nil && bytes.Compare(key, upper) >= 0 {
				return
			}

			o, err := s.client.GetObject(ctx, s.bucket, obj.Key, minio.GetObjectOptions{})
			if err != nil {
				return
			}
			val, err := io.ReadAll(o)
			o.Close()
			if err != nil {
				return
			}

			if !yield(key, val) {
				return
			}
		}
	}
}

// objectNameBefore returns a StartAfter value guaranteed to sort strictly
// before any object with the given key prefix, or "" if lower is unset.
func (s *s3Store) objectNameBefore(lower []byte) string {
	if lower == nil {
		return ""
	}
	name := s.objectName(lower)
	if len(name) == 0 {
		return ""
	}
	return name[:len(name)-1] + string(name[len(name)-1]-1)
}

func (s *s3Store) objectName(key []byte) string {
	return fmt.Sprintf("%s/%s", s.prefix, key)
}

func (s *s3Store) keyFromObjectName(objectName string) []byte {
	return []byte(strings.TrimPrefix(objectName, s.prefix+"/"))
}

// NewStoreBackend returns a store backend constructor backed by S3-compatible
// object storage (MinIO, AWS S3, etc). Every store+partition gets its own
// key prefix within the configured bucket.
func NewStoreBackend(cfg Config) func(name string, p int32) (kstate.StoreBackend, error) {
	return func(name string, p int32) (kstate.StoreBackend, error) {
		return newS3Store(cfg, name, uint32(p))
	}
}

func newS3Store(cfg Config, name string, partition uint32) (*s3Store, error) {
	ctx := context.Background()

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &s3Store{
		client: client,
		name:   name,
		prefix: fmt.Sprintf("%s/%d", name, partition),
		bucket: cfg.Bucket,
	}, nil
}

var _ kstate.StoreBackend = (*s3Store)(nil)
