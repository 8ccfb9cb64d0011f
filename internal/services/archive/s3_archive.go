package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/nicklasc86/travelbot/internal/domain/model"
)

const rejectedPrefix = "rejected/"

// ObjectStore is the subset of *minio.Client the archive uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
}

type Snapshot struct {
	Tip        model.Tip `json:"tip"`
	RejectedAt time.Time `json:"rejected_at"`
}

// S3Archive stores a JSON snapshot of every rejected tip under rejected/<id>.json.
type S3Archive struct {
	client ObjectStore
	bucket string
	now    func() time.Time

	ensureOnce sync.Once
	ensureErr  error
}

func NewS3Archive(client ObjectStore, bucket string) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: strings.TrimSpace(bucket),
		now:    time.Now,
	}
}

func (s *S3Archive) EnsureBucket(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if s.bucket == "" {
		return fmt.Errorf("s3 bucket is empty")
	}

	s.ensureOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.ensureErr = err
			return
		}
		if exists {
			return
		}
		s.ensureErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	})

	if s.ensureErr != nil {
		return fmt.Errorf("ensure s3 bucket %q: %w", s.bucket, s.ensureErr)
	}
	return nil
}

func (s *S3Archive) ArchiveRejected(ctx context.Context, tip model.Tip) error {
	if strings.TrimSpace(tip.ID) == "" {
		return fmt.Errorf("tip id is required")
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(Snapshot{Tip: tip, RejectedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal rejected tip: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, ObjectKey(tip.ID), bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put rejected tip to s3: %w", err)
	}
	return nil
}

// PruneOlderThan removes archived snapshots last modified before cutoff.
func (s *S3Archive) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.client == nil {
		return 0, fmt.Errorf("s3 client is nil")
	}

	var removed int64
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: rejectedPrefix, Recursive: true}) {
		if object.Err != nil {
			return removed, fmt.Errorf("list archived tips: %w", object.Err)
		}
		if !object.LastModified.Before(cutoff) {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return removed, fmt.Errorf("remove archived tip %q: %w", object.Key, err)
		}
		removed++
	}
	return removed, nil
}

func ObjectKey(tipID string) string {
	return rejectedPrefix + strings.TrimSpace(tipID) + ".json"
}
