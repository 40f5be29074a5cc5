// Package files stores document attachments in S3-compatible object
// storage.
package files

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"paperbase/api/internal/util"
)

// MaxUploadSize caps a single attachment at 20 MiB.
const MaxUploadSize = 20 << 20

type Service struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and makes sure the bucket exists.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: bucket}, nil
}

// Attachment describes one stored object.
type Attachment struct {
	Key         string    `json:"key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Upload stores an attachment under the document's prefix and returns
// its descriptor.
func (s *Service) Upload(ctx context.Context, documentID, filename, contentType string, size int64, body io.Reader) (Attachment, error) {
	if size <= 0 || size > MaxUploadSize {
		return Attachment{}, fmt.Errorf("attachment size %d out of range", size)
	}
	clean := sanitizeFilename(filename)
	key := fmt.Sprintf("attachments/%s/%s-%s", documentID, util.NewID("att"), clean)

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Attachment{}, fmt.Errorf("put object: %w", err)
	}

	return Attachment{
		Key:         key,
		Filename:    clean,
		ContentType: contentType,
		Size:        info.Size,
		UploadedAt:  time.Now().UTC(),
	}, nil
}

// List returns the attachments stored under the document's prefix.
func (s *Service) List(ctx context.Context, documentID string) ([]Attachment, error) {
	prefix := "attachments/" + documentID + "/"
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	items := make([]Attachment, 0)
	for object := range objects {
		if object.Err != nil {
			return nil, fmt.Errorf("list objects: %w", object.Err)
		}
		items = append(items, Attachment{
			Key:        object.Key,
			Filename:   displayName(object.Key),
			Size:       object.Size,
			UploadedAt: object.LastModified,
		})
	}
	return items, nil
}

// PresignedGet returns a short-lived download URL for an attachment.
func (s *Service) PresignedGet(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, 15*time.Minute, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// Delete removes one attachment.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// DeleteAll removes every attachment under a document's prefix, used
// when the document itself is deleted.
func (s *Service) DeleteAll(ctx context.Context, documentID string) error {
	prefix := "attachments/" + documentID + "/"
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objects {
		if object.Err != nil {
			return fmt.Errorf("list objects for delete: %w", object.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove object %s: %w", object.Key, err)
		}
	}
	return nil
}

func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	var out strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			out.WriteRune(r)
		case r == ' ':
			out.WriteRune('-')
		}
	}
	if out.Len() == 0 {
		return "file"
	}
	return out.String()
}

// displayName strips the generated prefix back off a stored key.
func displayName(key string) string {
	base := path.Base(key)
	if i := strings.Index(base, "-"); i >= 0 && i+1 < len(base) {
		// keys look like att_<hex>-name; drop through the first dash
		// after the id segment
		if strings.HasPrefix(base, "att_") {
			rest := base[len("att_"):]
			if j := strings.Index(rest, "-"); j >= 0 && j+1 < len(rest) {
				return rest[j+1:]
			}
		}
	}
	return base
}
