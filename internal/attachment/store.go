// Package attachment keeps resume files in object storage under a per-user
// prefix and hands out time-limited download links.
package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"

	"mycareerbox/internal/model"
)

var (
	ErrStorage      = errors.New("attachment storage error")
	ErrNoAttachment = errors.New("no attachment")
)

// ObjectAPI is the part of the S3 client the store writes through.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner signs GET requests.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Store struct {
	objects   ObjectAPI
	presigner Presigner
	bucket    string
}

func NewStore(objects ObjectAPI, presigner Presigner, bucket string) *Store {
	return &Store{
		objects:   objects,
		presigner: presigner,
		bucket:    bucket,
	}
}

// CleanFilename reduces an uploaded name to its base name. It returns "" for
// names that cannot be used as a key.
func CleanFilename(filename string) string {
	name := strings.TrimSpace(strings.ReplaceAll(filename, "\\", "/"))
	if name == "" {
		return ""
	}
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." || name == model.NoResume {
		return ""
	}
	return name
}

// BuildKey returns <userID>/<filename>.
func BuildKey(userID, filename string) (string, error) {
	name := CleanFilename(filename)
	if userID == "" || name == "" {
		return "", ErrNoAttachment
	}
	return userID + "/" + name, nil
}

// Upload writes content under the user's prefix. An object with the same
// name is replaced.
func (s *Store) Upload(ctx context.Context, userID, filename string, content []byte, contentType string) error {
	key, err := BuildKey(userID, filename)
	if err != nil {
		return err
	}

	ct := strings.TrimSpace(contentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = mimetype.Detect(content).String()
	}

	_, err = s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(ct),
		Metadata:      map[string]string{"user_id": userID},
	})
	if err != nil {
		return fmt.Errorf("%w: put %s failed: %w", ErrStorage, key, err)
	}
	return nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, userID, filename string) error {
	key, err := BuildKey(userID, filename)
	if err != nil {
		return err
	}
	_, err = s.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s failed: %w", ErrStorage, key, err)
	}
	return nil
}

// SignedDownloadURL presigns a GET valid for ttl. Links are not cached; every
// call signs a new one.
func (s *Store) SignedDownloadURL(ctx context.Context, userID, filename string, ttl time.Duration) (string, error) {
	key, err := BuildKey(userID, filename)
	if err != nil {
		return "", err
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", fmt.Errorf("%w: presign %s failed: %w", ErrStorage, key, err)
	}
	return req.URL, nil
}
