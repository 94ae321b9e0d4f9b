// Package s3util is the object storage layer for uploaded videos.
//
// Browsers and the CLI PUT the video straight to S3 with a presigned URL;
// the analyze handler later fetches the object by key, hands the bytes to the
// Gemini Files API, and deletes the object.
package s3util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/filehandler"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultUploadExpiry is how long a presigned upload URL stays valid.
const DefaultUploadExpiry = 15 * time.Minute

// uuidRegex matches UUID v4 format: 8-4-4-4-12 lowercase hex with dashes.
var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ObjectAPI is the subset of the S3 client used here.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner is the subset of the S3 presign client used here.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// UploadTicket authorizes one direct PUT of a video.
type UploadTicket struct {
	UploadURL string    `json:"uploadUrl"`
	Key       string    `json:"blobUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Object is a fetched video.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
}

// Store reads, writes, and deletes videos in one bucket.
type Store struct {
	client    ObjectAPI
	presigner Presigner
	bucket    string
	expiry    time.Duration
	maxSize   int64
	now       func() time.Time
}

// NewStore creates a Store over bucket.
func NewStore(client *s3.Client, bucket string) *Store {
	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		expiry:    DefaultUploadExpiry,
		maxSize:   filehandler.MaxUploadSize,
		now:       time.Now,
	}
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

// NewObjectKey returns a fresh "<uuid>/<filename>" key.
func NewObjectKey(filename string) string {
	return uuid.NewString() + "/" + filename
}

// ValidateKey checks that key has the "<uuid>/<filename>" shape issued by
// PresignUpload.
func ValidateKey(key string) error {
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid key")
	}
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 || !uuidRegex.MatchString(parts[0]) || parts[1] == "" {
		return fmt.Errorf("invalid key format: expected <uuid>/<filename>")
	}
	return nil
}

// PresignUpload validates the proposed upload and returns a presigned PUT
// URL. Content-Type and, when size > 0, Content-Length are part of the
// signature, so the client cannot send a different type or size.
func (s *Store) PresignUpload(ctx context.Context, filename, contentType string, size int64) (*UploadTicket, error) {
	if err := filehandler.ValidateUpload(filename, contentType, size); err != nil {
		return nil, analysis.Validation(err.Error())
	}

	key := NewObjectKey(filename)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	expiresAt := s.now().Add(s.expiry)
	result, err := s.presigner.PresignPutObject(ctx, input, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, analysis.Storage("Failed to generate upload URL", fmt.Errorf("presign PutObject: %w", err))
	}

	log.Debug().
		Str("key", key).
		Str("contentType", contentType).
		Int64("size", size).
		Msg("Presigned upload URL issued")

	return &UploadTicket{UploadURL: result.URL, Key: key, ExpiresAt: expiresAt}, nil
}

// Fetch downloads the object at key. Objects larger than the upload limit
// are rejected without being read in full.
func (s *Store) Fetch(ctx context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, analysis.Validation(err.Error())
	}

	log.Debug().Str("bucket", s.bucket).Str("key", key).Msg("Downloading from S3")
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, analysis.Storage("Uploaded video was not found", err)
		}
		return nil, analysis.Storage("Failed to fetch uploaded video", fmt.Errorf("S3 GetObject: %w", err))
	}
	defer result.Body.Close()

	if result.ContentLength != nil && *result.ContentLength > s.maxSize {
		return nil, analysis.Storage("Uploaded video exceeds the size limit", nil)
	}

	data, err := io.ReadAll(io.LimitReader(result.Body, s.maxSize+1))
	if err != nil {
		return nil, analysis.Storage("Failed to read uploaded video", fmt.Errorf("read: %w", err))
	}
	if int64(len(data)) > s.maxSize {
		return nil, analysis.Storage("Uploaded video exceeds the size limit", nil)
	}

	obj := &Object{Key: key, Data: data}
	if result.ContentType != nil {
		obj.ContentType = *result.ContentType
	}

	log.Info().
		Str("key", key).
		Str("contentType", obj.ContentType).
		Int("size_bytes", len(data)).
		Msg("Video fetched from S3")

	return obj, nil
}

// Delete removes the object at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return analysis.Storage("Failed to delete uploaded video", fmt.Errorf("S3 DeleteObject: %w", err))
	}
	log.Debug().Str("key", key).Msg("Deleted S3 object")
	return nil
}
