package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/flotob/curia-sub002/internal/telemetry"
	"github.com/google/uuid"
)

// MaxImageSize is the largest accepted upload (5 MB)
const MaxImageSize = 5 << 20

// S3Uploader handles image uploads to AWS S3
type S3Uploader struct {
	client  *s3.Client
	bucket  string
	region  string
	baseURL string
	acl     string
}

// UploadResult contains the result of an S3 upload
type UploadResult struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	Size   int64  `json:"size"`
}

// NewS3Uploader creates a new S3 uploader. baseURL is the public CDN prefix
// rewritten onto stored keys; acl is an optional canned ACL (e.g. "public-read")
// for deployments that don't manage access through a bucket policy.
func NewS3Uploader(region, bucket, baseURL, acl string) (*S3Uploader, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	return &S3Uploader{
		client:  client,
		bucket:  bucket,
		region:  region,
		baseURL: baseURL,
		acl:     acl,
	}, nil
}

// UploadCommunityBackground stores a community background image under
// communities/{communityID}/background/{fileID}.{ext} and returns its public URL.
func (u *S3Uploader) UploadCommunityBackground(ctx context.Context, file multipart.File, header *multipart.FileHeader, communityID string) (*UploadResult, error) {
	data, err := io.ReadAll(io.LimitReader(file, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > MaxImageSize {
		return nil, fmt.Errorf("image exceeds %d byte limit", MaxImageSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty upload")
	}

	// Sniff the actual content, don't trust the filename
	if detected := http.DetectContentType(data); !strings.HasPrefix(detected, "image/") {
		return nil, fmt.Errorf("not an image: detected %s", detected)
	}

	extension := strings.ToLower(filepath.Ext(header.Filename))
	if extension == "" {
		extension = ".png"
	}

	fileID := uuid.New().String()
	key := fmt.Sprintf("communities/%s/background/%s%s", communityID, fileID, extension)
	contentType := getContentTypeForImage(extension)

	now := time.Now()
	putObjectInput := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),

		// Backgrounds change rarely, cache for 24 hours
		CacheControl: aws.String("max-age=86400"),

		Metadata: map[string]string{
			"community-id":      communityID,
			"original-filename": header.Filename,
			"upload-timestamp":  now.Format(time.RFC3339),
			"file-type":         "background",
		},
	}
	if u.acl != "" {
		putObjectInput.ACL = types.ObjectCannedACL(u.acl)
	}

	ctx, span := telemetry.TraceS3Call(ctx, "put_object", map[string]interface{}{
		"bucket":       u.bucket,
		"key":          key,
		"content_type": contentType,
		"size_bytes":   int64(len(data)),
	})
	defer span.End()

	_, err = u.client.PutObject(ctx, putObjectInput)
	if err != nil {
		telemetry.RecordServiceError(span, "s3", err)
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}
	telemetry.RecordServiceSuccess(span, nil)

	publicURL := fmt.Sprintf("%s/%s", strings.TrimSuffix(u.baseURL, "/"), key)

	return &UploadResult{
		Key:    key,
		URL:    publicURL,
		Bucket: u.bucket,
		Region: u.region,
		Size:   int64(len(data)),
	}, nil
}

// DeleteFile deletes a file from S3
func (u *S3Uploader) DeleteFile(ctx context.Context, key string) error {
	ctx, span := telemetry.TraceS3Call(ctx, "delete_object", map[string]interface{}{
		"bucket": u.bucket,
		"key":    key,
	})
	defer span.End()

	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		telemetry.RecordServiceError(span, "s3", err)
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	telemetry.RecordServiceSuccess(span, nil)
	return nil
}

// CheckBucketAccess verifies that we can access the S3 bucket
func (u *S3Uploader) CheckBucketAccess(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(u.bucket),
	})
	if err != nil {
		return fmt.Errorf("cannot access S3 bucket %s: %w", u.bucket, err)
	}

	return nil
}

// KeyFromURL extracts the S3 key from a public URL previously produced by
// this uploader, or "" when the URL is foreign.
func (u *S3Uploader) KeyFromURL(url string) string {
	prefix := strings.TrimSuffix(u.baseURL, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	return strings.TrimPrefix(url, prefix)
}

// getContentTypeForImage returns the appropriate MIME type for image extensions
func getContentTypeForImage(extension string) string {
	switch strings.ToLower(extension) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
