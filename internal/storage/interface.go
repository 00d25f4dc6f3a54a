package storage

import (
	"context"
	"mime/multipart"
)

// BackgroundUploader defines the interface for uploading community background images
// This interface allows for easy mocking in tests
type BackgroundUploader interface {
	UploadCommunityBackground(ctx context.Context, file multipart.File, header *multipart.FileHeader, communityID string) (*UploadResult, error)
	DeleteFile(ctx context.Context, key string) error
	KeyFromURL(url string) string
}

// Ensure S3Uploader implements BackgroundUploader
var _ BackgroundUploader = (*S3Uploader)(nil)
