package util

import (
	"path/filepath"
	"strings"
)

// IsValidImageFile checks if a filename has an allowed image extension for
// background uploads
func IsValidImageFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	validExts := []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

	for _, validExt := range validExts {
		if ext == validExt {
			return true
		}
	}
	return false
}
