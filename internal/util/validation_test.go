package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidImageFile(t *testing.T) {
	testCases := []struct {
		filename string
		valid    bool
	}{
		{"background.png", true},
		{"photo.jpg", true},
		{"photo.jpeg", true},
		{"animation.gif", true},
		{"modern.webp", true},
		{"SHOUTING.PNG", true},
		{"archive.zip", false},
		{"vector.svg", false},
		{"noextension", false},
		{"", false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.valid, IsValidImageFile(tc.filename), "Failed for filename: %q", tc.filename)
	}
}
