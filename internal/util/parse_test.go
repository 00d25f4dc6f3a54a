package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInt(t *testing.T) {
	assert.Equal(t, 42, ParseInt("42", 0))
	assert.Equal(t, -3, ParseInt("-3", 0))
	assert.Equal(t, 7, ParseInt("", 7))
	assert.Equal(t, 7, ParseInt("abc", 7))
	assert.Equal(t, 7, ParseInt("4.5", 7))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("123")
	assert.NoError(t, err)
	assert.Equal(t, int64(123), id)

	_, err = ParseID("post-123")
	assert.Error(t, err)

	_, err = ParseID("")
	assert.Error(t, err)
}

func TestParseTagList(t *testing.T) {
	assert.Empty(t, ParseTagList(""))
	assert.Equal(t, []string{"go"}, ParseTagList("go"))
	assert.Equal(t, []string{"go", "redis"}, ParseTagList("go, redis ,  "))
	assert.Empty(t, ParseTagList(" , ,"))
}
