package utils

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewSessionID()
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate session id %s", id)
		seen[id] = true
	}
}

func TestNewMessageID_SortsInCreationOrder(t *testing.T) {
	now := time.Now()
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = NewMessageID(now)
	}

	assert.True(t, sort.StringsAreSorted(ids))
	assert.Len(t, ids[0], 26)
}

func TestMessageTime(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	got, err := MessageTime(NewMessageID(now))
	require.NoError(t, err)
	assert.True(t, got.Equal(now), "got %v want %v", got, now)

	_, err = MessageTime("not-a-ulid")
	assert.Error(t, err)
}

func TestNewRequestID(t *testing.T) {
	id := NewRequestID()
	assert.True(t, strings.HasPrefix(id, "req_"))
	assert.NotEqual(t, id, NewRequestID())
}

func TestNewInstanceID(t *testing.T) {
	a, b := NewInstanceID(), NewInstanceID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  hello  ", "hello"},
		{"hi\x00there", "hithere"},
		{"line1\nline2", "line1\nline2"},
		{"\x07\x1b", ""},
		{"привет", "привет"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeText(tt.in), "SanitizeText(%q)", tt.in)
	}
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank(" \t\n"))
	assert.False(t, IsBlank(" a "))
}
