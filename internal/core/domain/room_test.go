package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCounterKey(t *testing.T) {
	key, err := ParseCounterKey(LikesKey("stream:42").String())
	require.NoError(t, err)
	assert.Equal(t, LikesKey("stream:42"), key)

	for _, bad := range []string{"", "likes", "likes:", ":room"} {
		_, err := ParseCounterKey(bad)
		assert.Error(t, err, bad)
	}
}
