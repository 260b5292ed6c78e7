package telegram

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitByBytes(t *testing.T) {
	t.Run("Success/ShortTextIsOneChunk", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, splitByBytes("hello", 10))
	})

	t.Run("Success/SplitsOnByteBudget", func(t *testing.T) {
		parts := splitByBytes(strings.Repeat("a", 25), 10)
		require.Len(t, parts, 3)
		assert.Equal(t, strings.Repeat("a", 10), parts[0])
		assert.Equal(t, strings.Repeat("a", 5), parts[2])
	})

	t.Run("Success/NeverSplitsARune", func(t *testing.T) {
		text := strings.Repeat("é", 5) // 2 bytes each
		parts := splitByBytes(text, 3)
		require.Len(t, parts, 5)
		for _, p := range parts {
			assert.Equal(t, "é", p)
		}
		assert.Equal(t, text, strings.Join(parts, ""))
	})
}

func TestTruncateByBytes(t *testing.T) {
	assert.Equal(t, "abc", truncateByBytes("abc", 5))
	assert.Equal(t, "ab", truncateByBytes("abcdef", 2))
	assert.Equal(t, "é", truncateByBytes("éé", 3))
	assert.Equal(t, "abc", truncateByBytes("abc", 0))
}

func TestNewRejectsMissingSettings(t *testing.T) {
	_, err := New(Options{HTTPClient: http.DefaultClient})
	require.Error(t, err)

	_, err = New(Options{Token: "token"})
	require.Error(t, err)
}
