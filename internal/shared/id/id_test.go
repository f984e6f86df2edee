package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageIDPrefix(t *testing.T) {
	mid := NewMessageID()
	assert.True(t, strings.HasPrefix(mid.String(), "msg_"))
	assert.True(t, IsValid(mid.String()))
}

func TestIsValid(t *testing.T) {
	g := NewGenerator()
	assert.True(t, IsValid(g.GenerateString()))
	assert.True(t, IsValid(g.GenerateWithPrefix(MessagePrefix)))
	assert.False(t, IsValid("msg_not-a-ulid"))
	assert.False(t, IsValid(""))
}

func TestUniqueness(t *testing.T) {
	seen := make(map[MessageID]bool)
	for i := 0; i < 1000; i++ {
		mid := NewMessageID()
		require.False(t, seen[mid], "duplicate id %s", mid)
		seen[mid] = true
	}
}

func TestSortability(t *testing.T) {
	g := NewGenerator()
	a := g.GenerateString()
	b := g.GenerateString()
	// ULIDs generated in sequence never sort backwards
	assert.LessOrEqual(t, a[:10], b[:10])
}
