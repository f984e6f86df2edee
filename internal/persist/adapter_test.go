package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot.json")
	f := NewFile(path)

	// Absent slot before any write
	_, ok, err := f.Read()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.Write("conv-abc"))

	id, ok, err := f.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "conv-abc", id)
}

func TestFileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "slot.json")
	require.NoError(t, NewFile(path).Write("conv-abc"))

	// A fresh adapter over the same path sees the stored id
	id, ok, err := NewFile(path).Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "conv-abc", id)
}

func TestFileRemoveDistinctFromEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot.json")
	f := NewFile(path)

	require.NoError(t, f.Write("conv-abc"))
	require.NoError(t, f.Remove())

	_, ok, err := f.Read()
	require.NoError(t, err)
	assert.False(t, ok, "removed slot must read as absent")

	// Removing an absent slot is a no-op
	require.NoError(t, f.Remove())
}

func TestFileOverwriteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot.json")
	f := NewFile(path)

	require.NoError(t, f.Write("conv-1"))
	require.NoError(t, f.Write("conv-1"))
	require.NoError(t, f.Write("conv-2"))

	id, ok, err := f.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "conv-2", id)
}

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()

	_, ok, err := m.Read()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Write("conv-abc"))
	id, ok, _ := m.Read()
	require.True(t, ok)
	assert.Equal(t, "conv-abc", id)

	require.NoError(t, m.Remove())
	_, ok, _ = m.Read()
	assert.False(t, ok)
}
