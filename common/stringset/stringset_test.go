package stringset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testHost = "agent1.example.org"

func TestStringSet_New(t *testing.T) {
	testSet := New()
	assert.NotNil(t, testSet)
	assert.Zero(t, testSet.Size())

	seeded := New("a", "b")
	assert.Equal(t, 2, seeded.Size())
	assert.True(t, seeded.Contains("a"))
	assert.True(t, seeded.Contains("b"))
}

func TestStringSet_AddContains(t *testing.T) {
	testSet := New()
	assert.False(t, testSet.Contains(testHost))

	testSet.Add(testHost)
	assert.True(t, testSet.Contains(testHost))
	assert.Equal(t, 1, testSet.Size())

	// Adding the same key twice is a no-op.
	testSet.Add(testHost)
	assert.Equal(t, 1, testSet.Size())
}

func TestStringSet_Remove(t *testing.T) {
	testSet := New(testHost)
	testSet.Remove(testHost)
	assert.False(t, testSet.Contains(testHost))
}

func TestStringSet_Clear(t *testing.T) {
	testSet := New("a", "b", "c")
	testSet.Clear()
	assert.Zero(t, testSet.Size())
	assert.Empty(t, testSet.ToSlice())
}

func TestStringSet_ToSlice(t *testing.T) {
	testSet := New("a", "b")
	assert.ElementsMatch(t, []string{"a", "b"}, testSet.ToSlice())
}
