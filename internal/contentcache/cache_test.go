package contentcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatelessAppAlwaysMisses(t *testing.T) {
	c := New("gaming_app")

	for _, key := range []string{"gaming_app", "gaming_app\x1fstart", ""} {
		assert.False(t, c.Put(key, "gaming_app", "<p>level 1</p>"))
		_, ok := c.Get(key, "gaming_app")
		assert.False(t, ok, "key %q", key)
	}
	assert.Equal(t, 0, c.Len())

	// Even content stored under another app's key is hidden from the stateless app.
	require.True(t, c.Put("shared", "notes_app", "<p>notes</p>"))
	_, ok := c.Get("shared", "gaming_app")
	assert.False(t, ok)
}

func TestPutThenGetReturnsContent(t *testing.T) {
	c := New("gaming_app")
	require.True(t, c.Put("calendar_app", "calendar_app", "<h1>Calendar</h1>"))

	got, ok := c.Get("calendar_app", "calendar_app")
	require.True(t, ok)
	assert.Equal(t, "<h1>Calendar</h1>", got)

	require.True(t, c.Put("calendar_app", "calendar_app", "<h1>Calendar v2</h1>"))
	got, _ = c.Get("calendar_app", "calendar_app")
	assert.Equal(t, "<h1>Calendar v2</h1>", got)
}

func TestIdenticalPutLeavesMarkerUnchanged(t *testing.T) {
	c := New("gaming_app")
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return clock }

	require.True(t, c.Put("k", "notes_app", "<p>same</p>"))
	first, ok := c.Lookup("k")
	require.True(t, ok)

	clock = clock.Add(time.Hour)
	assert.False(t, c.Put("k", "notes_app", "<p>same</p>"))
	second, _ := c.Lookup("k")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, second.Writes)

	assert.True(t, c.Put("k", "notes_app", "<p>changed</p>"))
	third, _ := c.Lookup("k")
	assert.Equal(t, 2, third.Writes)
	assert.Equal(t, clock, third.WrittenAt)
}

func TestKeysSorted(t *testing.T) {
	c := New("")
	c.Put("b", "x", "1")
	c.Put("a", "x", "2")
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}
