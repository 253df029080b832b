package idempotency

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestStore_CheckAndMark(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s, err := NewStore("", WithClock(c.Now))
	require.NoError(t, err)

	assert.False(t, s.CheckAndMark("k1", time.Minute))
	assert.True(t, s.CheckAndMark("k1", time.Minute))

	c.now = c.now.Add(2 * time.Minute)
	assert.False(t, s.CheckAndMark("k1", time.Minute))
}

func TestStore_RememberAndLookup(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s, err := NewStore("", WithClock(c.Now))
	require.NoError(t, err)

	_, ok := s.Lookup("tok")
	assert.False(t, ok)

	s.Remember("tok", 200, "text/xml", []byte("<Response/>"), 10*time.Minute)
	entry, ok := s.Lookup("tok")
	require.True(t, ok)
	assert.Equal(t, 200, entry.Status)
	assert.Equal(t, "text/xml", entry.ContentType)
	assert.Equal(t, "<Response/>", string(entry.Body))

	c.now = c.now.Add(11 * time.Minute)
	_, ok = s.Lookup("tok")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Prune())
	assert.Equal(t, 0, s.Len())
}

func TestStore_PersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "idempotency.json")
	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	s, err := NewStore(path, WithClock(c.Now))
	require.NoError(t, err)
	assert.FileExists(t, path)

	s.Remember("tok", 200, "application/json", []byte(`{"ok":true}`), time.Hour)
	require.NoError(t, s.Save())

	reopened, err := NewStore(path, WithClock(c.Now))
	require.NoError(t, err)
	entry, ok := reopened.Lookup("tok")
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(entry.Body))
}

func TestStore_PruneKeepsLiveKeys(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s, err := NewStore("", WithClock(c.Now))
	require.NoError(t, err)

	s.CheckAndMark("short", time.Second)
	s.CheckAndMark("long", time.Hour)
	c.now = c.now.Add(time.Minute)

	assert.Equal(t, 1, s.Prune())
	assert.True(t, s.CheckAndMark("long", time.Hour))
}
