package transaction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFlightRegistry_Defaults(t *testing.T) {
	r, err := LoadFlightRegistry("")
	require.NoError(t, err)
	assert.Equal(t, []string{"AI1", "AI2"}, r.IDs())
}

func TestLoadFlightRegistry_YAML(t *testing.T) {
	path := writeFile(t, "flights.yaml", `
flights:
  ai-101:
    status: Boarding
    origin: Kolkata
    destination: Goa
`)

	r, err := LoadFlightRegistry(path)
	require.NoError(t, err)

	f, ok := r.Lookup("AI 101")
	require.True(t, ok)
	assert.Equal(t, Flight{Status: "Boarding", Origin: "Kolkata", Destination: "Goa"}, f)
	_, ok = r.Lookup("AI1")
	assert.False(t, ok)
}

func TestLoadFlightRegistry_TOML(t *testing.T) {
	path := writeFile(t, "flights.toml", `
[flights.AI202]
status = "Cancelled"
origin = "Pune"
destination = "Jaipur"
`)

	r, err := LoadFlightRegistry(path)
	require.NoError(t, err)

	f, ok := r.Lookup("ai202")
	require.True(t, ok)
	assert.Equal(t, "Cancelled", f.Status)
}

func TestLoadFlightRegistry_Errors(t *testing.T) {
	_, err := LoadFlightRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFlightRegistry(writeFile(t, "flights.json", `{}`))
	assert.Error(t, err)

	_, err = LoadFlightRegistry(writeFile(t, "flights.toml", `flights = [`))
	assert.Error(t, err)
}

func TestFlightRegistry_Put(t *testing.T) {
	r := NewFlightRegistry(nil)
	r.Put("ai-7", Flight{Status: "On Time", Origin: "Delhi", Destination: "Leh"})

	f, ok := r.Lookup("AI7")
	require.True(t, ok)
	assert.Equal(t, "Leh", f.Destination)
}

func TestNormalizeFlightID(t *testing.T) {
	assert.Equal(t, "AI101", NormalizeFlightID(" ai-1 0.1\t"))
	assert.Equal(t, "", NormalizeFlightID("  "))
}
