package transaction

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Flight is one entry of the status registry.
type Flight struct {
	Status      string `yaml:"status" toml:"status" json:"status"`
	Origin      string `yaml:"origin" toml:"origin" json:"origin"`
	Destination string `yaml:"destination" toml:"destination" json:"destination"`
}

// FlightRegistry answers status lookups by flight id. Ids are matched
// case-insensitively with spaces removed ("ai 1" finds "AI1").
type FlightRegistry struct {
	mu      sync.RWMutex
	flights map[string]Flight
}

// DefaultFlights is the built-in registry used when no file is configured.
func DefaultFlights() map[string]Flight {
	return map[string]Flight{
		"AI1": {Status: "On Time", Origin: "Mumbai", Destination: "Delhi"},
		"AI2": {Status: "Delayed", Origin: "Chennai", Destination: "Bangalore"},
	}
}

func NewFlightRegistry(flights map[string]Flight) *FlightRegistry {
	r := &FlightRegistry{flights: make(map[string]Flight, len(flights))}
	for id, f := range flights {
		r.flights[NormalizeFlightID(id)] = f
	}
	return r
}

type registryFile struct {
	Flights map[string]Flight `yaml:"flights" toml:"flights"`
}

// LoadFlightRegistry reads a .yaml/.yml or .toml file with a top-level
// "flights" table. An empty path yields the defaults.
func LoadFlightRegistry(path string) (*FlightRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return NewFlightRegistry(DefaultFlights()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flight registry: %w", err)
	}

	var parsed registryFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse flight registry: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse flight registry: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported flight registry format: %s", path)
	}

	return NewFlightRegistry(parsed.Flights), nil
}

func (r *FlightRegistry) Lookup(flightID string) (Flight, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flights[NormalizeFlightID(flightID)]
	return f, ok
}

// Put adds or replaces a flight.
func (r *FlightRegistry) Put(flightID string, f Flight) {
	r.mu.Lock()
	r.flights[NormalizeFlightID(flightID)] = f
	r.mu.Unlock()
}

func (r *FlightRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.flights))
	for id := range r.flights {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NormalizeFlightID upper-cases and strips whitespace and dashes.
func NormalizeFlightID(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if r == ' ' || r == '-' || r == '\t' || r == '.' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
