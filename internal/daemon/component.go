package daemon

import (
	"context"
	"slices"
)

type HealthStatus string

const (
	StatusStarting HealthStatus = "starting"
	StatusRunning  HealthStatus = "running"
	StatusStopping HealthStatus = "stopping"
	StatusStopped  HealthStatus = "stopped"
)

type ComponentHealth struct {
	Name    string
	Healthy bool
	Error   error
}

// Component is one piece of the bridge with a managed lifecycle. Dependencies
// name components that must be initialized and started first and stopped last.
type Component interface {
	Name() string
	Dependencies() []string
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (*ComponentHealth, error)
}

// Unhealthy returns the sorted names of unhealthy entries in report.
func Unhealthy(report map[string]*ComponentHealth) []string {
	var names []string
	for name, h := range report {
		if h == nil || !h.Healthy {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
