// Package storage defines how energymonitor reaches the runs it analyses.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrissnell/energymonitor/internal/energy"
	"github.com/google/uuid"
)

// ErrNotFound is returned when the requested user or project does not exist.
var ErrNotFound = errors.New("not found")

// RunStore is a backend that holds users' projects and their runs.
type RunStore interface {
	// GetRuns returns the runs of one project, sorted by run name.
	GetRuns(ctx context.Context, user, project string) ([]energy.Run, error)
	// GetAllProjects returns every project of a user with its runs, in the
	// order the projects were created.
	GetAllProjects(ctx context.Context, user string) ([]energy.ProjectRuns, error)
	// ListProjects returns a user's project names in creation order.
	ListProjects(ctx context.Context, user string) ([]string, error)
	// AddProject creates an empty project. It reports false when the project
	// already existed.
	AddProject(ctx context.Context, user, project string) (bool, error)
	// SaveRun stores a raw run document under project and returns the run's
	// name, generating one when runName is empty.
	SaveRun(ctx context.Context, user, project, runName string, fields map[string]any) (string, error)
	Close() error
}

// NotFoundf wraps ErrNotFound with a description of what was missing.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// RunName returns name, or a freshly generated one when name is empty.
func RunName(name string) string {
	if name != "" {
		return name
	}
	return "run-" + uuid.New().String()
}
