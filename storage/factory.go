package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/OV1-Kenobi/satnam-frost/interfaces"
)

// RepositoryFactory creates session repositories from URI strings so callers
// can select a backend through configuration alone.
type RepositoryFactory struct {
	log *slog.Logger
}

// NewRepositoryFactory creates a new factory instance.
func NewRepositoryFactory(log *slog.Logger) *RepositoryFactory {
	if log == nil {
		log = slog.Default()
	}
	return &RepositoryFactory{log: log}
}

// RepositoryFor creates a session repository from a location URI.
//
// Supported schemes:
//   - memory:// - In-process storage for tests and embedded deployments
//   - postgres:// - PostgreSQL via pgx, URI passed through as the connection string
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *RepositoryFactory) RepositoryFor(ctx context.Context, locationURI string) (interfaces.SessionRepository, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid repository URI: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		f.log.Debug("Creating in-memory session repository")
		return NewMemoryRepository(), nil
	case "postgres", "postgresql":
		f.log.Debug("Creating PostgreSQL session repository", slog.String("host", u.Host))
		return ConnectPostgres(ctx, locationURI, f.log)
	default:
		return nil, fmt.Errorf("unsupported repository scheme: %s", u.Scheme)
	}
}
