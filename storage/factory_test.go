package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryFactory(t *testing.T) {
	ctx := context.Background()
	factory := NewRepositoryFactory(nil)

	repo, err := factory.RepositoryFor(ctx, "memory://")
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepository{}, repo)

	_, err = factory.RepositoryFor(ctx, "redis://localhost:6379")
	assert.Error(t, err)

	_, err = factory.RepositoryFor(ctx, "://bad")
	assert.Error(t, err)
}
