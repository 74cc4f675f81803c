package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"linkgraph/application/ports"
	"linkgraph/infrastructure/persistence/repotest"
)

func TestLinkRepository_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) ports.LinkRepository {
		return NewLinkRepository()
	})
}

func TestLinkRepository_CanceledContext(t *testing.T) {
	repo := NewLinkRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.FindByID(ctx, "id", "acme")

	assert.ErrorIs(t, err, context.Canceled)
}
