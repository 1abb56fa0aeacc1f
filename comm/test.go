package comm

import (
	"context"
	"github.com/outofforest/logger"
	"testing"
)

// RunInTest runs fn on a world of the given size with a logger installed in the
// context and fails the test if any rank returns an error.
func RunInTest(t *testing.T, size int, fn func(ctx context.Context, c *Comm) error) {
	t.Helper()

	world, err := NewWorld(size)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)

	if err := world.Run(ctx, fn); err != nil {
		t.Fatal(err)
	}
}

// NewTestContext returns a context carrying a logger, for tests that drive
// World.Run themselves.
func NewTestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)
	return ctx
}
