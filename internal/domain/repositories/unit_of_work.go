package repositories

import "context"

// UnitOfWork executes a function within a database transaction scope.
// Repositories called with the inner context participate in the same
// transaction; the commit point is atomic.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
