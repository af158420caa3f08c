package patterns

import (
	"context"

	"github.com/sentinelstack/sentinel-heal/internal/models"
)

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, patterns []models.PrecedingPattern) error

// StorePatterns implements Store.
func (f StoreFunc) StorePatterns(ctx context.Context, patterns []models.PrecedingPattern) error {
	return f(ctx, patterns)
}
