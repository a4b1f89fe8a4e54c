package memory

import (
	"context"
	"strings"
)

// NewStore selects the backend from configuration: a blank database URL
// yields the in-memory store, anything else must be a reachable postgres DSN.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	dsn := strings.TrimSpace(databaseURL)
	if dsn == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, dsn)
}
