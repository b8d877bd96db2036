package memory

import (
	"context"
	"strings"
)

// NewStore picks a backend from the database URL: empty is in-memory, postgres://
// or postgresql:// is Postgres, sqlite:// (or a bare *.db path) is SQLite.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case u == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(u, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(u, "sqlite://"))
	case strings.HasPrefix(u, "sqlite:"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(u, "sqlite:"))
	case strings.HasSuffix(u, ".db"), strings.HasSuffix(u, ".sqlite"):
		return NewSQLiteStore(ctx, u)
	default:
		return NewPostgresStore(ctx, u)
	}
}
