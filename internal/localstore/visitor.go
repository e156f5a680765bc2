package localstore

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type setNXStore interface {
	SetNX(ctx context.Context, key, value string) (bool, error)
}

// VisitorID returns the profile's visitor identity, creating it on first use.
// Once written the value is never replaced.
func VisitorID(ctx context.Context, store Store) (string, error) {
	if id, ok, err := store.Get(ctx, VisitorIDKey); err != nil {
		return "", err
	} else if ok && strings.TrimSpace(id) != "" {
		return id, nil
	}

	id := uuid.NewString()
	if nx, ok := store.(setNXStore); ok {
		created, err := nx.SetNX(ctx, VisitorIDKey, id)
		if err != nil {
			return "", err
		}
		if !created {
			existing, _, err := store.Get(ctx, VisitorIDKey)
			if err != nil {
				return "", err
			}
			return existing, nil
		}
		return id, nil
	}

	if err := store.Set(ctx, VisitorIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}
