package api

import (
	"context"

	"boardsync/identity"
)

// Authenticator is implemented by types able to resolve the user behind an
// Authorization header.
type Authenticator interface {
	UserFromAuthHeader(string) (identity.User, error)
}

// Deduper prevents replayed mutations from being applied twice.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the mutation is rejected
	// so the client may retry.
	Remove(ctx context.Context, userID, key string) error
}
