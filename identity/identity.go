// Package identity resolves the user on whose behalf the task store talks to
// the remote row store. The store only ever asks "who is the current user";
// sign-in, sign-up and credential updates live outside this module.
package identity

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned when no current user can be resolved. The
// task store treats it as a silent no-op so pre-auth render passes never
// fail loudly.
var ErrUnauthenticated = errors.New("no authenticated user")

// User identifies an authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Provider resolves the current user.
type Provider interface {
	CurrentUser(ctx context.Context) (User, error)
}

// Static always resolves to a fixed user. Server-side sessions pin one Static
// per store; tests use it to simulate signed-in and signed-out states.
type Static struct {
	User User
}

// NewStatic creates a Static provider for the given user id.
func NewStatic(userID string) Static {
	return Static{User: User{ID: userID}}
}

func (s Static) CurrentUser(context.Context) (User, error) {
	if s.User.ID == "" {
		return User{}, ErrUnauthenticated
	}
	return s.User, nil
}

// Anonymous never resolves a user.
type Anonymous struct{}

func (Anonymous) CurrentUser(context.Context) (User, error) {
	return User{}, ErrUnauthenticated
}
