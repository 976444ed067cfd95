package api

import (
	"errors"
	"unsafe"

	"boardsync/identity"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

var bearerPrefix = [...]byte{'B', 'e', 'a', 'r', 'e', 'r', ' '}

// TokenAuth resolves users from bearer JWTs.
type TokenAuth struct {
	verifier *identity.Verifier
}

// NewTokenAuth creates an Authenticator backed by the given verifier.
func NewTokenAuth(verifier *identity.Verifier) *TokenAuth {
	if verifier == nil {
		panic("api.NewTokenAuth: verifier is nil")
	}
	return &TokenAuth{verifier: verifier}
}

// UserFromAuthHeader extracts and verifies the bearer token from a raw
// Authorization header value.
func (a *TokenAuth) UserFromAuthHeader(h string) (identity.User, error) {
	if h == "" {
		return identity.User{}, errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return identity.User{}, err
	}
	return a.verifier.UserFromToken(readOnlyString(token))
}

// bearerTokenFromString slices the JWT out of an Authorization header without
// allocating. The returned bytes alias the input and must not be mutated.
func bearerTokenFromString(raw string) ([]byte, error) {
	start := 0
	end := len(raw)
	for start < end && raw[start] == ' ' {
		start++
	}
	for end > start && raw[end-1] == ' ' {
		end--
	}
	if start >= end {
		return nil, errMissingAuthorization
	}
	trimmed := raw[start:end]
	tokenBytes := readOnlyBytes(trimmed)
	if len(tokenBytes) <= len(bearerPrefix) {
		return nil, errBadAuthorization
	}
	if !hasBearerPrefix(tokenBytes) {
		return nil, errBadAuthorization
	}
	tokenBytes = tokenBytes[len(bearerPrefix):]
	if countByte(tokenBytes, '.') != 2 {
		return nil, errBadAuthorization
	}
	return tokenBytes, nil
}

func hasBearerPrefix(value []byte) bool {
	if len(value) < len(bearerPrefix) {
		return false
	}
	for i := range bearerPrefix {
		if value[i] != bearerPrefix[i] {
			return false
		}
	}
	return true
}

func countByte(buf []byte, target byte) int {
	count := 0
	for _, b := range buf {
		if b == target {
			count++
		}
	}
	return count
}

func readOnlyBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func readOnlyString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
