package identity

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	envTestMode         = "AUTH_TEST_MODE"
	envTestJWTSecret    = "TEST_JWT_SECRET"
	envLocalAuthMode    = "LOCAL_AUTH_MODE"
	envLocalAuthSecret  = "LOCAL_AUTH_SHARED_SECRET"
	envJWKSCacheTTL     = "JWKS_CACHE_TTL"
)

// Verifier validates bearer JWTs and extracts the user they represent.
type Verifier struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewVerifier creates a Verifier. When LOCAL_AUTH_MODE=hs256 or
// AUTH_TEST_MODE=1 is set, tokens are verified against a shared HS256 secret
// instead of the JWKS endpoint.
func NewVerifier(jwks *keyfunc.JWKS, audience, issuer string) *Verifier {
	v := &Verifier{JWKS: jwks, Audience: audience, Issuer: issuer}
	v.keyCacheTTL = parseCacheTTL()

	if mode := strings.ToLower(os.Getenv(envLocalAuthMode)); mode != "" {
		switch mode {
		case "hs256":
			secret := os.Getenv(envLocalAuthSecret)
			if secret == "" {
				panic("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
			}
			v.TestMode = true
			v.TestSecret = []byte(secret)
		default:
			panic("unsupported LOCAL_AUTH_MODE value")
		}
	} else if os.Getenv(envTestMode) == "1" {
		secret := os.Getenv(envTestJWTSecret)
		if secret == "" {
			panic("TEST_JWT_SECRET must be set when AUTH_TEST_MODE=1")
		}
		v.TestMode = true
		v.TestSecret = []byte(secret)
	}

	if v.TestMode {
		v.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		v.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return v
}

func parseCacheTTL() time.Duration {
	ttl := defaultJWKSCacheTTL
	if raw := os.Getenv(envJWKSCacheTTL); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			panic("invalid JWKS_CACHE_TTL")
		}
		ttl = parsed
	}
	return ttl
}

// UserFromToken verifies the raw JWT and returns the user it identifies.
func (v *Verifier) UserFromToken(tokenStr string) (User, error) {
	if tokenStr == "" {
		return User{}, ErrUnauthenticated
	}

	var parsedToken *jwt.Token
	var err error
	if v.TestMode {
		parsedToken, err = v.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return v.TestSecret, nil
		})
	} else {
		parsedToken, err = v.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			return v.keyForToken(t)
		})
	}
	if err != nil {
		return User{}, err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return User{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return User{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return User{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return User{}, errors.New("token used before issued")
	}
	if v.Audience != "" && !claims.VerifyAudience(v.Audience, false) {
		return User{}, errors.New("invalid audience")
	}
	if v.Issuer != "" && !claims.VerifyIssuer(v.Issuer, false) {
		return User{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return User{}, errors.New("missing sub")
	}

	user := User{ID: sub}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	return user, nil
}

func (v *Verifier) keyForToken(token *jwt.Token) (any, error) {
	if v.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && v.keyCacheTTL > 0 {
		if cached, ok := v.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			v.keyCache.Delete(kid)
		}
	}

	key, err := v.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && v.keyCacheTTL > 0 {
		v.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(v.keyCacheTTL)})
	}
	return key, nil
}

// TokenProvider resolves the current user from a bearer token supplied per
// call, e.g. the session token a browser holds.
type TokenProvider struct {
	verifier *Verifier
	source   func(ctx context.Context) (string, error)
}

// NewTokenProvider creates a provider that pulls a token from source on each
// resolution.
func NewTokenProvider(verifier *Verifier, source func(ctx context.Context) (string, error)) *TokenProvider {
	if verifier == nil {
		panic("identity.NewTokenProvider: verifier is nil")
	}
	if source == nil {
		panic("identity.NewTokenProvider: source is nil")
	}
	return &TokenProvider{verifier: verifier, source: source}
}

func (p *TokenProvider) CurrentUser(ctx context.Context) (User, error) {
	token, err := p.source(ctx)
	if err != nil || token == "" {
		return User{}, ErrUnauthenticated
	}
	user, err := p.verifier.UserFromToken(token)
	if err != nil {
		return User{}, ErrUnauthenticated
	}
	return user, nil
}
