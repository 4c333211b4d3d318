// Package auth verifies bearer credentials and carries the resulting actor
// through the request context. Mutating workflows refuse to run without one.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is a verified caller.
type Identity struct {
	Actor   string
	Subject string
	Claims  jwt.MapClaims
}

// Verifier turns a raw bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type actorKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, actorKey{}, id)
}

// WithActor stores a bare actor name in ctx, for trusted in-process callers
// such as the CLI or the inbox.
func WithActor(ctx context.Context, actor string) context.Context {
	return WithIdentity(ctx, &Identity{Actor: actor})
}

// IdentityFrom returns the identity in ctx, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(actorKey{}).(*Identity)
	return id
}

// ActorFrom returns the verified actor in ctx, or "".
func ActorFrom(ctx context.Context) string {
	if id := IdentityFrom(ctx); id != nil {
		return id.Actor
	}
	return ""
}

// Anonymous accepts every request as the given actor (auth disabled).
type Anonymous string

// Verify implements Verifier.
func (a Anonymous) Verify(_ context.Context, _ string) (*Identity, error) {
	return &Identity{Actor: string(a)}, nil
}

// StaticToken accepts a single shared secret.
type StaticToken struct {
	Token string
	Actor string
}

// Verify implements Verifier.
func (s StaticToken) Verify(_ context.Context, token string) (*Identity, error) {
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		return nil, errors.New("invalid token")
	}
	actor := s.Actor
	if actor == "" {
		actor = "token"
	}
	return &Identity{Actor: actor}, nil
}

// JWT verifies HS256-signed tokens and pins issuer, audience and
// optionally the subject (e.g. "repo:owner/name:ref:refs/heads/main").
type JWT struct {
	Secret   []byte
	Issuer   string
	Audience string
	Subject  string
	Leeway   time.Duration
}

// Verify implements Verifier.
func (v JWT) Verify(_ context.Context, token string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithLeeway(v.Leeway)}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v (only HS256 allowed)", t.Header["alg"])
		}
		return v.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("token verification failed: invalid token")
	}

	sub, _ := claims.GetSubject()
	if v.Subject != "" && sub != v.Subject {
		return nil, errors.New("token verification failed: unexpected subject")
	}
	actor := sub
	if actor == "" {
		actor = v.Issuer
	}
	return &Identity{Actor: actor, Subject: sub, Claims: claims}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return tok, tok != ""
}
