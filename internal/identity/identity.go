// Package identity resolves who is calling and what they may do in a
// session. Tokens are HS256 JWTs whose subject is the user id; in dev mode a
// plain X-User-ID header is trusted instead.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/store"
)

var ErrUnauthenticated = errors.New("unauthenticated")

const DevUserHeader = "X-User-ID"

// Lookup is the part of the store needed to derive capabilities.
type Lookup interface {
	GetSession(ctx context.Context, id string) (engine.Session, error)
	GetTeam(ctx context.Context, id string) (engine.Team, error)
}

type Options struct {
	Secret         string
	AllowDevHeader bool
	Lookup         Lookup
}

type Resolver struct {
	secret   []byte
	allowDev bool
	lookup   Lookup
}

func NewResolver(opts Options) *Resolver {
	return &Resolver{secret: []byte(opts.Secret), allowDev: opts.AllowDevHeader, lookup: opts.Lookup}
}

// IssueToken signs a token for userID. The server itself never issues
// tokens; this serves tests and local tooling.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtlib.RegisteredClaims{
		Subject:   userID,
		Issuer:    "brainstorm",
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (r *Resolver) ParseToken(token string) (string, error) {
	if len(r.secret) == 0 {
		return "", fmt.Errorf("%w: token auth disabled", ErrUnauthenticated)
	}
	claims := &jwtlib.RegisteredClaims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(*jwtlib.Token) (any, error) {
		return r.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// UserID authenticates a request: a bearer token, a "token" query parameter
// (browsers cannot set headers on websocket upgrades), or the dev header.
func (r *Resolver) UserID(req *http.Request) (string, error) {
	if h := req.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return "", fmt.Errorf("%w: malformed authorization header", ErrUnauthenticated)
		}
		return r.ParseToken(strings.TrimSpace(token))
	}
	if token := req.URL.Query().Get("token"); token != "" {
		return r.ParseToken(token)
	}
	if r.allowDev {
		if id := strings.TrimSpace(req.Header.Get(DevUserHeader)); id != "" {
			return id, nil
		}
		if id := strings.TrimSpace(req.URL.Query().Get("user")); id != "" {
			return id, nil
		}
	}
	return "", ErrUnauthenticated
}

func (r *Resolver) ForTeam(ctx context.Context, teamID, userID string) (engine.Caller, error) {
	team, err := r.lookup.GetTeam(ctx, teamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.Caller{}, fmt.Errorf("%w: team %s", engine.ErrNotFound, teamID)
		}
		return engine.Caller{}, fmt.Errorf("load team: %w", err)
	}
	return engine.CallerFor(team, userID), nil
}

func (r *Resolver) ForSession(ctx context.Context, sessionID, userID string) (engine.Caller, error) {
	sess, err := r.lookup.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.Caller{}, fmt.Errorf("%w: session %s", engine.ErrNotFound, sessionID)
		}
		return engine.Caller{}, fmt.Errorf("load session: %w", err)
	}
	return r.ForTeam(ctx, sess.TeamID, userID)
}

type ctxKey struct{}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
