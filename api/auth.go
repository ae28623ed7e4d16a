package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token scopes. Write implies read.
const (
	ScopeRead  = "pki:read"
	ScopeWrite = "pki:write"
)

// MinTokenSecretLen is the shortest HMAC key accepted for signing tokens.
const MinTokenSecretLen = 32

const tokenLeeway = 30 * time.Second

// Claims is the bearer token payload accepted by the API.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) allows(scope string) bool {
	scopes := strings.Fields(c.Scope)
	if slices.Contains(scopes, scope) {
		return true
	}
	return scope == ScopeRead && slices.Contains(scopes, ScopeWrite)
}

// IssueToken signs an HS256 token for subject carrying scopes, valid for ttl
// from now. audience may be empty.
func IssueToken(secret []byte, subject, audience string, scopes []string, ttl time.Duration) (string, error) {
	if len(secret) < MinTokenSecretLen {
		return "", fmt.Errorf("token secret must be at least %d bytes", MinTokenSecretLen)
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	for _, s := range scopes {
		if s != ScopeRead && s != ScopeWrite {
			return "", fmt.Errorf("unknown scope %q", s)
		}
	}
	now := time.Now()
	claims := Claims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// tokenAuth verifies HS256 bearer tokens.
type tokenAuth struct {
	secret   []byte
	audience string
}

func (ta *tokenAuth) parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(tokenLeeway),
	}
	if ta.audience != "" {
		opts = append(opts, jwt.WithAudience(ta.audience))
	}
	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return ta.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// requireScope rejects requests without a valid token carrying scope. It is
// a no-op when token auth is not configured.
func (a *API) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if a.auth == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="ironpki"`)
				writeError(w, http.StatusUnauthorized, "bearer token required")
				return
			}
			claims, err := a.auth.parse(raw)
			if err != nil {
				a.audit.log(AuditAuthFailed, r, errors.New("invalid token"))
				w.Header().Set("WWW-Authenticate", `Bearer realm="ironpki", error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if !claims.allows(scope) {
				a.audit.log(AuditAuthFailed, r, errors.New("insufficient scope"), slog.String("subject", claims.Subject), slog.String("scope", scope))
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="ironpki", error="insufficient_scope", scope=%q`, scope))
				writeError(w, http.StatusForbidden, "token lacks scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
