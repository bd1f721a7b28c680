package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/core"
)

// PartnerClaims are the bearer token claims the API reads. Subject identifies
// the user; ParceiroID, when present, the TVDE partner recorded in audit.
type PartnerClaims struct {
	ParceiroID string `json:"parceiro_id,omitempty"`
	jwt.RegisteredClaims
}

// Partner returns the partner id, falling back to the subject.
func (c *PartnerClaims) Partner() string {
	if c.ParceiroID != "" {
		return c.ParceiroID
	}
	return c.Subject
}

var errMissingBearer = errors.New("missing bearer token")

// SessionCookie holds the API token for browser forms, which cannot send an
// Authorization header.
const SessionCookie = "frota_sessao"

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", errMissingBearer
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("invalid authorization header format")
	}
	return strings.TrimSpace(token), nil
}

// requestToken reads the bearer token, falling back to the session cookie
// when the request has no Authorization header.
func requestToken(r *http.Request) (string, error) {
	raw, err := bearerToken(r)
	if errors.Is(err, errMissingBearer) {
		if c, cerr := r.Cookie(SessionCookie); cerr == nil && c.Value != "" {
			return c.Value, nil
		}
	}
	return raw, err
}

// SetSession stores a validated token in the session cookie. The cookie
// expires with the token.
func SetSession(w http.ResponseWriter, r *http.Request, token string, claims *PartnerClaims) {
	c := &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	}
	if claims.ExpiresAt != nil {
		c.Expires = claims.ExpiresAt.Time
	}
	http.SetCookie(w, c)
}

// HasSession reports whether r carries a session cookie with a valid token.
func HasSession(r *http.Request, secret, issuer string) bool {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return false
	}
	_, err = ParseToken(c.Value, []byte(secret), issuer)
	return err == nil
}

// ParseToken validates an HS256 token and returns its claims. A non-empty
// issuer must match the iss claim.
func ParseToken(tokenString string, secret []byte, issuer string) (*PartnerClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &PartnerClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*PartnerClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// BearerAuth rejects requests without a valid HS256 token signed with
// secret and attaches the partner id to the request context for audit. The
// token comes from the Authorization header or, without one, from the
// session cookie. An empty secret disables the check.
func BearerAuth(secret, issuer string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := requestToken(r)
			if err != nil {
				slog.Warn("auth: missing or malformed bearer token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, "Autenticação necessária", "AUTH001")
				return
			}

			claims, err := ParseToken(raw, key, issuer)
			if err != nil {
				slog.Warn("auth: invalid bearer token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				writeAuthError(w, "Sessão inválida ou expirada", "AUTH002")
				return
			}

			ctx := core.ContextWithPartner(r.Context(), claims.Partner())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  msg,
		"detail": msg,
		"action": "Inicie sessão novamente",
		"code":   code,
	})
}
