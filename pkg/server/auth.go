package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/Juliapixel/projeto-goodwe/pkg/log"
)

// tokenVerifier validates a raw bearer token and returns its subject.
type tokenVerifier func(ctx context.Context, rawToken string) (string, error)

// hs256Verifier accepts compact JWTs signed with the shared key. An expiry
// claim is required.
func hs256Verifier(key []byte, now func() time.Time) tokenVerifier {
	return func(ctx context.Context, rawToken string) (string, error) {
		tok, err := jwt.ParseSigned(rawToken, []jose.SignatureAlgorithm{jose.HS256})
		if err != nil {
			return "", fmt.Errorf("failed to parse token: %w", err)
		}
		var claims jwt.Claims
		if err := tok.Claims(key, &claims); err != nil {
			return "", fmt.Errorf("failed to verify token: %w", err)
		}
		if claims.Expiry == nil {
			return "", errors.New("token has no expiry")
		}
		if err := claims.ValidateWithLeeway(jwt.Expected{Time: now()}, jwt.DefaultLeeway); err != nil {
			return "", err
		}
		return claims.Subject, nil
	}
}

func oidcVerifier(v *oidc.IDTokenVerifier) tokenVerifier {
	return func(ctx context.Context, rawToken string) (string, error) {
		idToken, err := v.Verify(ctx, rawToken)
		if err != nil {
			return "", err
		}
		return idToken.Subject, nil
	}
}

func (s *Server) authenticateToken(ctx context.Context, token string) (string, error) {
	var errs []error
	for name, verifier := range s.verifiers {
		subject, err := verifier(ctx, token)
		if err == nil {
			return subject, nil
		}
		errs = append(errs, fmt.Errorf("%s verifier failed: %w", name, err))
	}
	if len(errs) == 0 {
		return "", errors.New("no token verifier configured")
	}
	return "", errors.Join(errs...)
}

// requestMiddleware attaches a request scoped logger.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := log.WithAttrs(r.Context(), slog.String("reqPath", r.URL.Path), slog.String("reqID", reqID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware requires a valid bearer token unless no verifier is
// configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.bypassAuth {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Ctx(ctx).WarnContext(ctx, "missing auth header")
			writeJSONError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			log.Ctx(ctx).WarnContext(ctx, "invalid auth header")
			writeJSONError(w, "invalid auth header", http.StatusUnauthorized)
			return
		}

		subject, err := s.authenticateToken(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "auth token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		ctx = log.WithAttrs(ctx, slog.String("subject", subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
