package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ai-compare-chat-go/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	clientIDKey contextKey = "client_id"
)

// Identity resolves an optional user identity from requests. A valid bearer
// token yields an opaque user id, which is the sole trigger for remote sync.
// Requests without one proceed anonymously under a per-request client id.
type Identity struct {
	enabled bool
	secret  []byte
	logger  *logrus.Logger
}

// NewIdentity creates identity middleware
func NewIdentity(cfg *config.AuthConfig, logger *logrus.Logger) *Identity {
	return &Identity{
		enabled: cfg.Enabled,
		secret:  []byte(cfg.JWTSecret),
		logger:  logger,
	}
}

// Middleware attaches the resolved identity to the request context. Invalid
// tokens are treated as anonymous, never rejected: identity only gates sync.
func (a *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		clientID := r.Header.Get("X-Client-ID")
		if clientID == "" {
			clientID = uuid.NewString()
		}
		ctx = context.WithValue(ctx, clientIDKey, clientID)

		if a.enabled {
			if userID, err := a.parseToken(r); err != nil {
				a.logger.WithError(err).Debug("Bearer token rejected, proceeding anonymously")
			} else if userID != "" {
				ctx = context.WithValue(ctx, userIDKey, userID)
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Identity) parseToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", nil
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("malformed authorization header")
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return sub, nil
}

// UserID returns the authenticated user id from the context, or empty when
// anonymous.
func UserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// ClientID returns the per-request client id used for rate limiting.
func ClientID(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDKey).(string); ok {
		return v
	}
	return ""
}
