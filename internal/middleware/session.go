package middleware

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CookieName holds the signed browser session id.
const CookieName = "maxai_session"

const cookieTTL = 30 * 24 * time.Hour

type sessionIDKey struct{}

// Sessions issues and verifies the browser session cookie.
type Sessions struct {
	key    []byte
	secure bool
	logger *zap.Logger
	now    func() time.Time
}

// NewSessions signs cookies with secret. An empty secret gets a random key.
func NewSessions(secret string, secure bool, logger *zap.Logger) (*Sessions, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{key: key, secure: secure, logger: logger.Named("cookie"), now: time.Now}, nil
}

// Handler resolves the session id for every request, issuing a new cookie
// when the browser has none or presents an invalid one.
func (s *Sessions) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.read(r)
		if err != nil {
			if !errors.Is(err, http.ErrNoCookie) {
				s.logger.Debug("rejecting session cookie", zap.Error(err))
			}
			id = uuid.NewString()
			if err := s.write(w, id); err != nil {
				s.logger.Error("failed to issue session cookie", zap.Error(err))
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
	})
}

// Sign returns a cookie value for id.
func (s *Sessions) Sign(id string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(cookieTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify returns the session id carried by value.
func (s *Sessions) Verify(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	if claims.ID == "" {
		return "", errors.New("session cookie has no id")
	}
	return claims.ID, nil
}

func (s *Sessions) read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", err
	}
	return s.Verify(cookie.Value)
}

func (s *Sessions) write(w http.ResponseWriter, id string) error {
	value, err := s.Sign(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(cookieTTL / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// WithSessionID stores id on ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionID returns the browser session id resolved by Sessions.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}
