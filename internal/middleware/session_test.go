package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureID(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = SessionID(r.Context())
	})
}

func TestSessionsIssuesCookie(t *testing.T) {
	sessions, err := NewSessions("secret", false, nil)
	require.NoError(t, err)

	var id string
	rec := httptest.NewRecorder()
	sessions.Handler(captureID(&id)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, id)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	got, err := sessions.Verify(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestSessionsReusesValidCookie(t *testing.T) {
	sessions, err := NewSessions("secret", false, nil)
	require.NoError(t, err)
	value, err := sessions.Sign("browser-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: value})
	rec := httptest.NewRecorder()

	var id string
	sessions.Handler(captureID(&id)).ServeHTTP(rec, req)

	assert.Equal(t, "browser-1", id)
	assert.Empty(t, rec.Result().Cookies())
}

func TestSessionsReplacesForgedCookie(t *testing.T) {
	issuer, err := NewSessions("other-secret", false, nil)
	require.NoError(t, err)
	forged, err := issuer.Sign("browser-1")
	require.NoError(t, err)

	sessions, err := NewSessions("secret", false, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: forged})
	rec := httptest.NewRecorder()

	var id string
	sessions.Handler(captureID(&id)).ServeHTTP(rec, req)

	assert.NotEqual(t, "browser-1", id)
	assert.Len(t, rec.Result().Cookies(), 1)
}

func TestVerifyRejectsExpiredCookie(t *testing.T) {
	sessions, err := NewSessions("secret", false, nil)
	require.NoError(t, err)
	start := time.Now()
	sessions.now = func() time.Time { return start }
	value, err := sessions.Sign("browser-1")
	require.NoError(t, err)

	sessions.now = func() time.Time { return start.Add(cookieTTL + time.Hour) }
	_, err = sessions.Verify(value)
	assert.Error(t, err)
}

func TestRandomKeyWhenSecretEmpty(t *testing.T) {
	a, err := NewSessions("", false, nil)
	require.NoError(t, err)
	b, err := NewSessions("", false, nil)
	require.NoError(t, err)

	value, err := a.Sign("browser-1")
	require.NoError(t, err)
	_, err = b.Verify(value)
	assert.Error(t, err)
}
