package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	return NewStore(Options{
		HashKey: []byte("0123456789abcdef0123456789abcdef"),
		TTL:     time.Hour,
	}, zaptest.NewLogger(t))
}

func TestCreateGetDelete(t *testing.T) {
	st := newTestStore(t)

	s := st.Create(domain.Session{Token: "jwt", UserID: 7, Role: domain.RoleAdmin})
	require.NotEmpty(t, s.ID)
	assert.False(t, s.IssuedAt.IsZero())

	got, ok := st.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, int64(7), got.UserID)

	st.Delete(s.ID)
	_, ok = st.Get(s.ID)
	assert.False(t, ok)
}

func TestSessionsExpire(t *testing.T) {
	st := newTestStore(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	a := st.Create(domain.Session{UserID: 1})
	now = now.Add(30 * time.Minute)
	b := st.Create(domain.Session{UserID: 2})

	now = now.Add(45 * time.Minute)
	_, ok := st.Get(a.ID)
	assert.False(t, ok)
	_, ok = st.Get(b.ID)
	assert.True(t, ok)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, st.CleanExpired())
	assert.Equal(t, 0, st.Len())
}

func TestCookieRoundTrip(t *testing.T) {
	st := newTestStore(t)
	s := st.Create(domain.Session{UserID: 9, Role: domain.RoleAdmin})

	rec := httptest.NewRecorder()
	require.NoError(t, st.WriteCookie(rec, s))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotEqual(t, s.ID, cookies[0].Value)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	got, err := st.FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestTamperedCookieRejected(t *testing.T) {
	st := newTestStore(t)
	s := st.Create(domain.Session{UserID: 9})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: defaultCookieName, Value: s.ID})
	_, err := st.FromRequest(req)
	assert.ErrorIs(t, err, ErrNoSession)

	other := NewStore(Options{HashKey: []byte("fedcba9876543210fedcba9876543210")}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	require.NoError(t, other.WriteCookie(rec, s))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	_, err = st.FromRequest(req)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = st.FromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestClearCookie(t *testing.T) {
	st := newTestStore(t)
	rec := httptest.NewRecorder()
	st.ClearCookie(rec)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
