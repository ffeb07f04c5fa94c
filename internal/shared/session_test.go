package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/shared"
)

func newSessionManager(t *testing.T) (*shared.SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "sb_session", time.Hour, false), mr
}

func roundTrip(t *testing.T, sm *shared.SessionManager, sess *shared.Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, sess))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestSessionPersistsValuesAndFlashes(t *testing.T) {
	sm, _ := newSessionManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)

	sess.Set("k", "v")
	sess.SetUser("7", "admin")
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "saved"})
	cookie := roundTrip(t, sm, sess)
	require.Equal(t, sess.ID, cookie.Value)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "v", loaded.Get("k"))
	require.Equal(t, "7", loaded.User())
	require.Equal(t, "admin", loaded.Role())

	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	require.Equal(t, "saved", flash.Message)
	require.Nil(t, loaded.PopFlash())
}

func TestSessionUnknownCookieGetsFreshID(t *testing.T) {
	sm, _ := newSessionManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sb_session", Value: "attacker-chosen"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	require.NotEqual(t, "attacker-chosen", sess.ID)
	require.Empty(t, sess.User())
}

func TestSessionRenewDropsOldID(t *testing.T) {
	sm, mr := newSessionManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	sess.Set("x", "1")
	roundTrip(t, sm, sess)
	oldID := sess.ID
	require.True(t, mr.Exists("stockbook:session:"+oldID))

	require.NoError(t, sm.Renew(context.Background(), sess))
	roundTrip(t, sm, sess)
	require.NotEqual(t, oldID, sess.ID)
	require.False(t, mr.Exists("stockbook:session:"+oldID))
	require.True(t, mr.Exists("stockbook:session:"+sess.ID))
}

func TestSessionDestroyExpiresCookie(t *testing.T) {
	sm, mr := newSessionManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser("1", "staff")
	roundTrip(t, sm, sess)

	sm.Destroy(sess)
	cookie := roundTrip(t, sm, sess)
	require.Equal(t, -1, cookie.MaxAge)
	require.False(t, mr.Exists("stockbook:session:"+sess.ID))
}

func TestCSRFTokenLifecycle(t *testing.T) {
	sm, _ := newSessionManager(t)
	csrf := shared.NewCSRFManager("secret")
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	token := csrf.EnsureToken(sess)
	require.NotEmpty(t, token)
	require.Equal(t, token, csrf.EnsureToken(sess))

	require.NoError(t, csrf.VerifyToken(sess, token))
	require.ErrorIs(t, csrf.VerifyToken(sess, "forged"), shared.ErrCSRFTokenMismatch)
	require.ErrorIs(t, csrf.VerifyToken(sess, ""), shared.ErrCSRFTokenMissing)
}
