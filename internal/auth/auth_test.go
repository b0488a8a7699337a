package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/hpungsan/stravagpx/internal/config"
	"github.com/hpungsan/stravagpx/internal/db"
	"github.com/hpungsan/stravagpx/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

// tokenServer answers token requests with a fresh token per call and records the last form.
type tokenServer struct {
	*httptest.Server
	calls    atomic.Int32
	lastForm atomic.Value
	status   int
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{status: http.StatusOK}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		ts.lastForm.Store(r.PostForm)
		n := ts.calls.Add(1)

		w.Header().Set("Content-Type", "application/json")
		if ts.status != http.StatusOK {
			w.WriteHeader(ts.status)
			w.Write([]byte(`{"message": "Bad Request", "errors": [{"resource": "RefreshToken", "field": "refresh_token", "code": "invalid"}]}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token_type":    "Bearer",
			"access_token":  "access-" + string(rune('0'+n)),
			"refresh_token": "refresh-" + string(rune('0'+n)),
			"expires_in":    21600,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) form() url.Values {
	v, _ := ts.lastForm.Load().(url.Values)
	return v
}

func testConfig(tokenURL string) *oauth2.Config {
	cfg := config.DefaultConfig()
	cfg.TokenURL = tokenURL
	return OAuthConfig(cfg, "123", "s3cret")
}

func TestOAuthConfig(t *testing.T) {
	conf := OAuthConfig(config.DefaultConfig(), "123", "s3cret")
	require.Equal(t, "123", conf.ClientID)
	require.Equal(t, config.DefaultTokenURL, conf.Endpoint.TokenURL)
	require.Equal(t, oauth2.AuthStyleInParams, conf.Endpoint.AuthStyle)
	require.Equal(t, []string{"activity:read_all"}, conf.Scopes)

	u, err := url.Parse(AuthorizeURL(conf))
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "www.strava.com", u.Host)
	require.Equal(t, "123", q.Get("client_id"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "http://localhost", q.Get("redirect_uri"))
	require.Equal(t, "activity:read_all", q.Get("scope"))
	require.Equal(t, "force", q.Get("approval_prompt"))
}

func TestCodeFromURL(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		code      string
		expectErr bool
	}{
		{name: "redirect", raw: "http://localhost/?state=&code=abc123&scope=read,activity:read_all", code: "abc123"},
		{name: "surrounding whitespace", raw: "  http://localhost/?code=xyz\n", code: "xyz"},
		{name: "denied", raw: "http://localhost/?state=&error=access_denied", expectErr: true},
		{name: "no code", raw: "http://localhost/", expectErr: true},
		{name: "not a url", raw: "http://[::1", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := CodeFromURL(tt.raw)
			if tt.expectErr {
				require.True(t, errors.Is(err, errors.ErrInvalidRequest), "err = %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.code, code)
		})
	}
}

func TestExchange_SavesToken(t *testing.T) {
	ts := newTokenServer(t)
	store := newTestStore(t)

	tok, err := Exchange(context.Background(), testConfig(ts.URL), store, "abc123")
	require.NoError(t, err)
	require.Equal(t, "access-1", tok.AccessToken)

	form := ts.form()
	require.Equal(t, "authorization_code", form.Get("grant_type"))
	require.Equal(t, "abc123", form.Get("code"))
	require.Equal(t, "123", form.Get("client_id"), "credentials sent as params")
	require.Equal(t, "s3cret", form.Get("client_secret"))

	saved, err := store.Token()
	require.NoError(t, err)
	require.Equal(t, "access-1", saved.AccessToken)
	require.Equal(t, "refresh-1", saved.RefreshToken)
	require.WithinDuration(t, time.Now().Add(6*time.Hour), saved.Expiry, time.Minute)
}

func TestExchange_Rejected(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadRequest
	store := newTestStore(t)

	_, err := Exchange(context.Background(), testConfig(ts.URL), store, "bad")
	require.True(t, errors.Is(err, errors.ErrUnauthorized), "err = %v", err)

	_, err = store.Token()
	require.True(t, errors.Is(err, errors.ErrUnauthorized), "nothing saved")
}

func TestTokenSource_NotAuthorized(t *testing.T) {
	store := newTestStore(t)

	_, err := TokenSource(context.Background(), testConfig("http://unused"), store, zerolog.Nop())
	require.True(t, errors.Is(err, errors.ErrUnauthorized), "err = %v", err)
}

func TestTokenSource_ReusesValidToken(t *testing.T) {
	ts := newTokenServer(t)
	store := newTestStore(t)
	require.NoError(t, store.SaveToken(&oauth2.Token{
		AccessToken:  "stored",
		RefreshToken: "r0",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}))

	src, err := TokenSource(context.Background(), testConfig(ts.URL), store, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		tok, err := src.Token()
		require.NoError(t, err)
		require.Equal(t, "stored", tok.AccessToken)
	}
	require.Equal(t, int32(0), ts.calls.Load())
}

func TestTokenSource_RefreshesAndPersists(t *testing.T) {
	ts := newTokenServer(t)
	store := newTestStore(t)
	require.NoError(t, store.SaveToken(&oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "r0",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	src, err := TokenSource(context.Background(), testConfig(ts.URL), store, zerolog.Nop())
	require.NoError(t, err)

	tok, err := src.Token()
	require.NoError(t, err)
	require.Equal(t, "access-1", tok.AccessToken)

	form := ts.form()
	require.Equal(t, "refresh_token", form.Get("grant_type"))
	require.Equal(t, "r0", form.Get("refresh_token"))

	saved, err := store.Token()
	require.NoError(t, err)
	require.Equal(t, "access-1", saved.AccessToken)
	require.Equal(t, "refresh-1", saved.RefreshToken)

	// The refreshed token is valid, so no further refresh happens
	tok, err = src.Token()
	require.NoError(t, err)
	require.Equal(t, "access-1", tok.AccessToken)
	require.Equal(t, int32(1), ts.calls.Load())
}

func TestTokenSource_RefreshRejected(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadRequest
	store := newTestStore(t)
	require.NoError(t, store.SaveToken(&oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	src, err := TokenSource(context.Background(), testConfig(ts.URL), store, zerolog.Nop())
	require.NoError(t, err)

	_, err = src.Token()
	require.True(t, errors.Is(err, errors.ErrUnauthorized), "err = %v", err)
}

func TestTokenSource_AuthorizesRequests(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveToken(&oauth2.Token{
		AccessToken: "stored",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer stored", r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	}))
	defer api.Close()

	src, err := TokenSource(context.Background(), testConfig("http://unused"), store, zerolog.Nop())
	require.NoError(t, err)

	resp, err := oauth2.NewClient(context.Background(), src).Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStore_Client(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Client()
	require.True(t, errors.Is(err, errors.ErrUnauthorized))

	require.NoError(t, store.SaveClient("123", "s3cret"))
	id, secret, err := store.Client()
	require.NoError(t, err)
	require.Equal(t, "123", id)
	require.Equal(t, "s3cret", secret)
}
