package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTOTPSecret = "JBSWY3DPEHPK3PXP"

func newTestClient(t *testing.T, handler http.Handler, cfg Config) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL + "/api/v1"
	cfg.WebBaseURL = srv.URL
	if cfg.Username == "" {
		cfg.Username = "ivan"
	}
	if cfg.Password == "" {
		cfg.Password = "secret"
	}

	c, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func decodeSignedBody(t *testing.T, r *http.Request) map[string]string {
	t.Helper()

	require.NoError(t, r.ParseForm())
	signed := r.PostFormValue("signed_body")
	require.True(t, strings.HasPrefix(signed, "SIGNATURE."))

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(signed, "SIGNATURE.")), &payload))
	return payload
}

func TestNewSessionIdentity(t *testing.T) {
	s := NewSession("ivan")

	assert.Regexp(t, regexp.MustCompile(`^android-[0-9a-f]{16}$`), s.DeviceID)
	_, err := uuid.Parse(s.PhoneID)
	assert.NoError(t, err)
	_, err = uuid.Parse(s.SessionUUID)
	assert.NoError(t, err)
	assert.NotEqual(t, s.PhoneID, s.SessionUUID)
}

func TestLoginFresh(t *testing.T) {
	sessionFile := filepath.Join(t.TempDir(), "session.json")

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		payload := decodeSignedBody(t, r)
		assert.Equal(t, "ivan", payload["username"])
		assert.Contains(t, payload["enc_password"], "#PWD_INSTAGRAM:0:")
		assert.NotEmpty(t, payload["device_id"])

		w.Header().Set("Ig-Set-Authorization", "Bearer IGT:2:token")
		fmt.Fprint(w, `{"status":"ok","logged_in_user":{"pk":42,"username":"ivan"}}`)
	})

	c := newTestClient(t, mux, Config{SessionFile: sessionFile})

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, int64(42), c.UserID())

	info, err := os.Stat(sessionFile)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o600), info.Mode().Perm())

	saved, err := LoadSession(sessionFile)
	require.NoError(t, err)
	assert.Equal(t, "Bearer IGT:2:token", saved.Authorization)
	assert.Equal(t, int64(42), saved.UserID)
}

func TestLoginRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"fail","message":"bad_password","error_type":"bad_password"}`)
	})

	c := newTestClient(t, mux, Config{})

	err := c.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad_password")
}

func TestLoginTwoFactorTOTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"fail","two_factor_required":true,"two_factor_info":{"two_factor_identifier":"tfid"}}`)
	})
	mux.HandleFunc("/api/v1/accounts/two_factor_login/", func(w http.ResponseWriter, r *http.Request) {
		payload := decodeSignedBody(t, r)
		assert.Equal(t, "tfid", payload["two_factor_identifier"])
		assert.True(t, totp.Validate(payload["verification_code"], testTOTPSecret))

		w.Header().Set("Ig-Set-Authorization", "Bearer IGT:2:token2")
		fmt.Fprint(w, `{"status":"ok","logged_in_user":{"pk":42,"username":"ivan"}}`)
	})

	c := newTestClient(t, mux, Config{TOTPSecret: testTOTPSecret})

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, int64(42), c.UserID())
}

func TestLoginReusesSavedSession(t *testing.T) {
	sessionFile := filepath.Join(t.TempDir(), "session.json")
	saved := Session{
		Username:      "ivan",
		UserID:        42,
		DeviceID:      "android-0011223344556677",
		PhoneID:       uuid.New().String(),
		SessionUUID:   uuid.New().String(),
		Authorization: "Bearer IGT:2:saved",
	}
	data, err := json.Marshal(saved)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(sessionFile, data, 0o600))

	loginCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		loginCalls++
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("/api/v1/accounts/current_user/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer IGT:2:saved", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"status":"ok","user":{"pk":42}}`)
	})

	c := newTestClient(t, mux, Config{SessionFile: sessionFile})

	require.NoError(t, c.Login(context.Background()))
	assert.Zero(t, loginCalls)
	assert.Equal(t, int64(42), c.UserID())
}

func TestLoginFallsBackWhenSessionRejected(t *testing.T) {
	sessionFile := filepath.Join(t.TempDir(), "session.json")
	saved := NewSession("ivan")
	saved.Authorization = "Bearer IGT:2:stale"
	data, err := json.Marshal(saved)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(sessionFile, data, 0o600))

	loginCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/current_user/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"status":"fail","message":"login_required"}`)
	})
	mux.HandleFunc("/api/v1/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		loginCalls++
		w.Header().Set("Ig-Set-Authorization", "Bearer IGT:2:fresh")
		fmt.Fprint(w, `{"status":"ok","logged_in_user":{"pk":42,"username":"ivan"}}`)
	})

	c := newTestClient(t, mux, Config{SessionFile: sessionFile})

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, 1, loginCalls)

	reloaded, err := LoadSession(sessionFile)
	require.NoError(t, err)
	assert.Equal(t, "Bearer IGT:2:fresh", reloaded.Authorization)
}

func TestUserByUsernameAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/some.friend/usernameinfo/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","user":{"pk":7788,"username":"some.friend","full_name":"Some Friend","profile_pic_url":"https://cdn.example/pic.jpg"}}`)
	})

	c := newTestClient(t, mux, Config{})

	user, err := c.UserByUsername(context.Background(), "some.friend")
	require.NoError(t, err)
	assert.Equal(t, int64(7788), user.PK)
	assert.Equal(t, "Some Friend", user.FullName)
	assert.Equal(t, "https://cdn.example/pic.jpg", user.ProfilePicURL)
}

func TestUserByUsernameNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/ghost/usernameinfo/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"status":"fail","message":"User not found"}`)
	})

	c := newTestClient(t, mux, Config{})

	_, err := c.UserByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserByUsernameWebFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/some.friend/usernameinfo/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/some.friend/", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEqual(t, userAgent, r.Header.Get("User-Agent"))
		fmt.Fprint(w, `<html><head>
<meta property="og:image" content="https://cdn.example/pic.jpg"/>
<meta property="og:title" content="Some Friend"/>
</head><body><script type="application/json">{"id":"profilePage_7788"}</script></body></html>`)
	})

	c := newTestClient(t, mux, Config{})

	user, err := c.UserByUsername(context.Background(), "some.friend")
	require.NoError(t, err)
	assert.Equal(t, int64(7788), user.PK)
	assert.Equal(t, "https://cdn.example/pic.jpg", user.ProfilePicURL)
}

func TestRequestMapsLoginRequired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/direct_v2/inbox/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"status":"fail","message":"login_required"}`)
	})

	c := newTestClient(t, mux, Config{})

	_, err := c.DirectThreads(context.Background(), 20)
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestProxyTransportRejectsUnknownScheme(t *testing.T) {
	_, err := proxyTransport("https://proxy.example:8080")
	assert.Error(t, err)
}

func TestProxyTransportAcceptsBareHost(t *testing.T) {
	transport, err := proxyTransport("127.0.0.1:1080")
	require.NoError(t, err)
	assert.NotNil(t, transport.DialContext)
}
