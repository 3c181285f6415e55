package mock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url, body, token string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func tokenOf(t *testing.T, body map[string]any) string {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data envelope: %v", body)
	token, _ := data["token"].(string)
	return token
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, WithHealthStatus("degraded"))

	status, body := doJSON(t, "GET", ts.URL+"/health", "", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "degraded", body["status"])
}

func TestCORSPreflight(t *testing.T) {
	t.Run("headers present", func(t *testing.T) {
		_, ts := newTestServer(t, WithAllowOrigin("http://localhost:3000"))
		req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/ideas", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
	})

	t.Run("cors disabled", func(t *testing.T) {
		_, ts := newTestServer(t, WithoutCORS())
		req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/ideas", nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestRegisterAndLogin(t *testing.T) {
	s, ts := newTestServer(t)
	payload := `{"name":"Test User","email":"test@alliance.com","password":"Test123!","role":"member"}`

	status, body := doJSON(t, "POST", ts.URL+"/api/auth/register", payload, "")
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, tokenOf(t, body))
	assert.Equal(t, 2, s.Store().UserCount())

	status, body = doJSON(t, "POST", ts.URL+"/api/auth/register", payload, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "User already exists", body["error"])

	status, body = doJSON(t, "POST", ts.URL+"/api/auth/login", `{"email":"TEST@alliance.com","password":"Test123!"}`, "")
	require.Equal(t, http.StatusOK, status)
	user := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "test@alliance.com", user["email"])
	_, leaked := user["passwordHash"]
	assert.False(t, leaked)
}

func TestRegister_Validation(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := doJSON(t, "POST", ts.URL+"/api/auth/register", `{"email":"x@y.z"}`, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "required")

	status, _ = doJSON(t, "POST", ts.URL+"/api/auth/register", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := doJSON(t, "POST", ts.URL+"/api/auth/login", `{"email":"admin@alliance.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", body["error"])

	status, _ = doJSON(t, "POST", ts.URL+"/api/auth/login", `{"email":"nobody@alliance.com","password":"x"}`, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuthenticatedEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	_, body := doJSON(t, "POST", ts.URL+"/api/auth/login", `{"email":"admin@alliance.com","password":"Admin123!"}`, "")
	token := tokenOf(t, body)
	require.NotEmpty(t, token)

	tests := []struct {
		path  string
		count int
	}{
		{"/api/cases", 3},
		{"/api/ideas", 2},
		{"/api/surveys/templates", 4},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := doJSON(t, "GET", ts.URL+tt.path, "", token)
			require.Equal(t, 200, status)
			assert.Len(t, body["data"], tt.count)

			status, body = doJSON(t, "GET", ts.URL+tt.path, "", "")
			assert.Equal(t, 401, status)
			assert.Equal(t, "Authentication required", body["error"])
		})
	}

	status, body := doJSON(t, "GET", ts.URL+"/api/analytics/dashboard", "", token)
	require.Equal(t, 200, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(3), data["totalCases"])
	assert.Equal(t, float64(1), data["totalUsers"])
}

func TestRequireAuth_RejectsBadTokens(t *testing.T) {
	s, ts := newTestServer(t, WithTokenTTL(-time.Minute))
	admin, ok := s.Store().User("admin@alliance.com")
	require.True(t, ok)

	expired, err := s.IssueToken(admin)
	require.NoError(t, err)

	status, body := doJSON(t, "GET", ts.URL+"/api/cases", "", expired)
	assert.Equal(t, 401, status)
	assert.Equal(t, "Invalid or expired token", body["error"])

	other := NewServer(WithSecret("different"))
	forged, err := other.IssueToken(admin)
	require.NoError(t, err)
	status, _ = doJSON(t, "GET", ts.URL+"/api/cases", "", forged)
	assert.Equal(t, 401, status)
}

func TestWithFailure(t *testing.T) {
	s, ts := newTestServer(t, WithFailure("/health", http.StatusServiceUnavailable))

	status, body := doJSON(t, "GET", ts.URL+"/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "Service Unavailable", body["error"])
	assert.Equal(t, 1, s.Hits("GET", "/health"))
	assert.Equal(t, 1, s.TotalHits())
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := doJSON(t, "GET", ts.URL+"/api/unknown", "", "")
	assert.Equal(t, 404, status)
	assert.Equal(t, "Route not found", body["error"])

	status, _ = doJSON(t, "DELETE", ts.URL+"/health", "", "")
	assert.Equal(t, 405, status)
}

func TestSeedOptions(t *testing.T) {
	s := NewServer(WithoutSeedUsers(), WithUser("Ops", "ops@alliance.com", "pw", ""))

	assert.Equal(t, 1, s.Store().UserCount())
	u, ok := s.Store().User("ops@alliance.com")
	require.True(t, ok)
	assert.Equal(t, "member", u.Role)

	_, err := s.Store().Authenticate("ops@alliance.com", "pw")
	assert.NoError(t, err)
}
