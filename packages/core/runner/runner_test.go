package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/assertions"
	"github.com/abdul-hamid-achik/portalsmoke/packages/core/config"
	"github.com/abdul-hamid-achik/portalsmoke/packages/core/env"
	smokehttp "github.com/abdul-hamid-achik/portalsmoke/packages/http"
	"github.com/abdul-hamid-achik/portalsmoke/packages/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func startMock(t *testing.T, opts ...mock.Option) (*mock.Server, string) {
	t.Helper()
	srv := mock.NewServer(opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

func jsonHandler(status int, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func resultByName(t *testing.T, results []*TestResult, name string) *TestResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no result named %q", name)
	return nil
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(nil)

	assert.Equal(t, config.DefaultBaseURL, r.BaseURL())
	assert.Equal(t, config.DefaultRegistration(), r.Registration())
	assert.Equal(t, config.DefaultCredentials(), r.Credentials())
	assert.Empty(t, r.Token())
	assert.Nil(t, r.limiter)
	assert.Nil(t, r.validator)
}

func TestNewRunner_UniqueRegistration(t *testing.T) {
	r := NewRunner(&Config{UniqueRegistration: true})

	email := r.Registration().Email
	assert.True(t, strings.HasPrefix(email, "test+"), email)
	assert.True(t, strings.HasSuffix(email, "@alliance.com"), email)
	assert.Len(t, email, len("test+12345678@alliance.com"))
}

func TestUniqueEmail_WithoutDomain(t *testing.T) {
	got := uniqueEmail("tester")
	assert.True(t, strings.HasPrefix(got, "tester+"))
	assert.Len(t, got, len("tester+")+uniqueEmailSuffixLength)
}

func TestRunAll_AgainstHealthyPortal(t *testing.T) {
	srv, url := startMock(t)
	r := NewRunner(&Config{BaseURL: url})

	summary, err := r.RunAll(context.Background())
	require.NoError(t, err)

	results := r.Results()
	require.Len(t, results, 8)
	assert.Equal(t, CheckNames(), []string{
		"health", "cors", "register", "login",
		"cases", "ideas", "survey-templates", "dashboard-analytics",
	})
	for i, name := range CheckNames() {
		assert.Equal(t, name, results[i].Name)
		assert.Equal(t, StatusPass, results[i].Status, "%s: %s", name, results[i].Message)
	}

	assert.Equal(t, 8, summary.Passed)
	assert.Equal(t, 100.0, summary.Percent)
	assert.Equal(t, VerdictWorkingWell, summary.Verdict)
	assert.True(t, summary.AllPassed())
	assert.NotEmpty(t, r.Token())

	login := resultByName(t, results, "login")
	assert.Equal(t, "Logged in as admin@alliance.com", login.Message)
	assert.Equal(t, 1, login.Data["attempts"])
	assert.Equal(t, 1, srv.Hits(http.MethodPost, PathLogin), "fallback must not be tried")

	claims, ok := login.Data["tokenClaims"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "admin", claims["role"])

	assert.Equal(t, "Retrieved 3 cases", resultByName(t, results, "cases").Message)
	assert.Equal(t, 2, resultByName(t, results, "ideas").Data["count"])
	assert.Equal(t, "Retrieved 4 survey templates", resultByName(t, results, "survey-templates").Message)
}

func TestRunHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		ts := httptest.NewServer(jsonHandler(200, map[string]any{"status": "ok"}))
		defer ts.Close()

		result := NewRunner(&Config{BaseURL: ts.URL}).RunHealthCheck(context.Background())
		assert.Equal(t, StatusPass, result.Status)
		assert.Equal(t, 200, result.Code())
		assert.Contains(t, result.Message, "ok")
	})

	t.Run("server error without body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		result := NewRunner(&Config{BaseURL: ts.URL}).RunHealthCheck(context.Background())
		assert.Equal(t, StatusFail, result.Status)
		assert.Equal(t, 503, result.Code())
		assert.Equal(t, "Request failed with status code 503", result.Message)
	})

	t.Run("unreachable", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		url := ts.URL
		ts.Close()

		result := NewRunner(&Config{BaseURL: url, Timeout: time.Second}).RunHealthCheck(context.Background())
		assert.Equal(t, StatusFail, result.Status)
		assert.Nil(t, result.StatusCode)
		assert.NotEmpty(t, result.Message)
	})
}

func TestRunCorsPreflight(t *testing.T) {
	t.Run("sends preflight headers and captures allow headers", func(t *testing.T) {
		var got http.Header
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			assert.Equal(t, http.MethodOptions, r.Method)
			assert.Equal(t, "/api/ideas", r.URL.Path)
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost:3000")
			w.WriteHeader(http.StatusNoContent)
		}))
		defer ts.Close()

		result := NewRunner(&Config{BaseURL: ts.URL}).RunCorsPreflight(context.Background())
		require.Equal(t, StatusPass, result.Status)
		assert.Equal(t, config.DefaultOrigin, got.Get("Origin"))
		assert.Equal(t, "POST", got.Get("Access-Control-Request-Method"))
		assert.Equal(t, "Content-Type,Authorization", got.Get("Access-Control-Request-Headers"))

		assert.Equal(t, "http://localhost:3000", result.Data["access-control-allow-origin"])
		assert.NotContains(t, result.Data, "access-control-allow-methods")
	})

	t.Run("missing cors headers still passes", func(t *testing.T) {
		_, url := startMock(t, mock.WithoutCORS())

		result := NewRunner(&Config{BaseURL: url}).RunCorsPreflight(context.Background())
		assert.Equal(t, StatusPass, result.Status)
		assert.Empty(t, result.Data)
	})
}

func TestRunRegistration(t *testing.T) {
	t.Run("new account stores token", func(t *testing.T) {
		_, url := startMock(t)
		r := NewRunner(&Config{BaseURL: url})

		result := r.RunRegistration(context.Background())
		require.Equal(t, StatusPass, result.Status, result.Message)
		assert.Equal(t, 201, result.Code())
		assert.Equal(t, "Registered test@alliance.com", result.Message)
		assert.Equal(t, true, result.Data["tokenReceived"])
		assert.NotEmpty(t, r.Token())
	})

	t.Run("existing account fails", func(t *testing.T) {
		_, url := startMock(t, mock.WithUser("Test User", "test@alliance.com", "Test123!", "member"))
		r := NewRunner(&Config{BaseURL: url})

		result := r.RunRegistration(context.Background())
		assert.Equal(t, StatusFail, result.Status)
		assert.Equal(t, 409, result.Code())
		assert.Equal(t, "User already exists", result.Message)
		assert.Equal(t, true, result.Data["alreadyExists"])
		assert.Empty(t, r.Token())
	})

	t.Run("sends fixed identity", func(t *testing.T) {
		var body map[string]string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&body)
			jsonHandler(201, map[string]any{"data": map[string]any{}})(w, r)
		}))
		defer ts.Close()

		r := NewRunner(&Config{BaseURL: ts.URL})
		result := r.RunRegistration(context.Background())
		assert.Equal(t, StatusPass, result.Status)
		assert.Equal(t, false, result.Data["tokenReceived"])
		assert.Equal(t, map[string]string{
			"name":     "Test User",
			"email":    "test@alliance.com",
			"password": "Test123!",
			"role":     "member",
		}, body)
	})
}

func TestRunLogin(t *testing.T) {
	t.Run("falls back to second credential", func(t *testing.T) {
		srv, url := startMock(t,
			mock.WithoutSeedUsers(),
			mock.WithUser("Test User", "test@alliance.com", "Test123!", "member"),
		)
		r := NewRunner(&Config{BaseURL: url})

		result := r.RunLogin(context.Background())
		require.Equal(t, StatusPass, result.Status, result.Message)
		assert.Equal(t, "Logged in as test@alliance.com (fallback credential)", result.Message)
		assert.Equal(t, 2, result.Data["attempts"])
		assert.Equal(t, 2, srv.Hits(http.MethodPost, PathLogin))
		assert.NotEmpty(t, r.Token())
	})

	t.Run("both rejected reports second error", func(t *testing.T) {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				jsonHandler(401, map[string]any{"error": "Invalid credentials"})(w, r)
				return
			}
			jsonHandler(403, map[string]any{"error": "Account locked"})(w, r)
		}))
		defer ts.Close()

		r := NewRunner(&Config{BaseURL: ts.URL})
		result := r.RunLogin(context.Background())
		assert.Equal(t, StatusFail, result.Status)
		assert.Equal(t, 403, result.Code())
		assert.Equal(t, "Account locked", result.Message)
		assert.Equal(t, 2, result.Data["attempts"])
		assert.Empty(t, r.Token())
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("keeps registration token when login has none", func(t *testing.T) {
		ts := httptest.NewServer(jsonHandler(200, map[string]any{"data": map[string]any{}}))
		defer ts.Close()

		r := NewRunner(&Config{BaseURL: ts.URL})
		r.token = "from-registration"
		result := r.RunLogin(context.Background())
		assert.Equal(t, StatusPass, result.Status)
		assert.Equal(t, "from-registration", r.Token())
	})
}

func TestAuthorizedChecks_WithoutToken(t *testing.T) {
	srv, url := startMock(t)
	r := NewRunner(&Config{BaseURL: url})
	ctx := context.Background()

	for _, result := range []*TestResult{
		r.RunGetCases(ctx),
		r.RunGetIdeas(ctx),
		r.RunGetSurveyTemplates(ctx),
		r.RunGetDashboardAnalytics(ctx),
	} {
		assert.Equal(t, StatusFail, result.Status)
		assert.Equal(t, MessageNoToken, result.Message)
		assert.Nil(t, result.StatusCode)
	}
	assert.Zero(t, srv.TotalHits())
	assert.Len(t, r.Results(), 4)
}

func TestRunAll_AuthFailuresCascade(t *testing.T) {
	_, url := startMock(t,
		mock.WithoutSeedUsers(),
		mock.WithFailure(PathRegister, http.StatusInternalServerError),
	)
	r := NewRunner(&Config{BaseURL: url})

	summary, err := r.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.Total)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 25.0, summary.Percent)
	assert.Equal(t, VerdictMajorIssues, summary.Verdict)
	require.Len(t, summary.Failures, 6)
	assert.Equal(t, "register", summary.Failures[0].Name)
	assert.Equal(t, "Internal Server Error", summary.Failures[0].Message)
	assert.Equal(t, MessageNoToken, summary.Failures[5].Message)
}

func TestRunAll_Aborts(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		srv, url := startMock(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		summary, err := NewRunner(&Config{BaseURL: url}).RunAll(ctx)
		require.Error(t, err)
		assert.Nil(t, summary)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Contains(t, err.Error(), "before health check")
		assert.Zero(t, srv.TotalHits())
	})

	t.Run("panicking observer", func(t *testing.T) {
		_, url := startMock(t)
		r := NewRunner(&Config{BaseURL: url}, WithObserver(func(*TestResult) {
			panic("boom")
		}))

		summary, err := r.RunAll(context.Background())
		require.Error(t, err)
		assert.Nil(t, summary)
		assert.Equal(t, "smoke run aborted: boom", err.Error())
	})
}

func TestResults_CallersCannotAlterRecordedResults(t *testing.T) {
	_, url := startMock(t)
	r := NewRunner(&Config{BaseURL: url}, WithObserver(func(res *TestResult) {
		res.Message = "changed by observer"
	}))

	returned := r.RunRegistration(context.Background())
	returned.Status = StatusFail
	*returned.StatusCode = 599
	returned.Data["email"] = "changed@alliance.com"

	got := r.Results()
	require.Len(t, got, 1)
	got[0].Message = "changed by caller"

	again := r.Results()[0]
	assert.Equal(t, StatusPass, again.Status)
	assert.Equal(t, 201, again.Code())
	assert.Equal(t, "test@alliance.com", again.Data["email"])
	assert.Equal(t, "Registered test@alliance.com", again.Message)
	assert.Equal(t, 1, r.Summary(0).Passed)
}

func TestWithObserver(t *testing.T) {
	_, url := startMock(t)
	var seen []string
	r := NewRunner(&Config{BaseURL: url}, WithObserver(func(res *TestResult) {
		seen = append(seen, res.Name)
	}))

	_, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CheckNames(), seen)
}

func TestSchemaValidation(t *testing.T) {
	ts := httptest.NewServer(jsonHandler(200, map[string]any{"healthy": true}))
	defer ts.Close()

	r := NewRunner(&Config{BaseURL: ts.URL, SchemaValidation: true})
	require.NotNil(t, r.validator)

	result := r.RunHealthCheck(context.Background())
	assert.Equal(t, StatusPass, result.Status)
	errs, ok := result.Data["schemaErrors"].([]string)
	require.True(t, ok)
	assert.NotEmpty(t, errs)
}

func TestWithValidator_MockEnvelopesConform(t *testing.T) {
	_, url := startMock(t)
	r := NewRunner(&Config{BaseURL: url}, WithValidator(assertions.MustNewValidator()))

	_, err := r.RunAll(context.Background())
	require.NoError(t, err)
	for _, res := range r.Results() {
		assert.NotContains(t, res.Data, "schemaErrors", res.Name)
	}
}

func TestWithHTTPClient(t *testing.T) {
	var agent atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		agent.Store(req.UserAgent())
		jsonHandler(200, map[string]any{"status": "ok"})(w, req)
	}))
	defer ts.Close()

	client := smokehttp.NewClient(smokehttp.WithBaseURL(ts.URL), smokehttp.WithUserAgent("portalsmoke/test"))
	r := NewRunner(&Config{BaseURL: "http://unused.invalid"}, WithHTTPClient(client))

	result := r.RunHealthCheck(context.Background())
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "portalsmoke/test", agent.Load())
}

func TestRateLimiter(t *testing.T) {
	_, url := startMock(t)
	limiter := rate.NewLimiter(rate.Every(20*time.Millisecond), 1)
	r := NewRunner(&Config{BaseURL: url}, WithRateLimiter(limiter))

	start := time.Now()
	_, err := r.RunAll(context.Background())
	require.NoError(t, err)

	// eight requests, the first one free
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
}

func TestConfigFromFile(t *testing.T) {
	follow := true
	c := &config.Config{
		BaseURL:         "http://api.test",
		Timeout:         "5s",
		FollowRedirects: &follow,
		RateLimit:       config.FloatPtr(2),
		Registration:    &config.Identity{Name: "N", Email: "${USER_EMAIL}", Password: "p", Role: "member"},
		Credentials: []config.Credential{
			{Label: "ops", Email: "ops@alliance.com", Password: "${OPS_PASSWORD}"},
		},
	}
	expand := func(s string) string {
		return strings.NewReplacer("${USER_EMAIL}", "n@alliance.com", "${OPS_PASSWORD}", "secret").Replace(s)
	}

	cfg := ConfigFromFile(c, expand)
	assert.Equal(t, "http://api.test", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.True(t, cfg.FollowRedirect)
	assert.Equal(t, 2.0, cfg.RateLimit)
	assert.Equal(t, "n@alliance.com", cfg.Registration.Email)
	assert.Equal(t, "secret", cfg.Credentials[0].Password)
	assert.Equal(t, "ops", cfg.Credentials[0].Label)
}

func TestConfigFromFile_DollarInPasswordSurvivesExpansion(t *testing.T) {
	t.Setenv("OPS_PASSWORD", "from-env")
	c := &config.Config{
		Registration: &config.Identity{Email: "n@alliance.com", Password: "Pa$sw0rd"},
		Credentials: []config.Credential{
			{Email: "a@alliance.com", Password: "Pa$sw0rd"},
			{Email: "b@alliance.com", Password: "${OPS_PASSWORD}$x"},
		},
	}

	cfg := ConfigFromFile(c, env.Expand)
	assert.Equal(t, "Pa$sw0rd", cfg.Registration.Password)
	assert.Equal(t, "Pa$sw0rd", cfg.Credentials[0].Password)
	assert.Equal(t, "from-env$x", cfg.Credentials[1].Password)
}
