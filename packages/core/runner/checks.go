package runner

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/abdul-hamid-achik/portalsmoke/packages/assertions"
	"github.com/abdul-hamid-achik/portalsmoke/packages/capture"
	smokehttp "github.com/abdul-hamid-achik/portalsmoke/packages/http"
)

// corsResponseHeaders are captured from the preflight response when present.
var corsResponseHeaders = []string{
	"access-control-allow-origin",
	"access-control-allow-methods",
	"access-control-allow-headers",
}

func rejectionMessage(resp *smokehttp.Response) string {
	return capture.RejectionMessage(resp)
}

// RunHealthCheck issues GET /health and reports the remote status string.
func (r *Runner) RunHealthCheck(ctx context.Context) *TestResult {
	ex := r.send(ctx, smokehttp.NewRequest(http.MethodGet, PathHealth))
	if ex.err != nil || !ex.resp.IsSuccess() {
		return r.record(failure("health", http.MethodGet, PathHealth, ex))
	}

	status := capture.NewExtractor(ex.resp).HealthStatus()
	result := &TestResult{
		Name:       "health",
		Endpoint:   PathHealth,
		Method:     http.MethodGet,
		Status:     StatusPass,
		StatusCode: intPtr(ex.resp.StatusCode),
		Message:    fmt.Sprintf("Server is healthy (status: %s)", status),
		Duration:   ex.duration,
	}
	r.validate(result, assertions.EnvelopeHealth, ex.resp.Body)
	return r.record(result)
}

// RunCorsPreflight sends an OPTIONS preflight for the configured API path.
// Only transport success is checked; the allow-* headers are diagnostics.
func (r *Runner) RunCorsPreflight(ctx context.Context) *TestResult {
	path := r.config.CorsPath
	req := smokehttp.NewRequest(http.MethodOptions, path).
		SetHeader("Origin", r.config.Origin).
		SetHeader("Access-Control-Request-Method", corsRequestMethod).
		SetHeader("Access-Control-Request-Headers", corsRequestHeaders)

	ex := r.send(ctx, req)
	if ex.err != nil || !ex.resp.IsSuccess() {
		return r.record(failure("cors", http.MethodOptions, path, ex))
	}

	return r.record(&TestResult{
		Name:       "cors",
		Endpoint:   path,
		Method:     http.MethodOptions,
		Status:     StatusPass,
		StatusCode: intPtr(ex.resp.StatusCode),
		Message:    "CORS preflight succeeded",
		Data:       capture.ExtractHeaders(ex.resp, corsResponseHeaders),
		Duration:   ex.duration,
	})
}

// RunRegistration registers the fixed test identity. A rejection, most often
// because the account already exists, is reported as FAIL like any other.
func (r *Runner) RunRegistration(ctx context.Context) *TestResult {
	identity := r.config.Registration
	req := smokehttp.NewRequest(http.MethodPost, PathRegister)
	if err := req.SetJSONBody(map[string]string{
		"name":     identity.Name,
		"email":    identity.Email,
		"password": identity.Password,
		"role":     identity.Role,
	}); err != nil {
		return r.record(failure("register", http.MethodPost, PathRegister, exchange{err: err}))
	}

	ex := r.send(ctx, req)
	if ex.err != nil || !ex.resp.IsSuccess() {
		result := failure("register", http.MethodPost, PathRegister, ex)
		if isAlreadyExists(ex.resp, result.Message) {
			result.Data = map[string]any{"alreadyExists": true}
		}
		return r.record(result)
	}

	token := capture.NewExtractor(ex.resp).Token()
	if token != "" {
		r.token = token
	}

	result := &TestResult{
		Name:       "register",
		Endpoint:   PathRegister,
		Method:     http.MethodPost,
		Status:     StatusPass,
		StatusCode: intPtr(ex.resp.StatusCode),
		Message:    fmt.Sprintf("Registered %s", identity.Email),
		Data:       map[string]any{"email": identity.Email, "tokenReceived": token != ""},
		Duration:   ex.duration,
	}
	r.validate(result, assertions.EnvelopeAuth, ex.resp.Body)
	return r.record(result)
}

func isAlreadyExists(resp *smokehttp.Response, message string) bool {
	if resp != nil && resp.StatusCode == http.StatusConflict {
		return true
	}
	return strings.Contains(strings.ToLower(message), "already exists")
}

// RunGetCases lists cases with the session token.
func (r *Runner) RunGetCases(ctx context.Context) *TestResult {
	return r.runList(ctx, "cases", PathCases, "cases")
}

// RunGetIdeas lists ideas with the session token.
func (r *Runner) RunGetIdeas(ctx context.Context) *TestResult {
	return r.runList(ctx, "ideas", PathIdeas, "ideas")
}

// RunGetSurveyTemplates lists survey templates with the session token.
func (r *Runner) RunGetSurveyTemplates(ctx context.Context) *TestResult {
	return r.runList(ctx, "survey-templates", PathSurveyTemplates, "survey templates")
}

// RunGetDashboardAnalytics fetches the analytics payload with the session token.
func (r *Runner) RunGetDashboardAnalytics(ctx context.Context) *TestResult {
	const name = "dashboard-analytics"
	ex, short := r.authorizedGet(ctx, name, PathDashboardAnalytics)
	if short != nil {
		return short
	}

	analytics, _ := capture.NewExtractor(ex.resp).Value("data")
	result := &TestResult{
		Name:       name,
		Endpoint:   PathDashboardAnalytics,
		Method:     http.MethodGet,
		Status:     StatusPass,
		StatusCode: intPtr(ex.resp.StatusCode),
		Message:    "Retrieved dashboard analytics",
		Data:       map[string]any{"analytics": analytics},
		Duration:   ex.duration,
	}
	r.validate(result, assertions.EnvelopeObject, ex.resp.Body)
	return r.record(result)
}

func (r *Runner) runList(ctx context.Context, name, path, noun string) *TestResult {
	ex, short := r.authorizedGet(ctx, name, path)
	if short != nil {
		return short
	}

	count, _ := capture.NewExtractor(ex.resp).Count()
	result := &TestResult{
		Name:       name,
		Endpoint:   path,
		Method:     http.MethodGet,
		Status:     StatusPass,
		StatusCode: intPtr(ex.resp.StatusCode),
		Message:    fmt.Sprintf("Retrieved %d %s", count, noun),
		Data:       map[string]any{"count": count},
		Duration:   ex.duration,
	}
	r.validate(result, assertions.EnvelopeList, ex.resp.Body)
	return r.record(result)
}

// authorizedGet performs a bearer-authenticated GET. When it cannot produce a
// passing exchange it records the FAIL result itself and returns it as short.
func (r *Runner) authorizedGet(ctx context.Context, name, path string) (exchange, *TestResult) {
	if r.token == "" {
		return exchange{}, r.record(&TestResult{
			Name:     name,
			Endpoint: path,
			Method:   http.MethodGet,
			Status:   StatusFail,
			Message:  MessageNoToken,
		})
	}

	req := smokehttp.NewRequest(http.MethodGet, path).SetBearerToken(r.token)
	ex := r.send(ctx, req)
	if ex.err != nil || !ex.resp.IsSuccess() {
		return ex, r.record(failure(name, http.MethodGet, path, ex))
	}
	return ex, nil
}
