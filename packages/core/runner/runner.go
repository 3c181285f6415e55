package runner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/assertions"
	"github.com/abdul-hamid-achik/portalsmoke/packages/core/config"
	smokehttp "github.com/abdul-hamid-achik/portalsmoke/packages/http"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// API paths exercised by the suite.
const (
	PathHealth              = "/health"
	PathRegister            = "/api/auth/register"
	PathLogin               = "/api/auth/login"
	PathCases               = "/api/cases"
	PathIdeas               = "/api/ideas"
	PathSurveyTemplates     = "/api/surveys/templates"
	PathDashboardAnalytics  = "/api/analytics/dashboard"
	MessageNoToken          = "No auth token available"
	corsRequestMethod       = "POST"
	corsRequestHeaders      = "Content-Type,Authorization"
	uniqueEmailSuffixLength = 8
)

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// Observer is called with every result right after it is recorded.
type Observer func(result *TestResult)

type Config struct {
	BaseURL            string
	Timeout            time.Duration
	Origin             string
	CorsPath           string
	Registration       config.Identity
	Credentials        []config.Credential
	Headers            map[string]string
	FollowRedirect     bool
	ValidateSSL        bool
	Proxy              string
	UniqueRegistration bool
	SchemaValidation   bool
	RateLimit          float64 // checks per second, 0 = unlimited
	UserAgent          string
}

// ConfigFromFile converts a loaded configuration into runner settings,
// expanding ${VAR} references in secrets through expand.
func ConfigFromFile(c *config.Config, expand func(string) string) *Config {
	if expand == nil {
		expand = func(s string) string { return s }
	}

	cfg := &Config{
		BaseURL:            c.BaseURL,
		Timeout:            c.TimeoutDuration(),
		Origin:             c.Origin,
		CorsPath:           c.CorsPath,
		Headers:            c.Headers,
		FollowRedirect:     c.GetFollowRedirects(),
		ValidateSSL:        c.GetValidateSSL(),
		Proxy:              c.Proxy,
		UniqueRegistration: c.GetUniqueRegistration(),
		SchemaValidation:   c.GetSchemaValidation(),
		RateLimit:          c.GetRateLimit(),
	}

	if c.Registration != nil {
		cfg.Registration = config.Identity{
			Name:     expand(c.Registration.Name),
			Email:    expand(c.Registration.Email),
			Password: expand(c.Registration.Password),
			Role:     expand(c.Registration.Role),
		}
	}
	for _, cred := range c.Credentials {
		cfg.Credentials = append(cfg.Credentials, config.Credential{
			Label:    cred.Label,
			Email:    expand(cred.Email),
			Password: expand(cred.Password),
		})
	}
	return cfg
}

type Runner struct {
	client    *smokehttp.Client
	config    *Config
	limiter   *rate.Limiter
	validator *assertions.Validator
	observer  Observer
	warnFunc  WarnFunc

	token   string
	results []*TestResult
}

type Option func(*Runner)

// WithHTTPClient replaces the client built from the config.
func WithHTTPClient(c *smokehttp.Client) Option {
	return func(r *Runner) {
		r.client = c
	}
}

func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observer = o
	}
}

func WithWarnFunc(fn WarnFunc) Option {
	return func(r *Runner) {
		r.warnFunc = fn
	}
}

// WithRateLimiter overrides the limiter derived from Config.RateLimit.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(r *Runner) {
		r.limiter = l
	}
}

// WithValidator enables envelope schema checks with the given validator.
func WithValidator(v *assertions.Validator) Option {
	return func(r *Runner) {
		r.validator = v
	}
}

func NewRunner(cfg *Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultBaseURL
	}
	if cfg.Origin == "" {
		cfg.Origin = config.DefaultOrigin
	}
	if cfg.CorsPath == "" {
		cfg.CorsPath = config.DefaultCorsPath
	}
	if cfg.Registration.Email == "" {
		cfg.Registration = config.DefaultRegistration()
	}
	if len(cfg.Credentials) == 0 {
		cfg.Credentials = config.DefaultCredentials()
	}

	r := &Runner{
		config: cfg,
		warnFunc: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.client == nil {
		clientOpts := []smokehttp.ClientOption{
			smokehttp.WithBaseURL(cfg.BaseURL),
			smokehttp.WithFollowRedirects(cfg.FollowRedirect),
			smokehttp.WithValidateSSL(cfg.ValidateSSL),
			smokehttp.WithDefaultHeaders(cfg.Headers),
			smokehttp.WithUserAgent(cfg.UserAgent),
		}
		if cfg.Timeout > 0 {
			clientOpts = append(clientOpts, smokehttp.WithTimeout(cfg.Timeout))
		}
		if cfg.Proxy != "" {
			clientOpts = append(clientOpts, smokehttp.WithProxy(cfg.Proxy))
		}
		r.client = smokehttp.NewClient(clientOpts...)
	}

	if r.limiter == nil && cfg.RateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	if r.validator == nil && cfg.SchemaValidation {
		v, err := assertions.NewValidator()
		if err != nil {
			r.warnFunc("schema validation disabled: %v", err)
		} else {
			r.validator = v
		}
	}

	if cfg.UniqueRegistration {
		cfg.Registration.Email = uniqueEmail(cfg.Registration.Email)
	}

	return r
}

// uniqueEmail tags the local part with a random suffix: test@x.com -> test+1a2b3c4d@x.com.
func uniqueEmail(email string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:uniqueEmailSuffixLength]
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email + "+" + suffix
	}
	return local + "+" + suffix + "@" + domain
}

// Token returns the bearer token of the session, or "" before a successful
// registration or login.
func (r *Runner) Token() string {
	return r.token
}

// Registration returns the identity the registration check sends.
func (r *Runner) Registration() config.Identity {
	return r.config.Registration
}

// Credentials returns the login candidates in the order they are tried.
func (r *Runner) Credentials() []config.Credential {
	return append([]config.Credential(nil), r.config.Credentials...)
}

// BaseURL returns the API base URL under test.
func (r *Runner) BaseURL() string {
	return r.client.BaseURL()
}

// Results returns the recorded results in execution order. Every result is
// a copy, so callers cannot alter what the runner recorded.
func (r *Runner) Results() []*TestResult {
	out := make([]*TestResult, len(r.results))
	for i, res := range r.results {
		out[i] = res.clone()
	}
	return out
}

// Summary aggregates the results recorded so far.
func (r *Runner) Summary(duration time.Duration) *Summary {
	return Summarize(r.Results(), duration)
}

func (r *Runner) record(result *TestResult) *TestResult {
	r.results = append(r.results, result.clone())
	if r.observer != nil {
		r.observer(result)
	}
	return result
}

// check is one step of the fixed sequence.
type check struct {
	name string
	run  func(ctx context.Context) *TestResult
}

func (r *Runner) sequence() []check {
	return []check{
		{"health", r.RunHealthCheck},
		{"cors", r.RunCorsPreflight},
		{"register", r.RunRegistration},
		{"login", r.RunLogin},
		{"cases", r.RunGetCases},
		{"ideas", r.RunGetIdeas},
		{"survey-templates", r.RunGetSurveyTemplates},
		{"dashboard-analytics", r.RunGetDashboardAnalytics},
	}
}

// CheckNames lists the checks of RunAll in execution order.
func CheckNames() []string {
	r := &Runner{}
	var names []string
	for _, c := range r.sequence() {
		names = append(names, c.name)
	}
	return names
}

// RunAll executes every check in order, one at a time, and summarizes the
// run. Check failures are part of the summary; the returned error is only
// set when the run itself was aborted.
func (r *Runner) RunAll(ctx context.Context) (summary *Summary, err error) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			summary = nil
			err = fmt.Errorf("smoke run aborted: %v", rec)
		}
	}()

	for _, c := range r.sequence() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("smoke run aborted before %s check: %w", c.name, err)
		}
		c.run(ctx)
	}

	return r.Summary(time.Since(start)), nil
}

// exchange is the outcome of one HTTP round trip.
type exchange struct {
	resp     *smokehttp.Response
	err      error
	duration time.Duration
}

func (r *Runner) send(ctx context.Context, req *smokehttp.Request) exchange {
	start := time.Now()
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return exchange{err: fmt.Errorf("rate limiter: %w", err), duration: time.Since(start)}
		}
	}
	resp, err := r.client.Do(ctx, req)
	return exchange{resp: resp, err: err, duration: time.Since(start)}
}

// failure converts a transport error or a rejected response into a FAIL result.
func failure(name, method, endpoint string, ex exchange) *TestResult {
	result := &TestResult{
		Name:     name,
		Endpoint: endpoint,
		Method:   method,
		Status:   StatusFail,
		Duration: ex.duration,
	}
	if ex.err != nil {
		result.Message = ex.err.Error()
		return result
	}
	result.StatusCode = intPtr(ex.resp.StatusCode)
	result.Message = rejectionMessage(ex.resp)
	return result
}

func (r *Runner) validate(result *TestResult, envelope assertions.Envelope, body []byte) {
	if r.validator == nil {
		return
	}
	res := r.validator.Validate(envelope, body)
	if res.Passed {
		return
	}
	if result.Data == nil {
		result.Data = make(map[string]any)
	}
	result.Data["schemaErrors"] = res.Errors
}
