package runner

import (
	"context"
	"fmt"
	"net/http"

	"github.com/abdul-hamid-achik/portalsmoke/packages/assertions"
	"github.com/abdul-hamid-achik/portalsmoke/packages/capture"
	"github.com/abdul-hamid-achik/portalsmoke/packages/core/config"
	smokehttp "github.com/abdul-hamid-achik/portalsmoke/packages/http"
	"github.com/golang-jwt/jwt/v5"
)

// loginAttempt is the outcome of trying one credential.
type loginAttempt struct {
	credential config.Credential
	ex         exchange
}

func (a loginAttempt) succeeded() bool {
	return a.ex.err == nil && a.ex.resp.IsSuccess()
}

// RunLogin tries each configured credential in order until one is accepted.
// If all are rejected the result carries the last attempt's error.
func (r *Runner) RunLogin(ctx context.Context) *TestResult {
	var last loginAttempt
	var total exchange

	for i, cred := range r.config.Credentials {
		last = r.attemptLogin(ctx, cred)
		total.duration += last.ex.duration

		if !last.succeeded() {
			continue
		}

		extractor := capture.NewExtractor(last.ex.resp)
		if token := extractor.Token(); token != "" {
			r.token = token
		}

		email := extractor.UserEmail()
		if email == "" {
			email = cred.Email
		}

		message := fmt.Sprintf("Logged in as %s", email)
		if i > 0 {
			message += " (fallback credential)"
		}

		data := map[string]any{
			"email":    email,
			"attempts": i + 1,
		}
		if cred.Label != "" {
			data["credential"] = cred.Label
		}
		if claims := tokenClaims(r.token); len(claims) > 0 {
			data["tokenClaims"] = claims
		}

		result := &TestResult{
			Name:       "login",
			Endpoint:   PathLogin,
			Method:     http.MethodPost,
			Status:     StatusPass,
			StatusCode: intPtr(last.ex.resp.StatusCode),
			Message:    message,
			Data:       data,
			Duration:   total.duration,
		}
		r.validate(result, assertions.EnvelopeAuth, last.ex.resp.Body)
		return r.record(result)
	}

	if len(r.config.Credentials) == 0 {
		return r.record(&TestResult{
			Name:     "login",
			Endpoint: PathLogin,
			Method:   http.MethodPost,
			Status:   StatusFail,
			Message:  "No login credentials configured",
		})
	}

	total.err = last.ex.err
	total.resp = last.ex.resp
	result := failure("login", http.MethodPost, PathLogin, total)
	result.Data = map[string]any{"attempts": len(r.config.Credentials)}
	return r.record(result)
}

func (r *Runner) attemptLogin(ctx context.Context, cred config.Credential) loginAttempt {
	req := smokehttp.NewRequest(http.MethodPost, PathLogin)
	if err := req.SetJSONBody(map[string]string{
		"email":    cred.Email,
		"password": cred.Password,
	}); err != nil {
		return loginAttempt{credential: cred, ex: exchange{err: err}}
	}
	return loginAttempt{credential: cred, ex: r.send(ctx, req)}
}

// tokenClaims decodes the public claims of a JWT for diagnostics. The
// signature is not verified; non-JWT tokens yield nil.
func tokenClaims(token string) map[string]any {
	if token == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	out := make(map[string]any)
	for _, key := range []string{"sub", "email", "role", "exp"} {
		if v, ok := claims[key]; ok {
			out[key] = v
		}
	}
	return out
}
