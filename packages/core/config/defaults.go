package config

import "time"

const (
	// DefaultBaseURL is where the Alliance Portal API listens in local development
	DefaultBaseURL = "http://localhost:3001"
	// DefaultOrigin is the frontend origin sent with the CORS preflight
	DefaultOrigin = "http://localhost:3000"
	// DefaultCorsPath is the API path the CORS preflight targets
	DefaultCorsPath = "/api/ideas"
	// DefaultTimeout is the per-request timeout
	DefaultTimeout = 30 * time.Second
)

// DefaultRegistration is the test identity registered on every run.
func DefaultRegistration() Identity {
	return Identity{
		Name:     "Test User",
		Email:    "test@alliance.com",
		Password: "Test123!",
		Role:     "member",
	}
}

// DefaultCredentials are the login candidates: the seeded admin first, then
// the test user created by the registration check.
func DefaultCredentials() []Credential {
	return []Credential{
		{Label: "admin", Email: "admin@alliance.com", Password: "Admin123!"},
		{Label: "test user", Email: "test@alliance.com", Password: "Test123!"},
	}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	reg := DefaultRegistration()
	return &Config{
		BaseURL:            DefaultBaseURL,
		Timeout:            DefaultTimeout.String(),
		Origin:             DefaultOrigin,
		CorsPath:           DefaultCorsPath,
		Registration:       &reg,
		Credentials:        DefaultCredentials(),
		FollowRedirects:    BoolPtr(true),
		ValidateSSL:        BoolPtr(true),
		UniqueRegistration: BoolPtr(false),
		SchemaValidation:   BoolPtr(false),
		Output:             "console",
		NoColor:            BoolPtr(false),
		Verbose:            BoolPtr(false),
		Strict:             BoolPtr(false),
	}
}
