package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Identity is the fixed account the registration check tries to create.
type Identity struct {
	Name     string `yaml:"name" json:"name"`
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"password"`
	Role     string `yaml:"role" json:"role"`
}

// Credential is one login candidate.
type Credential struct {
	Label    string `yaml:"label,omitempty" json:"label,omitempty"`
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"password"`
}

// Config represents the portalsmoke configuration
type Config struct {
	BaseURL            string            `yaml:"baseUrl,omitempty"`
	Timeout            string            `yaml:"timeout,omitempty"` // duration string, e.g. 30s
	Origin             string            `yaml:"origin,omitempty"`
	CorsPath           string            `yaml:"corsPath,omitempty"`
	Registration       *Identity         `yaml:"registration,omitempty"`
	Credentials        []Credential      `yaml:"credentials,omitempty"` // tried in order
	Headers            map[string]string `yaml:"headers,omitempty"`     // Default headers for all requests
	FollowRedirects    *bool             `yaml:"followRedirects,omitempty"`
	ValidateSSL        *bool             `yaml:"validateSSL,omitempty"`
	Proxy              string            `yaml:"proxy,omitempty"`
	UniqueRegistration *bool             `yaml:"uniqueRegistration,omitempty"`
	SchemaValidation   *bool             `yaml:"schemaValidation,omitempty"`
	RateLimit          *float64          `yaml:"rateLimit,omitempty"` // checks per second, 0 = unlimited
	Output             string            `yaml:"output,omitempty"`
	NoColor            *bool             `yaml:"noColor,omitempty"`
	Verbose            *bool             `yaml:"verbose,omitempty"`
	Strict             *bool             `yaml:"strict,omitempty"`
	HistoryPath        string            `yaml:"history,omitempty"`

	// path is the file the config was loaded from, empty for defaults
	path string
}

// BoolPtr returns a pointer to b, for building configs in code.
func BoolPtr(b bool) *bool {
	return &b
}

// FloatPtr returns a pointer to f, for building configs in code.
func FloatPtr(f float64) *float64 {
	return &f
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetUniqueRegistration returns whether the registration email gets a random suffix, defaulting to false
func (c *Config) GetUniqueRegistration() bool {
	return getBool(c.UniqueRegistration, false)
}

// GetSchemaValidation returns whether response envelopes are schema-checked, defaulting to false
func (c *Config) GetSchemaValidation() bool {
	return getBool(c.SchemaValidation, false)
}

// GetRateLimit returns checks per second, defaulting to 0 (unlimited)
func (c *Config) GetRateLimit() float64 {
	if c.RateLimit == nil {
		return 0
	}
	return *c.RateLimit
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetStrict returns whether failed checks fail the process, defaulting to false
func (c *Config) GetStrict() bool {
	return getBool(c.Strict, false)
}

// TimeoutDuration parses Timeout, falling back to the default on empty or invalid input.
func (c *Config) TimeoutDuration() time.Duration {
	if c.Timeout == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}

// Path returns the file this config was loaded from, or "" for defaults.
func (c *Config) Path() string {
	return c.path
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".portalsmoke.yaml",
	".portalsmoke.yml",
	"portalsmoke.yaml",
	".portalsmoke.json",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file. JSON files
// are decoded by the YAML decoder too.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	fileConfig := &Config{}
	if err := yaml.Unmarshal(data, fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	config := DefaultConfig().Merge(fileConfig)
	config.path = path
	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.BaseURL != "" {
		result.BaseURL = other.BaseURL
	}
	if other.Timeout != "" {
		result.Timeout = other.Timeout
	}
	if other.Origin != "" {
		result.Origin = other.Origin
	}
	if other.CorsPath != "" {
		result.CorsPath = other.CorsPath
	}
	if other.Registration != nil {
		reg := *other.Registration
		result.Registration = &reg
	}
	if len(other.Credentials) > 0 {
		result.Credentials = append([]Credential(nil), other.Credentials...)
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.RateLimit != nil {
		result.RateLimit = FloatPtr(*other.RateLimit)
	}
	if other.Output != "" {
		result.Output = other.Output
	}
	if other.HistoryPath != "" {
		result.HistoryPath = other.HistoryPath
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.UniqueRegistration != nil {
		result.UniqueRegistration = other.UniqueRegistration
	}
	if other.SchemaValidation != nil {
		result.SchemaValidation = other.SchemaValidation
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.Strict != nil {
		result.Strict = other.Strict
	}

	if len(other.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			merged[k] = v
		}
		for k, v := range other.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}

	if other.path != "" {
		result.path = other.path
	}

	return &result
}

// Validate reports configuration that would make every check fail for a
// reason unrelated to the server under test.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base URL %q: must be an absolute http(s) URL", c.BaseURL)
	}
	if len(c.Credentials) == 0 {
		return fmt.Errorf("at least one login credential is required")
	}
	for i, cred := range c.Credentials {
		if cred.Email == "" {
			return fmt.Errorf("credential %d has no email", i+1)
		}
	}
	if c.Registration == nil || c.Registration.Email == "" {
		return fmt.Errorf("registration identity requires an email")
	}
	if c.GetRateLimit() < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
	}
	return nil
}

// SaveConfig saves the configuration to a file as YAML
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
