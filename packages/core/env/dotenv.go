package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// DefaultDotEnvFile is loaded when no env file is given explicitly.
const DefaultDotEnvFile = ".env"

// LoadDotEnv parses a .env file without touching the process environment.
func LoadDotEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read env file: %w", err)
	}
	return vars, nil
}

// Load exports the given env file, or DefaultDotEnvFile when path is empty,
// without overriding variables already set in the process. A missing default
// file is not an error; a missing explicit file is.
func Load(path string) (map[string]string, error) {
	return NewSession(path).Load()
}

// Session loads one env file repeatedly. Keys it exported on an earlier load
// are overwritten or unset on the next one; keys already present in the
// process environment before the first load are never touched.
type Session struct {
	path  string
	owned map[string]bool
}

func NewSession(path string) *Session {
	return &Session{path: path, owned: make(map[string]bool)}
}

// Path returns the file the session reads, resolving the default.
func (s *Session) Path() string {
	if s.path == "" {
		return DefaultDotEnvFile
	}
	return s.path
}

func (s *Session) Load() (map[string]string, error) {
	vars, err := LoadDotEnv(s.Path())
	if err != nil {
		if s.path != "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		vars = map[string]string{}
	}

	for k := range s.owned {
		if _, ok := vars[k]; !ok {
			_ = os.Unsetenv(k)
			delete(s.owned, k)
		}
	}
	for k, v := range vars {
		if _, set := os.LookupEnv(k); set && !s.owned[k] {
			continue
		}
		_ = os.Setenv(k, v)
		s.owned[k] = true
	}
	return vars, nil
}
