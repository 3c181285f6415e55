package mock

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrUserExists is returned when registering an email twice.
var ErrUserExists = errors.New("User already exists")

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("Invalid credentials")

// User is a registered account. The password is only kept as a bcrypt hash.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	passwordHash []byte
}

// Store holds accounts and the fixture data served by the list endpoints.
type Store struct {
	mu              sync.RWMutex
	users           map[string]*User
	Cases           []map[string]any
	Ideas           []map[string]any
	SurveyTemplates []map[string]any
}

func NewStore() *Store {
	return &Store{
		users: make(map[string]*User),
		Cases: []map[string]any{
			{"id": "case-1", "title": "Supplier onboarding delay", "status": "open"},
			{"id": "case-2", "title": "Partner portal access", "status": "in_progress"},
			{"id": "case-3", "title": "Quarterly review follow-up", "status": "closed"},
		},
		Ideas: []map[string]any{
			{"id": "idea-1", "title": "Shared partner calendar", "votes": 12},
			{"id": "idea-2", "title": "Self-service contract renewals", "votes": 7},
		},
		SurveyTemplates: []map[string]any{
			{"id": "tpl-1", "name": "Partner satisfaction", "questions": 10},
			{"id": "tpl-2", "name": "Onboarding feedback", "questions": 6},
			{"id": "tpl-3", "name": "Annual alliance review", "questions": 15},
			{"id": "tpl-4", "name": "Event follow-up", "questions": 4},
		},
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AddUser registers an account, failing with ErrUserExists for a known email.
func (s *Store) AddUser(name, email, password, role string) (*User, error) {
	key := normalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[key]; exists {
		return nil, ErrUserExists
	}
	if role == "" {
		role = "member"
	}

	u := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        key,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		passwordHash: hash,
	}
	s.users[key] = u
	return u, nil
}

// Authenticate returns the user for a matching email and password.
func (s *Store) Authenticate(email, password string) (*User, error) {
	s.mu.RLock()
	u, ok := s.users[normalizeEmail(email)]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// User looks up an account by email.
func (s *Store) User(email string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[normalizeEmail(email)]
	return u, ok
}

// UserCount returns the number of registered accounts.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Reset removes every account.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]*User)
}
