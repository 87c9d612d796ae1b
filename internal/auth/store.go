// Package auth provides account registration, credential verification, and
// the signed tokens the WebSocket upgrade checks.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrAccountNotFound is returned when an account lookup yields no results.
var ErrAccountNotFound = errors.New("account not found")

// ErrAccountExists is returned when attempting to create a duplicate username.
var ErrAccountExists = errors.New("account already exists")

// ErrInvalidCredentials is returned when authentication fails.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Account represents a registered player account.
type Account struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Store keeps accounts in memory, keyed by username.
type Store struct {
	mu         sync.Mutex
	accounts   map[string]Account
	bcryptCost int
}

// NewStore creates an empty account store.
//
// Precondition: bcryptCost must be within bcrypt's supported range; values
// below the minimum fall back to bcrypt.DefaultCost.
func NewStore(bcryptCost int) *Store {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Store{
		accounts:   make(map[string]Account),
		bcryptCost: bcryptCost,
	}
}

// Register creates a new account with a bcrypt-hashed password.
//
// Precondition: username and password must be non-empty.
// Postcondition: Returns the created Account, or ErrAccountExists if the
// username is taken.
func (s *Store) Register(username, password string) (Account, error) {
	if username == "" {
		return Account{}, fmt.Errorf("username must not be empty")
	}
	if password == "" {
		return Account{}, fmt.Errorf("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return Account{}, fmt.Errorf("hashing password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[username]; exists {
		return Account{}, ErrAccountExists
	}
	acct := Account{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	s.accounts[username] = acct
	return acct, nil
}

// Authenticate verifies a username and password pair.
//
// Postcondition: Returns the Account on success, or ErrInvalidCredentials
// when the username is unknown or the password does not match. The two
// failure modes are deliberately indistinguishable to the caller.
func (s *Store) Authenticate(username, password string) (Account, error) {
	s.mu.Lock()
	acct, exists := s.accounts[username]
	s.mu.Unlock()

	if !exists {
		return Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// Get returns the account for the given username.
//
// Postcondition: Returns the Account, or ErrAccountNotFound.
func (s *Store) Get(username string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, exists := s.accounts[username]
	if !exists {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

// Count returns the number of registered accounts.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}
