package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore
const (
	EnvAuthToken = "TWEETPULL_AUTH_TOKEN"
	EnvCSRFToken = "TWEETPULL_CT0"
	EnvUserAgent = "TWEETPULL_USER_AGENT"
)

// EnvironmentStore is a read-only store over environment variables
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the session from the environment under any username
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	authToken := os.Getenv(EnvAuthToken)
	csrfToken := os.Getenv(EnvCSRFToken)
	if authToken == "" || csrfToken == "" {
		return nil, ErrCredentialsNotFound
	}

	if username == "" {
		username = "default"
	}
	return &Account{
		Username:     username,
		AuthToken:    authToken,
		CSRFToken:    csrfToken,
		UserAgent:    os.Getenv(EnvUserAgent),
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(username string) bool {
	return os.Getenv(EnvAuthToken) != "" && os.Getenv(EnvCSRFToken) != ""
}
