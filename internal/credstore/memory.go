package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// MemoryStore keeps user records in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[Identity]User
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[Identity]User)}
}

// PutUser inserts or replaces a user record.
func (s *MemoryStore) PutUser(_ context.Context, user User) error {
	id := user.Identity()
	if !id.Valid() {
		return fmt.Errorf("username and email are required")
	}
	if err := checkUniqueEmails(user.GoogleCredentials); err != nil {
		return err
	}

	accounts := make([]LinkedAccount, len(user.GoogleCredentials))
	copy(accounts, user.GoogleCredentials)
	user.GoogleCredentials = accounts

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = user
	return nil
}

// LookupLinkedAccounts implements Store.
func (s *MemoryStore) LookupLinkedAccounts(ctx context.Context, id Identity) ([]LinkedAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	user, ok := s.users[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	accounts := make([]LinkedAccount, len(user.GoogleCredentials))
	copy(accounts, user.GoogleCredentials)
	return Dedupe(accounts), nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close implements Store.
func (s *MemoryStore) Close(context.Context) error {
	return nil
}

// LoadSeedFile reads a JSON array of user records.
func LoadSeedFile(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return users, nil
}

// Seed writes every user into s, stopping at the first failure.
func Seed(ctx context.Context, s Seeder, users []User) error {
	for _, u := range users {
		if err := s.PutUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %q: %w", u.Username, err)
		}
	}
	return nil
}

func checkUniqueEmails(accounts []LinkedAccount) error {
	seen := make(map[string]struct{}, len(accounts))
	for i, a := range accounts {
		key := NormalizeEmail(a.Email)
		if key == "" {
			return fmt.Errorf("google_credentials[%d]: email is required", i)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("google_credentials[%d]: duplicate account %s", i, a.Email)
		}
		seen[key] = struct{}{}
	}
	return nil
}
