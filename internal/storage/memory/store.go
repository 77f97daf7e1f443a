// Package memory is an in-process user store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/handson"
)

// Store keeps users in maps guarded by one mutex. Ids start at 1.
type Store struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]handson.UserRecord
	byUsername map[string]int64
	byEmail    map[string]int64
}

func New() *Store {
	return &Store{
		nextID:     1,
		byID:       make(map[int64]handson.UserRecord),
		byUsername: make(map[string]int64),
		byEmail:    make(map[string]int64),
	}
}

func (s *Store) FindByUsername(_ context.Context, username string) (handson.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return handson.UserRecord{}, fmt.Errorf("username %q: %w", username, handson.ErrUserNotFound)
	}
	return cloneRecord(s.byID[id]), nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (handson.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return handson.UserRecord{}, fmt.Errorf("email %q: %w", email, handson.ErrUserNotFound)
	}
	return cloneRecord(s.byID[id]), nil
}

func (s *Store) FindByID(_ context.Context, id int64) (handson.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return handson.UserRecord{}, fmt.Errorf("id %d: %w", id, handson.ErrUserNotFound)
	}
	return cloneRecord(u), nil
}

// List returns all users ordered by id.
func (s *Store) List(_ context.Context) ([]handson.UserRecord, error) {
	s.mu.RLock()
	out := make([]handson.UserRecord, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, cloneRecord(u))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Insert enforces username and email uniqueness atomically.
func (s *Store) Insert(_ context.Context, nu handson.NewUser) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[nu.Username]; ok {
		return 0, handson.ErrUsernameTaken
	}
	if _, ok := s.byEmail[nu.Email]; ok {
		return 0, handson.ErrEmailTaken
	}

	id := s.nextID
	s.nextID++
	s.byID[id] = cloneRecord(handson.UserRecord{
		ID:         id,
		Username:   nu.Username,
		Email:      nu.Email,
		Credential: nu.Credential,
		Roles:      nu.Roles,
		CreatedAt:  nu.CreatedAt,
		IsActive:   nu.IsActive,
	})
	s.byUsername[nu.Username] = id
	s.byEmail[nu.Email] = id
	return id, nil
}

func (s *Store) UpdateLastLogin(_ context.Context, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	u.LastLogin = &at
	s.byID[id] = u
	return true, nil
}

// SetActive toggles the active flag. It reports whether the user exists.
func (s *Store) SetActive(id int64, active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return false
	}
	u.IsActive = active
	s.byID[id] = u
	return true
}

func (s *Store) Ping(context.Context) error { return nil }

func cloneRecord(u handson.UserRecord) handson.UserRecord {
	u.Roles = append([]string(nil), u.Roles...)
	u.Credential.Hash = append([]byte(nil), u.Credential.Hash...)
	u.Credential.Salt = append([]byte(nil), u.Credential.Salt...)
	if u.LastLogin != nil {
		t := *u.LastLogin
		u.LastLogin = &t
	}
	return u
}
