// Package store owns the demo data: the in-memory user list and the sqlite
// prediction log.
package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUserNotFound is returned when no live record has the given id.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailExists is returned when a live record already has the email.
	ErrEmailExists = errors.New("user with this email already exists")
	// ErrInvalidEmail is returned when the email does not contain "@".
	ErrInvalidEmail = errors.New("invalid email format provided")
	// ErrInvalidAge is returned when age is outside 0-150.
	ErrInvalidAge = errors.New("age must be between 0 and 150")
)

// User is a demo CRUD record.
type User struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       *int      `json:"age,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStore is an ordered in-memory user list. Ids are sequential and never
// reused, even after delete. Append and delete are single atomic operations
// under one mutex.
type UserStore struct {
	mu     sync.RWMutex
	users  []User
	nextID int
}

// NewUserStore returns an empty store.
func NewUserStore() *UserStore {
	return &UserStore{nextID: 1}
}

// Create validates and appends a new user. Validation runs before the id is
// consumed, so rejected requests do not burn ids.
func (s *UserStore) Create(name, email string, age *int) (User, error) {
	if !strings.Contains(email, "@") {
		return User{}, ErrInvalidEmail
	}
	if age != nil && (*age < 0 || *age > 150) {
		return User{}, ErrInvalidAge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return User{}, fmt.Errorf("%w: %s", ErrEmailExists, email)
		}
	}

	user := User{
		ID:        s.nextID,
		Name:      name,
		Email:     email,
		Age:       age,
		CreatedAt: time.Now().UTC(),
	}
	s.nextID++
	s.users = append(s.users, user)
	return user, nil
}

// Validate runs the same checks Create applies without consuming an id.
// Callers use it to reject bad input up front; Create re-checks atomically.
func (s *UserStore) Validate(email string, age *int) error {
	if !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	if age != nil && (*age < 0 || *age > 150) {
		return ErrInvalidAge
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return fmt.Errorf("%w: %s", ErrEmailExists, email)
		}
	}
	return nil
}

// List returns users matching the search term (case-insensitive over name
// and email) with offset/limit pagination applied. A zero limit means no
// limit. Callers validate offset/limit signs before calling.
func (s *UserStore) List(search string, offset, limit int) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]User, 0, len(s.users))
	needle := strings.ToLower(search)
	for _, u := range s.users {
		if needle != "" &&
			!strings.Contains(strings.ToLower(u.Name), needle) &&
			!strings.Contains(strings.ToLower(u.Email), needle) {
			continue
		}
		filtered = append(filtered, u)
	}

	if offset >= len(filtered) {
		return []User{}
	}
	filtered = filtered[offset:]
	if limit > 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}

	out := make([]User, len(filtered))
	copy(out, filtered)
	return out
}

// Get returns the live record with the given id.
func (s *UserStore) Get(id int) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// Delete removes exactly the record with the given id and returns it.
func (s *UserStore) Delete(id int) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range s.users {
		if u.ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return u, nil
		}
	}
	return User{}, fmt.Errorf("%w: id %d", ErrUserNotFound, id)
}

// Count returns the number of live records.
func (s *UserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
