// Package memory is an in-process UserResolver.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goSession"
)

// ErrIdentifierTaken is returned by Put when a username or email already
// belongs to a different user.
var ErrIdentifierTaken = errors.New("username or email already in use")

type entry struct {
	user goSession.UserRecord
	hash string
}

// Store keeps users in memory. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]entry
	byIdent map[string]string
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:    make(map[string]entry),
		byIdent: make(map[string]string),
		now:     time.Now,
	}
}

// Put inserts or replaces a user. An empty ID is assigned a UUID and a zero
// CreatedAt is set to now. The stored record is returned.
func (s *Store) Put(user goSession.UserRecord, passwordHash string) (goSession.UserRecord, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	user = cloneUser(user)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ident := range identifiers(user) {
		if owner, ok := s.byIdent[ident]; ok && owner != user.ID {
			return goSession.UserRecord{}, ErrIdentifierTaken
		}
	}

	if prev, ok := s.byID[user.ID]; ok {
		for _, ident := range identifiers(prev.user) {
			delete(s.byIdent, ident)
		}
	}
	for _, ident := range identifiers(user) {
		s.byIdent[ident] = user.ID
	}
	s.byID[user.ID] = entry{user: user, hash: passwordHash}

	return cloneUser(user), nil
}

// Delete removes a user and reports whether it existed.
func (s *Store) Delete(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[userID]
	if !ok {
		return false
	}
	for _, ident := range identifiers(e.user) {
		delete(s.byIdent, ident)
	}
	delete(s.byID, userID)
	return true
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// FindByCredentialIdentifier implements goSession.UserResolver.
func (s *Store) FindByCredentialIdentifier(ctx context.Context, identifier string) (goSession.CredentialRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return goSession.CredentialRecord{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdent[normalize(identifier)]
	if !ok {
		return goSession.CredentialRecord{}, false, nil
	}
	e := s.byID[id]
	return goSession.CredentialRecord{UserID: id, PasswordHash: e.hash}, true, nil
}

// FindNestedByID implements goSession.UserResolver.
func (s *Store) FindNestedByID(ctx context.Context, userID string) (goSession.UserRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return goSession.UserRecord{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[userID]
	if !ok {
		return goSession.UserRecord{}, false, nil
	}
	return cloneUser(e.user), true, nil
}

func identifiers(u goSession.UserRecord) []string {
	out := make([]string, 0, 2)
	if u.Username != "" {
		out = append(out, normalize(u.Username))
	}
	if u.Email != "" {
		out = append(out, normalize(u.Email))
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func cloneUser(u goSession.UserRecord) goSession.UserRecord {
	u.Roles = slices.Clone(u.Roles)
	u.Attributes = maps.Clone(u.Attributes)
	return u
}
