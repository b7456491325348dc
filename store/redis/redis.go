// Package redis resolves users from Redis.
//
// Each user is a JSON document at <prefix>:user:<id>. Lowercased usernames
// and emails are index keys at <prefix>:ident:<identifier> holding the id, and
// <prefix>:user:<id>:idents tracks which index keys a user owns so that
// updates and deletes can release them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/MrEthical07/goSession"
)

// ErrIdentifierTaken is returned by Put when a username or email already
// belongs to a different user.
var ErrIdentifierTaken = errors.New("username or email already in use")

const defaultPrefix = "gs"

const putUserScript = `
for i = 3, #KEYS do
  local owner = redis.call("GET", KEYS[i])
  if owner and owner ~= ARGV[1] then
    return 0
  end
end
local old = redis.call("SMEMBERS", KEYS[2])
for _, k in ipairs(old) do
  redis.call("DEL", k)
end
redis.call("DEL", KEYS[2])
for i = 3, #KEYS do
  redis.call("SET", KEYS[i], ARGV[1])
  redis.call("SADD", KEYS[2], KEYS[i])
end
redis.call("SET", KEYS[1], ARGV[2])
return 1
`

const deleteUserScript = `
local old = redis.call("SMEMBERS", KEYS[2])
for _, k in ipairs(old) do
  redis.call("DEL", k)
end
redis.call("DEL", KEYS[2])
return redis.call("DEL", KEYS[1])
`

var (
	putUserLua    = redis.NewScript(putUserScript)
	deleteUserLua = redis.NewScript(deleteUserScript)
)

type document struct {
	goSession.UserRecord
	PasswordHash string `json:"passwordHash"`
}

// Store is a goSession.UserResolver backed by Redis. It is safe for concurrent use.
type Store struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New returns a store using client. An empty prefix selects "gs".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix, now: time.Now}
}

func (s *Store) userKey(id string) string   { return s.prefix + ":user:" + id }
func (s *Store) identsKey(id string) string { return s.prefix + ":user:" + id + ":idents" }
func (s *Store) identKey(ident string) string {
	return s.prefix + ":ident:" + normalize(ident)
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return oops.Code("REDIS_PING_FAILED").Wrap(err)
	}
	return nil
}

// Put inserts or replaces a user atomically. An empty ID is assigned a UUID
// and a zero CreatedAt is set to now. The stored record is returned.
func (s *Store) Put(ctx context.Context, user goSession.UserRecord, passwordHash string) (goSession.UserRecord, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	}

	payload, err := json.Marshal(document{UserRecord: user, PasswordHash: passwordHash})
	if err != nil {
		return goSession.UserRecord{}, oops.Code("REDIS_ENCODE_FAILED").With("user_id", user.ID).Wrap(err)
	}

	keys := []string{s.userKey(user.ID), s.identsKey(user.ID)}
	for _, ident := range []string{user.Username, user.Email} {
		if strings.TrimSpace(ident) != "" {
			keys = append(keys, s.identKey(ident))
		}
	}

	ok, err := putUserLua.Run(ctx, s.client, keys, user.ID, payload).Int()
	if err != nil {
		return goSession.UserRecord{}, oops.Code("REDIS_WRITE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	if ok == 0 {
		return goSession.UserRecord{}, ErrIdentifierTaken
	}
	return cloneUser(user), nil
}

// Delete removes a user and its index keys, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, userID string) (bool, error) {
	n, err := deleteUserLua.Run(ctx, s.client, []string{s.userKey(userID), s.identsKey(userID)}).Int()
	if err != nil {
		return false, oops.Code("REDIS_WRITE_FAILED").With("user_id", userID).Wrap(err)
	}
	return n == 1, nil
}

// FindByCredentialIdentifier implements goSession.UserResolver.
func (s *Store) FindByCredentialIdentifier(ctx context.Context, identifier string) (goSession.CredentialRecord, bool, error) {
	if normalize(identifier) == "" {
		return goSession.CredentialRecord{}, false, nil
	}
	id, err := s.client.Get(ctx, s.identKey(identifier)).Result()
	if errors.Is(err, redis.Nil) {
		return goSession.CredentialRecord{}, false, nil
	}
	if err != nil {
		return goSession.CredentialRecord{}, false, oops.Code("REDIS_LOOKUP_FAILED").With("op", "ident").Wrap(err)
	}

	doc, found, err := s.load(ctx, id)
	if err != nil || !found {
		return goSession.CredentialRecord{}, false, err
	}
	return goSession.CredentialRecord{UserID: doc.ID, PasswordHash: doc.PasswordHash}, true, nil
}

// FindNestedByID implements goSession.UserResolver.
func (s *Store) FindNestedByID(ctx context.Context, userID string) (goSession.UserRecord, bool, error) {
	doc, found, err := s.load(ctx, userID)
	if err != nil || !found {
		return goSession.UserRecord{}, false, err
	}
	return doc.UserRecord, true, nil
}

func (s *Store) load(ctx context.Context, userID string) (document, bool, error) {
	raw, err := s.client.Get(ctx, s.userKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return document{}, false, nil
	}
	if err != nil {
		return document{}, false, oops.Code("REDIS_LOOKUP_FAILED").With("op", "user").With("user_id", userID).Wrap(err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document{}, false, oops.Code("REDIS_DECODE_FAILED").With("user_id", userID).Wrap(err)
	}
	return doc, true, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func cloneUser(u goSession.UserRecord) goSession.UserRecord {
	u.Roles = slices.Clone(u.Roles)
	u.Attributes = maps.Clone(u.Attributes)
	return u
}
