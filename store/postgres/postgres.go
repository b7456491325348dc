// Package postgres resolves users from a PostgreSQL users table through pgx.
//
// The schema ships as embedded migrations; see [NewMigrator]. Usernames and
// emails are unique case-insensitively, so a credential identifier matches at
// most one row.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/MrEthical07/goSession"
)

// ErrIdentifierTaken is returned by Put when a username or email already
// belongs to a different user.
var ErrIdentifierTaken = errors.New("username or email already in use")

// poolIface is the subset of *pgxpool.Pool the store uses.
type poolIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// Store is a goSession.UserResolver backed by PostgreSQL.
type Store struct {
	pool  poolIface
	close func()
	now   func() time.Time
}

// New returns a store over an existing pool.
func New(pool poolIface) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("POSTGRES_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("POSTGRES_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	s := New(pool)
	s.close = pool.Close
	return s, nil
}

// Close releases the pool opened by Connect. It is a no-op for stores built with New.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("POSTGRES_PING_FAILED").Wrap(err)
	}
	return nil
}

// FindByCredentialIdentifier implements goSession.UserResolver.
func (s *Store) FindByCredentialIdentifier(ctx context.Context, identifier string) (goSession.CredentialRecord, bool, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return goSession.CredentialRecord{}, false, nil
	}

	var cred goSession.CredentialRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, password_hash FROM users
		 WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)
		 ORDER BY LOWER(username) = LOWER($1) DESC, id
		 LIMIT 1`,
		identifier).Scan(&cred.UserID, &cred.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return goSession.CredentialRecord{}, false, nil
	}
	if err != nil {
		return goSession.CredentialRecord{}, false, oops.Code("USER_STORE_QUERY_FAILED").
			With("operation", "find by credential identifier").Wrap(err)
	}
	return cred, true, nil
}

// FindNestedByID implements goSession.UserResolver.
func (s *Store) FindNestedByID(ctx context.Context, userID string) (goSession.UserRecord, bool, error) {
	var (
		u     goSession.UserRecord
		attrs []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, display_name, roles, attributes, created_at
		 FROM users WHERE id = $1`,
		userID).Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &u.Roles, &attrs, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return goSession.UserRecord{}, false, nil
	}
	if err != nil {
		return goSession.UserRecord{}, false, oops.Code("USER_STORE_QUERY_FAILED").
			With("operation", "find nested by id").With("user_id", userID).Wrap(err)
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &u.Attributes); err != nil {
			return goSession.UserRecord{}, false, oops.Code("USER_STORE_DECODE_FAILED").
				With("user_id", userID).Wrap(err)
		}
	}
	if len(u.Attributes) == 0 {
		u.Attributes = nil
	}
	return u, true, nil
}

// Put inserts or replaces a user. An empty ID is assigned a UUID and a zero
// CreatedAt is set to now. The stored record is returned.
func (s *Store) Put(ctx context.Context, user goSession.UserRecord, passwordHash string) (goSession.UserRecord, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC().Truncate(time.Microsecond)
	}
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	attrs, err := json.Marshal(user.Attributes)
	if err != nil || user.Attributes == nil {
		attrs = []byte("{}")
	}

	// Usernames and emails share one identifier namespace: the insert is
	// skipped when another user holds either value in the other column.
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, display_name, roles, attributes, password_hash, created_at)
		 SELECT $1::text, $2::text, $3::text, $4::text, $5::text[], $6::jsonb, $7::text, $8::timestamptz
		 WHERE NOT EXISTS (
		   SELECT 1 FROM users
		   WHERE id <> $1::text
		     AND (LOWER(username) = LOWER($3::text) OR LOWER(email) = LOWER($2::text)))
		 ON CONFLICT (id) DO UPDATE SET
		   username = $2, email = $3, display_name = $4, roles = $5,
		   attributes = $6, password_hash = $7, updated_at = now()`,
		user.ID, user.Username, user.Email, user.DisplayName, roles, attrs, passwordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return goSession.UserRecord{}, ErrIdentifierTaken
		}
		return goSession.UserRecord{}, oops.Code("USER_STORE_WRITE_FAILED").
			With("operation", "put user").With("user_id", user.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return goSession.UserRecord{}, ErrIdentifierTaken
	}
	return user, nil
}

// Delete removes a user and reports whether it existed.
func (s *Store) Delete(ctx context.Context, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return false, oops.Code("USER_STORE_WRITE_FAILED").
			With("operation", "delete user").With("user_id", userID).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Count returns the number of users.
func (s *Store) Count(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `SELECT COUNT(*) FROM users`)
	if err != nil {
		return 0, oops.Code("USER_STORE_QUERY_FAILED").With("operation", "count users").Wrap(err)
	}
	n, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, oops.Code("USER_STORE_QUERY_FAILED").With("operation", "scan user count").Wrap(err)
	}
	return int(n), nil
}
