package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goSession"
)

func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}

func TestStore_FindByCredentialIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		setupMock  func(mock pgxmock.PgxPoolIface)
		want       goSession.CredentialRecord
		wantFound  bool
		wantCode   string
	}{
		{
			name:       "match by username or email",
			identifier: "  Alice ",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT id, password_hash FROM users`).
					WithArgs("Alice").
					WillReturnRows(pgxmock.NewRows([]string{"id", "password_hash"}).AddRow("u1", "hash-1"))
			},
			want:      goSession.CredentialRecord{UserID: "u1", PasswordHash: "hash-1"},
			wantFound: true,
		},
		{
			name:       "username match ranks before email match",
			identifier: "carol@example.com",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`ORDER BY LOWER\(username\) = LOWER\(\$1\) DESC, id\s+LIMIT 1`).
					WithArgs("carol@example.com").
					WillReturnRows(pgxmock.NewRows([]string{"id", "password_hash"}).AddRow("u-name", "hash-name"))
			},
			want:      goSession.CredentialRecord{UserID: "u-name", PasswordHash: "hash-name"},
			wantFound: true,
		},
		{
			name:       "no row",
			identifier: "bob",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT id, password_hash FROM users`).
					WithArgs("bob").
					WillReturnError(pgx.ErrNoRows)
			},
		},
		{
			name:       "blank identifier skips the query",
			identifier: "   ",
			setupMock:  func(pgxmock.PgxPoolIface) {},
		},
		{
			name:       "database error",
			identifier: "alice",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT id, password_hash FROM users`).
					WithArgs("alice").
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: "USER_STORE_QUERY_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			got, found, err := New(mock).FindByCredentialIdentifier(context.Background(), tt.identifier)
			if tt.wantCode != "" {
				require.Error(t, err)
				assertErrorCode(t, err, tt.wantCode)
				assert.Contains(t, err.Error(), "connection refused")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantFound, found)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_FindNestedByID(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "username", "email", "display_name", "roles", "attributes", "created_at"}

	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT id, username, email, display_name, roles, attributes, created_at`).
			WithArgs("u1").
			WillReturnRows(pgxmock.NewRows(cols).
				AddRow("u1", "alice", "alice@example.com", "Alice", []string{"admin"}, []byte(`{"team":"core"}`), created))

		u, found, err := New(mock).FindNestedByID(context.Background(), "u1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, goSession.UserRecord{
			ID:          "u1",
			Username:    "alice",
			Email:       "alice@example.com",
			DisplayName: "Alice",
			Roles:       []string{"admin"},
			CreatedAt:   created,
			Attributes:  map[string]string{"team": "core"},
		}, u)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty attributes", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT id, username, email`).
			WithArgs("u1").
			WillReturnRows(pgxmock.NewRows(cols).
				AddRow("u1", "alice", "alice@example.com", "", []string{}, []byte(`{}`), created))

		u, found, err := New(mock).FindNestedByID(context.Background(), "u1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Nil(t, u.Attributes)
	})

	t.Run("missing", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT id, username, email`).WithArgs("gone").WillReturnError(pgx.ErrNoRows)

		_, found, err := New(mock).FindNestedByID(context.Background(), "gone")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("corrupt attributes", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT id, username, email`).
			WithArgs("u1").
			WillReturnRows(pgxmock.NewRows(cols).
				AddRow("u1", "alice", "alice@example.com", "", []string{}, []byte(`[1,2]`), created))

		_, _, err = New(mock).FindNestedByID(context.Background(), "u1")
		require.Error(t, err)
		assertErrorCode(t, err, "USER_STORE_DECODE_FAILED")
	})

	t.Run("database error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT id, username, email`).WithArgs("u1").WillReturnError(errors.New("timeout"))

		_, _, err = New(mock).FindNestedByID(context.Background(), "u1")
		require.Error(t, err)
		assertErrorCode(t, err, "USER_STORE_QUERY_FAILED")
	})
}

func TestStore_Put(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	user := goSession.UserRecord{ID: "u1", Username: "alice", Email: "alice@example.com", CreatedAt: created}

	t.Run("insert", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs("u1", "alice", "alice@example.com", "", []string{}, []byte("{}"), "hash", created).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		got, err := New(mock).Put(context.Background(), user, "hash")
		require.NoError(t, err)
		assert.Equal(t, user, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		_, err = New(mock).Put(context.Background(), user, "hash")
		assert.ErrorIs(t, err, ErrIdentifierTaken)
	})

	t.Run("identifier held in the other column", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO users .* WHERE NOT EXISTS`).
			WithArgs("u1", "alice", "alice@example.com", "", []string{}, []byte("{}"), "hash", created).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		_, err = New(mock).Put(context.Background(), user, "hash")
		assert.ErrorIs(t, err, ErrIdentifierTaken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("assigns id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), "bob", "bob@example.com", pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), "hash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		got, err := New(mock).Put(context.Background(), goSession.UserRecord{Username: "bob", Email: "bob@example.com"}, "hash")
		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
		assert.False(t, got.CreatedAt.IsZero())
	})
}

func TestStore_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM users`).WithArgs("u1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM users`).WithArgs("u1").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM users`).WithArgs("u2").WillReturnError(errors.New("boom"))

	s := New(mock)
	existed, err := s.Delete(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.Delete(context.Background(), "u2")
	assertErrorCode(t, err, "USER_STORE_WRITE_FAILED")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CountAndPing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT`).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	s := New(mock)
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.Ping(context.Background()))
	assertErrorCode(t, s.Ping(context.Background()), "POSTGRES_PING_FAILED")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineOverPostgres(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, password_hash FROM users`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"id", "password_hash"}).AddRow("u1", "plain:pw"))
	mock.ExpectQuery(`SELECT id, username, email`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "email", "display_name", "roles", "attributes", "created_at"}).
			AddRow("u1", "alice", "alice@example.com", "", []string{}, []byte(`{}`), created))
	mock.ExpectQuery(`SELECT id, password_hash FROM users`).
		WithArgs("alice").
		WillReturnError(errors.New("connection reset"))

	cfg := goSession.DefaultConfig()
	cfg.Session.Secret = []byte("0123456789abcdef0123456789abcdef")
	engine, err := goSession.New().
		WithConfig(cfg).
		WithUserResolver(New(mock)).
		WithSecureCompare(goSession.SecureCompareFunc(func(secret, encoded string) (bool, error) {
			return "plain:"+secret == encoded, nil
		})).
		WithDecoyHash("plain:decoy").
		Build()
	require.NoError(t, err)
	defer engine.Close()

	res, err := engine.Initiate(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.ID)

	_, err = engine.Initiate(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, goSession.ErrUserStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
