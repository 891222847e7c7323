// Package sqlitestore provides a SQLite-backed credential store.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teemow/driveproxy/internal/credstore"
)

// Store persists user records and their linked accounts in SQLite.
type Store struct {
	db *sql.DB
}

var _ credstore.Store = (*Store)(nil)
var _ credstore.Seeder = (*Store)(nil)

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping implements credstore.Store.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.db.PingContext(ctx)
}

// PutUser replaces a user record and its linked accounts in one transaction.
func (s *Store) PutUser(ctx context.Context, user credstore.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if !user.Identity().Valid() {
		return fmt.Errorf("username and email are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().UnixMilli()
	var userID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO users (username, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(username, email) DO UPDATE SET updated_at = excluded.updated_at
		 RETURNING id`,
		user.Username, user.Email, now, now,
	).Scan(&userID)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM linked_accounts WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear linked accounts: %w", err)
	}

	for i, a := range user.GoogleCredentials {
		if strings.TrimSpace(a.Email) == "" {
			return fmt.Errorf("google_credentials[%d]: email is required", i)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO linked_accounts
			   (user_id, position, email, access_token, refresh_token, token_type, scope, id_token, expiry_date, home)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, i, a.Email,
			a.Tokens.AccessToken, a.Tokens.RefreshToken, a.Tokens.TokenType,
			a.Tokens.Scope, a.Tokens.IDToken, a.Tokens.ExpiryDate, a.Home,
		)
		if err != nil {
			return fmt.Errorf("put linked account %s: %w", a.Email, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put user: %w", err)
	}
	return nil
}

// LookupLinkedAccounts implements credstore.Store.
func (s *Store) LookupLinkedAccounts(ctx context.Context, id credstore.Identity) ([]credstore.LinkedAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var userID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE username = ? AND email = ?`,
		id.Username, id.Email,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credstore.ErrNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT email, access_token, refresh_token, token_type, scope, id_token, expiry_date, home
		 FROM linked_accounts
		 WHERE user_id = ?
		 ORDER BY position`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("lookup linked accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]credstore.LinkedAccount, 0)
	for rows.Next() {
		var a credstore.LinkedAccount
		if err := rows.Scan(
			&a.Email,
			&a.Tokens.AccessToken, &a.Tokens.RefreshToken, &a.Tokens.TokenType,
			&a.Tokens.Scope, &a.Tokens.IDToken, &a.Tokens.ExpiryDate, &a.Home,
		); err != nil {
			return nil, fmt.Errorf("scan linked account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked accounts: %w", err)
	}
	return credstore.Dedupe(accounts), nil
}
