package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements UserStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ UserStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based user store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		portfolio TEXT NOT NULL,
		access_token TEXT NOT NULL DEFAULT '',
		messages TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get loads a user's state.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (UserData, bool, error) {
	var portfolioJSON, accessToken, messagesJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT portfolio, access_token, messages FROM users WHERE user_id = ?
	`, userID).Scan(&portfolioJSON, &accessToken, &messagesJSON)
	if err == sql.ErrNoRows {
		return UserData{}, false, nil
	}
	if err != nil {
		return UserData{}, false, fmt.Errorf("failed to query user: %w", err)
	}

	var data UserData
	if err := json.Unmarshal([]byte(portfolioJSON), &data.Portfolio); err != nil {
		return UserData{}, false, fmt.Errorf("failed to decode portfolio: %w", err)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &data.Messages); err != nil {
		return UserData{}, false, fmt.Errorf("failed to decode messages: %w", err)
	}
	data.AccessToken = accessToken

	return data, true, nil
}

// Save applies a patch inside a transaction so concurrent chat turns for the
// same user don't interleave partial writes.
func (s *SQLiteStore) Save(ctx context.Context, userID string, patch UserDataPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var data UserData
	var portfolioJSON, accessToken, messagesJSON string
	err = tx.QueryRowContext(ctx, `
		SELECT portfolio, access_token, messages FROM users WHERE user_id = ?
	`, userID).Scan(&portfolioJSON, &accessToken, &messagesJSON)
	switch {
	case err == sql.ErrNoRows:
		data = UserData{}
	case err != nil:
		return fmt.Errorf("failed to query user: %w", err)
	default:
		if err := json.Unmarshal([]byte(portfolioJSON), &data.Portfolio); err != nil {
			return fmt.Errorf("failed to decode portfolio: %w", err)
		}
		if err := json.Unmarshal([]byte(messagesJSON), &data.Messages); err != nil {
			return fmt.Errorf("failed to decode messages: %w", err)
		}
		data.AccessToken = accessToken
	}

	if patch.Portfolio != nil {
		data.Portfolio = *patch.Portfolio
	}
	if patch.AccessToken != nil {
		data.AccessToken = *patch.AccessToken
	}
	if patch.Messages != nil {
		data.Messages = append(data.Messages, patch.Messages...)
	}

	newPortfolio, err := json.Marshal(data.Portfolio)
	if err != nil {
		return fmt.Errorf("failed to encode portfolio: %w", err)
	}
	newMessages, err := json.Marshal(data.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (user_id, portfolio, access_token, messages, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			portfolio = excluded.portfolio,
			access_token = excluded.access_token,
			messages = excluded.messages,
			updated_at = excluded.updated_at
	`, userID, string(newPortfolio), data.AccessToken, string(newMessages), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete removes all state for a user.
func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
