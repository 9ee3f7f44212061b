// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/bacx00/mrvl-livescore/pkg/models"
)

var ErrVersionMismatch = errors.New("stored match version does not precede the saved one")

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS live_matches (
	match_id   TEXT PRIMARY KEY,
	version    BIGINT NOT NULL,
	status     TEXT NOT NULL,
	state      TEXT NOT NULL,
	updated_at BIGINT NOT NULL
)`

// SQLStore keeps each match as a JSON document next to its version. Saves are
// optimistic: the row is only updated when it still holds the previous version.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Open connects to the database of driver, verifies it within timeout and creates
// the table when missing.
func Open(driver string, dsn string, timeout time.Duration) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}

	if driver == DriverSQLite {
		// one writer, the database file is locked per write anyway
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database within %v: %w", timeout, err)
	}

	store := NewSQLStore(db, driver)
	if err = store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// Migrate creates the match table when it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create live_matches table: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Create(ctx context.Context, match *models.Match) error {
	state, err := json.Marshal(match)
	if err != nil {
		return err
	}

	query := `INSERT INTO live_matches (match_id, version, status, state, updated_at) VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.rebind(query),
		match.ID,
		match.Version,
		string(match.Status),
		string(state),
		match.UpdatedAt.UnixMilli(),
	)

	return s.handleError(err, match.ID)
}

func (s *SQLStore) Load(ctx context.Context, matchID string) (*models.Match, error) {
	query := `SELECT state FROM live_matches WHERE match_id = ?`

	var state string
	err := s.db.QueryRowContext(ctx, s.rebind(query), matchID).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.NotFoundError{Kind: "match", Ref: matchID}
		}
		return nil, err
	}

	match := &models.Match{}
	if err = json.Unmarshal([]byte(state), match); err != nil {
		return nil, fmt.Errorf("failed to decode match %s: %w", matchID, err)
	}

	return match, nil
}

func (s *SQLStore) Save(ctx context.Context, match *models.Match) error {
	state, err := json.Marshal(match)
	if err != nil {
		return err
	}

	query := `
		UPDATE live_matches
		SET version = ?, status = ?, state = ?, updated_at = ?
		WHERE match_id = ? AND version = ?`

	result, err := s.db.ExecContext(ctx, s.rebind(query),
		match.Version,
		string(match.Status),
		string(state),
		match.UpdatedAt.UnixMilli(),
		match.ID,
		match.Version-1,
	)
	if err != nil {
		return s.handleError(err, match.ID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: match %s at version %d", ErrVersionMismatch, match.ID, match.Version-1)
	}

	return nil
}

// rebind turns ? placeholders into $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) handleError(err error, matchID string) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", models.ErrMatchExists, matchID)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", models.ErrMatchExists, matchID)
	}

	return err
}
