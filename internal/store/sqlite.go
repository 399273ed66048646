package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS pending_verifications (
    email      TEXT PRIMARY KEY,
    token      TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS verified_emails (
    email       TEXT PRIMARY KEY,
    verified_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS subscriptions (
    email TEXT PRIMARY KEY,
    items TEXT NOT NULL
);`

// SQLite is a Persister writing the full state on every save.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection: ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (p *SQLite) Close() error { return p.db.Close() }

func (p *SQLite) Load(ctx context.Context) (State, error) {
	st := State{
		Pending:       make(map[string]Pending),
		Verified:      make(map[string]time.Time),
		Subscriptions: make(map[string][]string),
	}

	rows, err := p.db.QueryContext(ctx, `SELECT email, token, created_at FROM pending_verifications`)
	if err != nil {
		return State{}, fmt.Errorf("query pending: %w", err)
	}
	for rows.Next() {
		var email, token, created string
		if err := rows.Scan(&email, &token, &created); err != nil {
			rows.Close()
			return State{}, fmt.Errorf("scan pending: %w", err)
		}
		t, err := time.Parse(timeFormat, created)
		if err != nil {
			rows.Close()
			return State{}, fmt.Errorf("parse pending created_at for %s: %w", email, err)
		}
		st.Pending[email] = Pending{Token: token, CreatedAt: t}
	}
	if err := closeRows(rows); err != nil {
		return State{}, err
	}

	rows, err = p.db.QueryContext(ctx, `SELECT email, verified_at FROM verified_emails`)
	if err != nil {
		return State{}, fmt.Errorf("query verified: %w", err)
	}
	for rows.Next() {
		var email, at string
		if err := rows.Scan(&email, &at); err != nil {
			rows.Close()
			return State{}, fmt.Errorf("scan verified: %w", err)
		}
		t, err := time.Parse(timeFormat, at)
		if err != nil {
			rows.Close()
			return State{}, fmt.Errorf("parse verified_at for %s: %w", email, err)
		}
		st.Verified[email] = t
	}
	if err := closeRows(rows); err != nil {
		return State{}, err
	}

	rows, err = p.db.QueryContext(ctx, `SELECT email, items FROM subscriptions`)
	if err != nil {
		return State{}, fmt.Errorf("query subscriptions: %w", err)
	}
	for rows.Next() {
		var email, raw string
		if err := rows.Scan(&email, &raw); err != nil {
			rows.Close()
			return State{}, fmt.Errorf("scan subscription: %w", err)
		}
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			rows.Close()
			return State{}, fmt.Errorf("decode items for %s: %w", email, err)
		}
		st.Subscriptions[email] = items
	}
	if err := closeRows(rows); err != nil {
		return State{}, err
	}
	return st, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate rows: %w", err)
	}
	return rows.Close()
}

// Save replaces every table's contents in one transaction.
func (p *SQLite) Save(ctx context.Context, st State) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"pending_verifications", "verified_emails", "subscriptions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for email, pv := range st.Pending {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pending_verifications (email, token, created_at) VALUES (?, ?, ?)`,
			email, pv.Token, pv.CreatedAt.UTC().Format(timeFormat)); err != nil {
			return fmt.Errorf("insert pending %s: %w", email, err)
		}
	}
	for email, at := range st.Verified {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO verified_emails (email, verified_at) VALUES (?, ?)`,
			email, at.UTC().Format(timeFormat)); err != nil {
			return fmt.Errorf("insert verified %s: %w", email, err)
		}
	}
	for email, items := range st.Subscriptions {
		raw, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("encode items for %s: %w", email, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO subscriptions (email, items) VALUES (?, ?)`, email, string(raw)); err != nil {
			return fmt.Errorf("insert subscription %s: %w", email, err)
		}
	}
	return tx.Commit()
}
