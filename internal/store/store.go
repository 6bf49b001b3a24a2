// Package store keeps verified certificates in a SQLite database, one per
// holder.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/popsu/covidpass/internal/dgc"
)

// ErrNotFound is returned when no certificate has the requested id.
var ErrNotFound = errors.New("certificate not found")

// Entry is a stored certificate. Forename, FullName and DateOfBirth
// identify the holder; adding another certificate for the same holder
// replaces the previous one.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	Forename    string    `json:"forename"`
	FullName    string    `json:"fullName"`
	DateOfBirth string    `json:"dob"`
	Issuer      string    `json:"issuer"`
	Outcome     string    `json:"outcome"`
	Expiration  time.Time `json:"expiration"`
	AddedAt     time.Time `json:"addedAt"`
	Raw         string    `json:"raw"`
}

// Store manages SQLite operations.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS certificates (
			id TEXT PRIMARY KEY,
			forename TEXT NOT NULL,
			full_name TEXT NOT NULL,
			dob TEXT NOT NULL,
			issuer TEXT NOT NULL,
			outcome TEXT NOT NULL,
			expiration DATETIME NOT NULL,
			added_at DATETIME NOT NULL,
			raw TEXT NOT NULL,
			UNIQUE (forename, full_name, dob)
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Add stores cert under its holder and returns the stored entry.
func (s *Store) Add(ctx context.Context, cert *dgc.Certificate) (*Entry, error) {
	name := cert.Claims.Record.Name
	entry := &Entry{
		ID:          uuid.New(),
		Forename:    name.Forename,
		FullName:    name.Full(),
		DateOfBirth: cert.Claims.Record.DateOfBirth,
		Issuer:      cert.Claims.Issuer,
		Outcome:     "unverified",
		Expiration:  cert.Claims.Expiration.UTC(),
		AddedAt:     s.now().UTC().Truncate(time.Second),
		Raw:         cert.Raw,
	}
	if cert.Result != nil {
		entry.Outcome = cert.Result.Outcome.String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM certificates WHERE forename = ? AND full_name = ? AND dob = ?`,
		entry.Forename, entry.FullName, entry.DateOfBirth).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO certificates (id, forename, full_name, dob, issuer, outcome, expiration, added_at, raw)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID.String(), entry.Forename, entry.FullName, entry.DateOfBirth,
			entry.Issuer, entry.Outcome, entry.Expiration, entry.AddedAt, entry.Raw)
	case err == nil:
		entry.ID, err = uuid.Parse(existing)
		if err != nil {
			return nil, fmt.Errorf("corrupt certificate id %q: %w", existing, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE certificates SET issuer = ?, outcome = ?, expiration = ?, added_at = ?, raw = ? WHERE id = ?`,
			entry.Issuer, entry.Outcome, entry.Expiration, entry.AddedAt, entry.Raw, existing)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store certificate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit certificate: %w", err)
	}
	return entry, nil
}

const selectEntry = `SELECT id, forename, full_name, dob, issuer, outcome, expiration, added_at, raw FROM certificates`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var id string
	if err := row.Scan(&id, &e.Forename, &e.FullName, &e.DateOfBirth, &e.Issuer, &e.Outcome, &e.Expiration, &e.AddedAt, &e.Raw); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt certificate id %q: %w", id, err)
	}
	e.ID = parsed
	e.Expiration = e.Expiration.UTC()
	e.AddedAt = e.AddedAt.UTC()
	return &e, nil
}

// List returns every stored certificate ordered by holder name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntry+` ORDER BY full_name, dob`)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	return entries, nil
}

// Get returns the certificate with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectEntry+` WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}
	return e, nil
}

// Delete removes the certificate with the given id.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM certificates WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete certificate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete certificate: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
