// Package postgres implements journal.Repository backed by PostgreSQL.
//
// Entries live in a single journal_entries table keyed by seq. The
// primary key doubles as the append guard: two writers racing for the same
// seq cannot both succeed.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/ironpki/journal"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the journal table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

// Store implements journal.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ journal.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const columns = `seq, id, operation, name, commands, result, error_kind, error, created_at, duration_ms, prev_hash`

func (s *Store) Append(e journal.Entry) error {
	ctx := context.Background()
	// Insert only when e directly follows the current last entry.
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO journal_entries (`+columns+`)
		 SELECT $1::bigint, $2::text, $3::text, $4::text, $5::text[], $6::text,
		        $7::text, $8::text, $9::text, $10::bigint, $11::text
		 WHERE (SELECT COALESCE(MAX(seq), 0) FROM journal_entries) = $1::bigint - 1`,
		int64(e.Seq), e.ID, e.Operation, e.Name, e.Commands, e.Result,
		e.ErrorKind, e.Error, e.CreatedAt, e.DurationMS, e.PrevHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return journal.ErrSequence
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return journal.ErrSequence
	}
	return nil
}

func scanEntry(row pgx.Row) (journal.Entry, error) {
	var (
		e   journal.Entry
		seq int64
	)
	err := row.Scan(&seq, &e.ID, &e.Operation, &e.Name, &e.Commands, &e.Result,
		&e.ErrorKind, &e.Error, &e.CreatedAt, &e.DurationMS, &e.PrevHash)
	e.Seq = uint64(seq)
	return e, err
}

func (s *Store) Last() (journal.Entry, bool, error) {
	e, err := scanEntry(s.pool.QueryRow(context.Background(),
		`SELECT `+columns+` FROM journal_entries ORDER BY seq DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return journal.Entry{}, false, nil
	}
	if err != nil {
		return journal.Entry{}, false, err
	}
	return e, true, nil
}

func (s *Store) List() ([]journal.Entry, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT `+columns+` FROM journal_entries ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
