package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is a thin attribute-condition view over a sqlite file. All methods
// autocommit; see the package doc for the consistency contract.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the sqlite file at cfg.Path and ensures
// the schema exists.
func Open(cfg Config, log zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug().Str("path", cfg.Path).Msg("store opened")
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Row is one record keyed by attribute name. Value types follow the sqlite
// driver: INTEGER columns scan as int64, REAL as float64, TEXT as string.
type Row map[string]any

func (r Row) Int64(attr string) int64 {
	switch v := r[attr].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func (r Row) Float64(attr string) float64 {
	switch v := r[attr].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func (r Row) String(attr string) string {
	switch v := r[attr].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func (r Row) Bool(attr string) bool { return r.Int64(attr) != 0 }

// Query returns every record matching conds, restricted to attrs
// (all attributes if attrs is empty). No match yields an empty slice.
func (s *Store) Query(ctx context.Context, table string, conds []Cond, attrs ...string) ([]Row, error) {
	cols := "*"
	if len(attrs) > 0 {
		clean := make([]string, len(attrs))
		for i, a := range attrs {
			clean[i] = cleanIdent(a)
		}
		cols = strings.Join(clean, ", ")
	}
	where, args, err := whereClause(conds)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+cols+" FROM "+cleanIdent(table)+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(names))
		for i, n := range names {
			r[n] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryOne returns the first record matching conds, or ErrNotFound.
func (s *Store) QueryOne(ctx context.Context, table string, conds []Cond, attrs ...string) (Row, error) {
	rows, err := s.Query(ctx, table, conds, attrs...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Insert appends one record and returns the assigned rowid. A primary key
// collision is reported as ErrConstraint.
func (s *Store) Insert(ctx context.Context, table string, attrs []string, values ...any) (int64, error) {
	if len(attrs) == 0 || len(attrs) != len(values) {
		return 0, fmt.Errorf("insert into %s: %d attributes, %d values", table, len(attrs), len(values))
	}
	clean := make([]string, len(attrs))
	for i, a := range attrs {
		clean[i] = cleanIdent(a)
	}
	ph := strings.Repeat("?, ", len(values))

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO "+cleanIdent(table)+" ("+strings.Join(clean, ", ")+") VALUES ("+ph[:len(ph)-2]+")",
		values...)
	if err != nil {
		if isConstraint(err) {
			return 0, fmt.Errorf("insert into %s: %w", table, ErrConstraint)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// Update sets attr to value on every record matching conds.
// Zero matching records is a no-op, not an error.
func (s *Store) Update(ctx context.Context, table, attr string, value any, conds []Cond) error {
	where, args, err := whereClause(conds)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE "+cleanIdent(table)+" SET "+cleanIdent(attr)+" = ?"+where,
		append([]any{value}, args...)...)
	return err
}

// Delete removes every record matching conds.
// Zero matching records is a no-op, not an error.
func (s *Store) Delete(ctx context.Context, table string, conds []Cond) error {
	where, args, err := whereClause(conds)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM "+cleanIdent(table)+where, args...)
	return err
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
