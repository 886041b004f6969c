package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shpitdev/community-landscape/internal/pipeline"
	"github.com/shpitdev/community-landscape/pkg/pipeline/schema"
	_ "modernc.org/sqlite"
)

// SQLiteFile is the database file name used inside the data directory.
const SQLiteFile = "landscape.db"

// SQLitePath returns the database path for a data directory.
func SQLitePath(dir string) string {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, SQLiteFile)
}

// SQLite stores all artifacts in one database. Table columns are generated from the
// pipeline contracts, so the follow-list and community tables mirror the CSV layout.
type SQLite struct {
	db        *sql.DB
	following tableSpec
	rows      tableSpec
}

type tableSpec struct {
	name   string
	fields []schema.Field
}

func (t tableSpec) createSQL() string {
	cols := []string{"username TEXT NOT NULL", "position INTEGER NOT NULL"}
	for _, f := range t.fields {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(f.Name), schema.SQLType(f.Type)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s,\n\tPRIMARY KEY (username, position)\n)",
		quoteIdent(t.name), strings.Join(cols, ",\n\t"))
}

func (t tableSpec) insertSQL() string {
	names := []string{"username", "position"}
	marks := []string{"?", "?"}
	for _, f := range t.fields {
		names = append(names, quoteIdent(f.Name))
		marks = append(marks, "?")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(t.name), strings.Join(names, ", "), strings.Join(marks, ", "))
}

func (t tableSpec) selectSQL() string {
	names := make([]string, len(t.fields))
	for i, f := range t.fields {
		names[i] = quoteIdent(f.Name)
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE username = ? ORDER BY position",
		strings.Join(names, ", "), quoteIdent(t.name))
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// OpenSQLite opens (creating if needed) the database at path. Pass ":memory:" in tests.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	following, rows := pipeline.AccountContract(), pipeline.Contract()
	s := &SQLite{
		db:        db,
		following: tableSpec{name: following.Name, fields: following.Fields},
		rows:      tableSpec{name: rows.Name, fields: rows.Fields},
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		"PRAGMA busy_timeout=5000",
		`CREATE TABLE IF NOT EXISTS artifacts (
	username   TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	created_at TEXT NOT NULL
)`,
		s.following.createSQL(),
		s.rows.createSQL(),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, username string) (Artifact, error) {
	u, err := NormalizeUsername(username)
	if err != nil {
		return Artifact{}, err
	}

	a := Artifact{Username: u}
	var created string
	err = s.db.QueryRowContext(ctx, "SELECT user_id, created_at FROM artifacts WHERE username = ?", u).Scan(&a.UserID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, ErrNotFound
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("load artifact: %w", err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Artifact{}, fmt.Errorf("load artifact: created_at: %w", err)
	}

	err = s.scan(ctx, s.following, u, func(get func(string) (string, bool)) error {
		acct, err := pipeline.AccountFromValues(get)
		if err != nil {
			return err
		}
		a.Following = append(a.Following, acct)
		return nil
	})
	if err != nil {
		return Artifact{}, err
	}
	err = s.scan(ctx, s.rows, u, func(get func(string) (string, bool)) error {
		row, err := pipeline.RowFromValues(get)
		if err != nil {
			return err
		}
		a.Rows = append(a.Rows, row)
		return nil
	})
	if err != nil {
		return Artifact{}, err
	}
	return a, nil
}

func (s *SQLite) scan(ctx context.Context, t tableSpec, username string, fn func(get func(string) (string, bool)) error) error {
	rs, err := s.db.QueryContext(ctx, t.selectSQL(), username)
	if err != nil {
		return fmt.Errorf("query %s: %w", t.name, err)
	}
	defer func() {
		_ = rs.Close()
	}()

	index := make(map[string]int, len(t.fields))
	for i, f := range t.fields {
		index[f.Name] = i
	}
	vals := make([]sql.NullString, len(t.fields))
	dest := make([]any, len(t.fields))
	for i := range vals {
		dest[i] = &vals[i]
	}
	for rs.Next() {
		if err := rs.Scan(dest...); err != nil {
			return fmt.Errorf("scan %s: %w", t.name, err)
		}
		get := func(name string) (string, bool) {
			i, ok := index[name]
			if !ok {
				return "", false
			}
			return vals[i].String, true
		}
		if err := fn(get); err != nil {
			return fmt.Errorf("decode %s: %w", t.name, err)
		}
	}
	return rs.Err()
}

func (s *SQLite) Save(ctx context.Context, a Artifact) error {
	u, err := NormalizeUsername(a.Username)
	if err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := s.deleteArtifact(ctx, tx, u); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO artifacts (username, user_id, created_at) VALUES (?, ?, ?)",
		u, a.UserID, a.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}

	following := make([][]string, len(a.Following))
	for i, acct := range a.Following {
		following[i] = pipeline.AccountValues(acct)
	}
	if err := insertAll(ctx, tx, s.following, u, following); err != nil {
		return err
	}
	rows := make([][]string, len(a.Rows))
	for i, r := range a.Rows {
		rows[i] = r.Values()
	}
	if err := insertAll(ctx, tx, s.rows, u, rows); err != nil {
		return err
	}
	return tx.Commit()
}

func insertAll(ctx context.Context, tx *sql.Tx, t tableSpec, username string, records [][]string) error {
	stmt, err := tx.PrepareContext(ctx, t.insertSQL())
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", t.name, err)
	}
	defer func() {
		_ = stmt.Close()
	}()
	args := make([]any, len(t.fields)+2)
	for pos, rec := range records {
		args[0], args[1] = username, pos
		for i, v := range rec {
			args[i+2] = nullable(t.fields[i], v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", t.name, err)
		}
	}
	return nil
}

// nullable stores empty nullable values as NULL so SQL aggregates skip them.
func nullable(f schema.Field, v string) any {
	if v == "" && f.Nullable {
		return nil
	}
	return v
}

func (s *SQLite) deleteArtifact(ctx context.Context, tx *sql.Tx, username string) error {
	for _, table := range []string{"artifacts", s.following.name, s.rows.name} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE username = ?", quoteIdent(table)), username); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, username string) error {
	u, err := NormalizeUsername(username)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.deleteArtifact(ctx, tx, u); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) List(ctx context.Context) ([]string, error) {
	rs, err := s.db.QueryContext(ctx, "SELECT username FROM artifacts")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rs.Close()
	}()
	var out []string
	for rs.Next() {
		var u string
		if err := rs.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
