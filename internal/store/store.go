// Package store persists the symbols of workspace DBML files in sqlite, so
// workspace symbol search covers files that are not open in the editor.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/saskenuba/dbml-language-server/internal/index"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var logger = commonlog.GetLogger("dbml.store")

// Symbol is one stored declaration. Range is in LSP coordinates.
type Symbol struct {
	URI       string
	Name      string
	Kind      index.DefinitionKind
	Container string
	Detail    string
	Range     protocol.Range
}

// Store is the sqlite symbol database of one workspace.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// Hash returns the content hash recorded for a document.
func Hash(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// PathFor returns the database location for the workspace root under
// stateDir. Each root gets its own database.
func PathFor(stateDir, root string) string {
	return filepath.Join(stateDir, fmt.Sprintf("%016x", xxhash.Sum64String(root)), "symbols.db")
}

// Open opens (or creates) the database at path, enables WAL mode and
// foreign keys, and initializes the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Infof("opened symbol store %s", path)
	return &Store{db: db}, nil
}

// withTx runs fn within a transaction, holding the store lock.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDatabaseClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// UpsertDocument replaces the stored symbols of uri.
func (s *Store) UpsertDocument(uri string, hash uint64, symbols []Symbol) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
            INSERT INTO documents (uri, hash, indexed_at) VALUES (?, ?, ?)
            ON CONFLICT(uri) DO UPDATE SET hash = excluded.hash, indexed_at = excluded.indexed_at
        `, uri, int64(hash), time.Now().Unix()); err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", uri, err)
		}

		if _, err := tx.Exec(`DELETE FROM symbols WHERE uri = ?`, uri); err != nil {
			return fmt.Errorf("failed to clear symbols of %s: %w", uri, err)
		}

		stmt, err := tx.Prepare(`
            INSERT INTO symbols (uri, name, kind, container, detail, start_row, start_col, end_row, end_col)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        `)
		if err != nil {
			return fmt.Errorf("failed to prepare symbol insert: %w", err)
		}
		defer stmt.Close()

		for _, sym := range symbols {
			if _, err := stmt.Exec(uri, sym.Name, string(sym.Kind), sym.Container, sym.Detail,
				sym.Range.Start.Line, sym.Range.Start.Character,
				sym.Range.End.Line, sym.Range.End.Character); err != nil {
				return fmt.Errorf("failed to insert symbol %s of %s: %w", sym.Name, uri, err)
			}
		}
		return nil
	})
}

// DocumentHash returns the hash recorded for uri, or ErrNotFound.
func (s *Store) DocumentHash(uri string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrDatabaseClosed
	}

	var hash int64
	err := s.db.QueryRow(`SELECT hash FROM documents WHERE uri = ?`, uri).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get hash of %s: %w", uri, err)
	}
	return uint64(hash), nil
}

// DeleteDocument removes uri and its symbols.
func (s *Store) DeleteDocument(uri string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM documents WHERE uri = ?`, uri)
		if err != nil {
			return fmt.Errorf("failed to delete document %s: %w", uri, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Documents lists the stored document URIs.
func (s *Store) Documents() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrDatabaseClosed
	}

	rows, err := s.db.Query(`SELECT uri FROM documents ORDER BY uri`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var uris []string
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		uris = append(uris, uri)
	}
	return uris, rows.Err()
}

// Close closes the database. Further calls fail with ErrDatabaseClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
