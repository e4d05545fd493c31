package hostreceiver

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bft-labs/sensorrelay/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS batches (
		filename    TEXT    NOT NULL,
		batch_index INTEGER NOT NULL,
		batch_count INTEGER NOT NULL,
		timestamp   INTEGER NOT NULL,
		payload     BLOB    NOT NULL,
		received_at INTEGER NOT NULL,
		PRIMARY KEY (filename, batch_index)
	);

	CREATE TABLE IF NOT EXISTS files (
		filename    TEXT    PRIMARY KEY,
		batch_size  INTEGER NOT NULL,
		data        BLOB    NOT NULL,
		received_at INTEGER NOT NULL
	);
`

// Store persists received batches and files in SQLite.
type Store struct {
	db *sql.DB
}

// StoredBatch is a batch as kept by the store.
type StoredBatch struct {
	Filename   string
	Index      int
	Count      int
	Timestamp  int64
	Payload    []byte
	ReceivedAt time.Time
}

// FileSummary describes one relayed file.
type FileSummary struct {
	Filename   string
	BatchCount int
	Received   int
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sensorrelay", "host.sqlite")
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps writes serialized and :memory: shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBatch stores a batch. A batch already stored under the same filename
// and index is kept as is; saved reports whether this call inserted it.
func (s *Store) SaveBatch(ctx context.Context, b domain.Batch, payload []byte) (saved bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (filename, batch_index, batch_count, timestamp, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (filename, batch_index) DO NOTHING
	`, b.Filename, int(b.Index), int(b.Count), b.Timestamp, payload, time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("insert batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert batch: %w", err)
	}
	return n == 1, nil
}

// Batches returns the stored batches of filename in index order.
func (s *Store) Batches(ctx context.Context, filename string) ([]StoredBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filename, batch_index, batch_count, timestamp, payload, received_at
		FROM batches
		WHERE filename = ?
		ORDER BY batch_index ASC
	`, filename)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []StoredBatch
	for rows.Next() {
		var b StoredBatch
		var receivedAt int64
		if err := rows.Scan(&b.Filename, &b.Index, &b.Count, &b.Timestamp, &b.Payload, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.ReceivedAt = time.UnixMilli(receivedAt)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Summaries reports, per relayed file, the announced batch count and how
// many distinct batches arrived.
func (s *Store) Summaries(ctx context.Context) ([]FileSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filename, MAX(batch_count), COUNT(*)
		FROM batches
		GROUP BY filename
		ORDER BY filename ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []FileSummary
	for rows.Next() {
		var f FileSummary
		if err := rows.Scan(&f.Filename, &f.BatchCount, &f.Received); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SaveFile stores a whole file, replacing an earlier upload of the same name.
func (s *Store) SaveFile(ctx context.Context, filename string, batchSize int, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (filename, batch_size, data, received_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (filename) DO UPDATE SET
			batch_size = excluded.batch_size,
			data = excluded.data,
			received_at = excluded.received_at
	`, filename, batchSize, data, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// File returns a stored file and its batch size.
func (s *Store) File(ctx context.Context, filename string) (data []byte, batchSize int, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT data, batch_size FROM files WHERE filename = ?`, filename)
	if err := row.Scan(&data, &batchSize); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, fmt.Errorf("file %s: %w", filename, os.ErrNotExist)
		}
		return nil, 0, fmt.Errorf("scan file: %w", err)
	}
	return data, batchSize, nil
}
