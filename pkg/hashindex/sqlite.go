package hashindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPon/blockhashloc/pkg/bhl"
	"github.com/MarcoPon/blockhashloc/pkg/retry"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	file_id       INTEGER PRIMARY KEY,
	block_size    INTEGER NOT NULL,
	file_size     INTEGER NOT NULL,
	filename      TEXT,
	has_filename  INTEGER NOT NULL,
	mtime         INTEGER,
	tail_blob     BLOB,
	global_digest BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS hashlist (
	hash        BLOB NOT NULL,
	file_id     INTEGER NOT NULL,
	block_index INTEGER NOT NULL,
	source_id   INTEGER,
	position    INTEGER,
	PRIMARY KEY (file_id, block_index)
);
CREATE INDEX IF NOT EXISTS idx_hashlist_hash ON hashlist(hash);
`

// SQLite is a HashIndex backend persisted through database/sql against
// the pure-Go modernc.org/sqlite driver. DSN ":memory:" gives an
// ephemeral index living only for the process lifetime; any other path
// persists it to disk, matching the -db flag's contract.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the hash index at dsn and ensures
// its schema exists.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("hashindex: open %s: %w", dsn, err)
	}
	// SQLite allows only one writer at a time; a single connection avoids
	// SQLITE_BUSY storms from this process itself.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("hashindex: schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) AddEntries(ctx context.Context, fileID int, digests []bhl.Digest) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO hashlist (hash, file_id, block_index, source_id, position)
			VALUES (?, ?, ?, NULL, NULL)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, d := range digests {
			if _, err := stmt.ExecContext(ctx, d[:], fileID, i); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
}

func (s *SQLite) SetFileInfo(ctx context.Context, fileID int, info FileInfo) error {
	return withRetry(ctx, func(ctx context.Context) error {
		var mtime sql.NullInt64
		if !info.ModTime.IsZero() {
			mtime = sql.NullInt64{Int64: info.ModTime.Unix(), Valid: true}
		}

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO files (file_id, block_size, file_size, filename, has_filename, mtime, tail_blob, global_digest)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(file_id) DO UPDATE SET
				block_size=excluded.block_size,
				file_size=excluded.file_size,
				filename=excluded.filename,
				has_filename=excluded.has_filename,
				mtime=excluded.mtime,
				tail_blob=excluded.tail_blob,
				global_digest=excluded.global_digest`,
			fileID, info.BlockSize, info.FileSize, info.Filename, boolToInt(info.HasFilename), mtime, info.TailBlob, info.GlobalDigest[:])

		return err
	})
}

func (s *SQLite) Claim(ctx context.Context, digest bhl.Digest, sourceID int, position int64) (int, error) {
	var n int
	err := withRetry(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE hashlist SET source_id = ?, position = ?
			WHERE hash = ? AND source_id IS NULL`,
			sourceID, position, digest[:])
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		n = int(affected)
		return nil
	})
	return n, err
}

func (s *SQLite) Placements(ctx context.Context, fileID int) ([]Placement, error) {
	var out []Placement
	err := withRetry(ctx, func(ctx context.Context) error {
		out = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT block_index, source_id, position
			FROM hashlist WHERE file_id = ?
			ORDER BY block_index ASC`, fileID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				blockIndex       int
				sourceID, pos    sql.NullInt64
			)
			if err := rows.Scan(&blockIndex, &sourceID, &pos); err != nil {
				return err
			}
			out = append(out, Placement{
				BlockIndex: blockIndex,
				SourceID:   int(sourceID.Int64),
				Position:   pos.Int64,
				Placed:     sourceID.Valid,
			})
		}
		return rows.Err()
	})
	return out, err
}

func (s *SQLite) FileInfo(ctx context.Context, fileID int) (FileInfo, bool, error) {
	var (
		info  FileInfo
		found bool
	)
	err := withRetry(ctx, func(ctx context.Context) error {
		var (
			mtime       sql.NullInt64
			hasFilename int
			globalBytes []byte
		)
		row := s.db.QueryRowContext(ctx, `
			SELECT block_size, file_size, filename, has_filename, mtime, tail_blob, global_digest
			FROM files WHERE file_id = ?`, fileID)

		err := row.Scan(&info.BlockSize, &info.FileSize, &info.Filename, &hasFilename, &mtime, &info.TailBlob, &globalBytes)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}

		found = true
		info.HasFilename = hasFilename != 0
		if mtime.Valid {
			info.ModTime = time.Unix(mtime.Int64, 0).UTC()
		}
		copy(info.GlobalDigest[:], globalBytes)

		return nil
	})
	return info, found, err
}

func (s *SQLite) Checkpoint(ctx context.Context) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)")
		return err
	})
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// withRetry retries transient SQLite contention errors (the single shared
// connection mostly avoids these, but WAL checkpoints and slow fsyncs can
// still surface SQLITE_BUSY).
func withRetry(ctx context.Context, op retry.Operation) error {
	return retry.Do(ctx, op,
		retry.WithMaxAttempts(5),
		retry.WithInitialDelay(10*time.Millisecond),
		retry.WithMaxDelay(200*time.Millisecond),
		retry.WithRetryIf(isTransientSQLiteError),
	)
}

func isTransientSQLiteError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}
