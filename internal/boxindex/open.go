// Package boxindex implements BoxIndex: the authoritative, SQLite-backed
// index over one box directory (spec.md §4.4). It is the only package that
// speaks SQL; Box and BeadSearch never see a *sql.DB.
package boxindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/beadbox/bead/boxerr"
)

// Options configures a BoxIndex.
type Options struct {
	// NetworkFS forces journal_mode=DELETE instead of WAL, because WAL's
	// shared-memory file is unreliable over NFS/SMB (spec.md §5).
	NetworkFS bool

	// BusyRetryLimit bounds the exponential backoff retries on
	// SQLITE_BUSY/SQLITE_LOCKED before a write surfaces IndexBusy.
	// Defaults to 5 when zero.
	BusyRetryLimit int

	// Logger overrides the package default (log.Logger) for this index.
	Logger *zerolog.Logger
}

func (o Options) busyRetryLimit() int {
	if o.BusyRetryLimit <= 0 {
		return 5
	}
	return o.BusyRetryLimit
}

// BoxIndex is the authoritative index over one box directory.
type BoxIndex struct {
	fs   afero.Fs
	dir  string
	path string
	db   *sql.DB
	opts Options
	log  zerolog.Logger

	writeMu  sync.Mutex // serializes write operations for sqlite, teacher-style
	readOnly bool

	// degraded is set when no database could be opened at all (disk full,
	// or a read-only filesystem with no index present - spec.md §4.4's
	// failure table) and Open fell back to enumerating the directory
	// directly instead of failing outright. Queries/locate still work,
	// scanning every archive on each call; mutating operations return
	// IndexUnavailable.
	degraded bool
}

// newDegradedIndex builds a BoxIndex with no backing database: every read
// re-walks the directory, and every mutating call is rejected. This is the
// "allow graceful degradation to filesystem enumeration" path spec.md §4.4
// requires for a box whose index can't be opened or created.
func newDegradedIndex(fs afero.Fs, dir string, logger zerolog.Logger) *BoxIndex {
	return &BoxIndex{
		fs:       fs,
		dir:      dir,
		path:     dbPath(dir),
		log:      logger,
		readOnly: true,
		degraded: true,
	}
}

func dbPath(dir string) string {
	return filepath.Join(dir, IndexFileName)
}

// Open opens (or creates) the index for the box directory dir. It ensures
// the database exists, rebuilding from the directory contents if the file
// is absent, unreadable as SQLite, or at a stale schema version; otherwise
// it runs the fast-path sync() so files written since the last open become
// visible (spec.md §4.5 "On construction... triggering sync if healthy,
// rebuild if not").
func Open(ctx context.Context, fs afero.Fs, dir string, opts Options) (*BoxIndex, error) {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	path := dbPath(dir)

	existed, statErr := afero.Exists(fs, path)
	if statErr != nil {
		existed = false
	}

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		if !existed {
			// Read-only filesystem, index absent: fall back to
			// filesystem-based enumeration rather than failing outright
			// (spec.md §4.4 failure table).
			logger.Warn().Str("dir", dir).Err(err).
				Msg("box directory unwritable and no index present; falling back to filesystem enumeration")
			return newDegradedIndex(fs, dir, logger), nil
		}
		// The index file is already there: fall through to the open
		// below, which falls back to read-only on a permission error.
	}

	db, readOnly, err := openSQLite(path, opts, existed)
	if err != nil {
		if existed {
			// Unreadable as SQLite: archive the bad file aside and
			// rebuild from a fresh database, per the failure table in
			// spec.md §4.4.
			logger.Warn().Str("path", path).Err(err).Msg("index file unreadable as sqlite, archiving aside and rebuilding")
			aside := path + fmt.Sprintf(".corrupt-%d", time.Now().UnixNano())
			_ = fs.Rename(path, aside)
			db, readOnly, err = openSQLite(path, opts, false)
		}
		if err != nil {
			// Disk full, or any other reason no database can be created:
			// degrade to enumeration rather than making the box
			// unusable (spec.md §4.4 "allow graceful degradation to
			// filesystem enumeration").
			logger.Warn().Str("path", path).Err(err).
				Msg("index unavailable; falling back to filesystem enumeration")
			return newDegradedIndex(fs, dir, logger), nil
		}
	}

	bi := &BoxIndex{
		fs:       fs,
		dir:      dir,
		path:     path,
		db:       db,
		opts:     opts,
		log:      logger,
		readOnly: readOnly,
	}

	version, verr := bi.schemaVersion(ctx)
	needsRebuild := verr != nil || version != currentSchemaVersion

	if needsRebuild {
		if bi.readOnly {
			// Can't rebuild a read-only index; serve whatever is there.
			logger.Warn().Str("path", path).Msg("schema stale or unreadable but index is read-only; serving as-is")
			return bi, nil
		}
		if err := bi.Rebuild(ctx); err != nil {
			bi.db.Close()
			return nil, err
		}
		return bi, nil
	}

	if !bi.readOnly {
		if err := bi.Sync(ctx); err != nil {
			bi.db.Close()
			return nil, err
		}
	}
	return bi, nil
}

// openSQLite opens the sqlite3 database at path with the pragma sequence
// spec.md §4.4/§5 require, falling back to a read-only open when a
// read-write open fails and the file already exists.
func openSQLite(path string, opts Options, existed bool) (db *sql.DB, readOnly bool, err error) {
	journalMode := "WAL"
	if opts.NetworkFS {
		journalMode = "DELETE"
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=1&_journal_mode=%s&_synchronous=NORMAL&_busy_timeout=5000",
		path, journalMode,
	)
	db, err = sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, false, err
	}
	db.SetMaxOpenConns(1) // sqlite3 is single-writer; one conn avoids pool-level lock thrash

	if pingErr := db.Ping(); pingErr != nil {
		db.Close()
		if existed && isPermission(pingErr) {
			roDSN := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path)
			roDB, roErr := sql.Open("sqlite3", roDSN)
			if roErr != nil {
				return nil, false, roErr
			}
			if roErr := roDB.Ping(); roErr != nil {
				roDB.Close()
				return nil, false, roErr
			}
			return roDB, true, nil
		}
		return nil, false, pingErr
	}

	if _, execErr := db.Exec(`SELECT count(*) FROM sqlite_master`); execErr != nil {
		db.Close()
		return nil, false, execErr
	}
	return db, false, nil
}

func isPermission(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission") || strings.Contains(msg, "readonly") || strings.Contains(msg, "read-only")
}

func (bi *BoxIndex) schemaVersion(ctx context.Context) (int, error) {
	var version int
	err := bi.db.QueryRowContext(ctx, `SELECT version FROM schema_meta LIMIT 1`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Close releases the underlying database handle. Safe to call once; a
// handle must not be used afterward. A degraded index owns no handle, so
// Close is a no-op.
func (bi *BoxIndex) Close() error {
	if bi.degraded {
		return nil
	}
	return bi.db.Close()
}

// Dir returns the box directory this index is bound to.
func (bi *BoxIndex) Dir() string { return bi.dir }

// ReadOnly reports whether this index was opened in read-only mode
// (read-only filesystem with an existing index, per spec.md §4.4).
func (bi *BoxIndex) ReadOnly() bool { return bi.readOnly }

// Degraded reports whether this index has no backing database and is
// serving every call from a live directory walk instead (spec.md §4.4's
// filesystem-enumeration fallback).
func (bi *BoxIndex) Degraded() bool { return bi.degraded }

// sqlite3BusyOrLocked reports whether err is SQLITE_BUSY or SQLITE_LOCKED,
// the two conditions spec.md §5 requires bounded-backoff retry for.
func sqlite3BusyOrLocked(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked
	}
	return false
}
