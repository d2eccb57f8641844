package boxindex

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/beadbox/bead/bead"
	"github.com/beadbox/bead/boxerr"
	"github.com/beadbox/bead/internal/archive"
)

// Rebuild drops and recreates the schema, then walks the box directory from
// scratch, ingesting every *.bead archive it finds. A single unreadable
// archive is logged and skipped, not fatal to the walk (spec.md §4.4 "a
// single corrupt archive must not prevent the rest of the box from being
// usable").
func (bi *BoxIndex) Rebuild(ctx context.Context) error {
	if bi.degraded {
		return boxerr.New(boxerr.IndexUnavailable, "no database is open; rebuild is unavailable in degraded (enumeration-only) mode").WithPath(bi.dir)
	}
	bi.log.Info().Str("dir", bi.dir).Msg("rebuilding index")

	paths, err := bi.walkArchives()
	if err != nil {
		return boxerr.Wrap(boxerr.IndexUnwritable, err, "walk box directory").WithPath(bi.dir)
	}

	return bi.withWrite(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS inputs`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS beads`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS schema_meta`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_meta(version) VALUES (?)`, currentSchemaVersion); err != nil {
			return err
		}

		skipped := 0
		for _, rel := range paths {
			md, err := archive.ReadMetadata(bi.fs, filepath.Join(bi.dir, rel))
			if err != nil {
				bi.log.Warn().Str("path", rel).Err(err).Msg("skipping unreadable archive during rebuild")
				skipped++
				continue
			}
			md.FilePath = rel
			if err := insertBead(ctx, tx, md); err != nil {
				if boxerr.Is(err, boxerr.Ambiguous) {
					// Isolated the same way an unreadable archive is: the
					// rest of the walk still gets indexed (spec.md §8
					// testable property #1), not aborted wholesale.
					bi.log.Warn().Str("path", rel).Err(err).Msg("skipping ambiguous archive during rebuild")
					skipped++
					continue
				}
				return err
			}
		}
		bi.log.Info().Int("indexed", len(paths)-skipped).Int("skipped", skipped).Msg("rebuild complete")
		return nil
	})
}

// Sync ingests archives present on disk but absent from the index: the
// fast-path opener spec.md §4.5 describes, run whenever the schema is
// already current. Files already indexed (by file_path) are left alone.
func (bi *BoxIndex) Sync(ctx context.Context) error {
	if bi.degraded {
		return boxerr.New(boxerr.IndexUnavailable, "no database is open; sync is unavailable in degraded (enumeration-only) mode").WithPath(bi.dir)
	}
	paths, err := bi.walkArchives()
	if err != nil {
		return boxerr.Wrap(boxerr.IndexUnwritable, err, "walk box directory").WithPath(bi.dir)
	}

	known, err := bi.knownPaths(ctx)
	if err != nil {
		return err
	}

	var toIngest []string
	for _, p := range paths {
		if !known[p] {
			toIngest = append(toIngest, p)
		}
	}
	if len(toIngest) == 0 {
		return nil
	}

	bi.log.Info().Int("count", len(toIngest)).Msg("sync ingesting new archives")
	return bi.withWrite(ctx, func(tx *sql.Tx) error {
		for _, rel := range toIngest {
			md, err := archive.ReadMetadata(bi.fs, filepath.Join(bi.dir, rel))
			if err != nil {
				bi.log.Warn().Str("path", rel).Err(err).Msg("skipping unreadable archive during sync")
				continue
			}
			md.FilePath = rel
			if err := insertBead(ctx, tx, md); err != nil {
				if boxerr.Is(err, boxerr.Ambiguous) {
					bi.log.Warn().Str("path", rel).Err(err).Msg("skipping ambiguous archive during sync")
					continue
				}
				return err
			}
		}
		return nil
	})
}

// Add ingests a single archive immediately, as Box.Store does right after
// copying a new archive into the box directory. filePath is box-relative.
// Unlike Rebuild/Sync, a colliding (name, content_id) is not skipped here:
// the caller asked for this exact file to be indexed, so a *boxerr.Error of
// kind Ambiguous is returned directly instead of being swallowed.
func (bi *BoxIndex) Add(ctx context.Context, filePath string) (bead.Record, error) {
	if bi.degraded {
		return bead.Record{}, boxerr.New(boxerr.IndexUnavailable, "no database is open; add is unavailable in degraded (enumeration-only) mode").WithPath(bi.dir)
	}
	md, err := archive.ReadMetadata(bi.fs, filepath.Join(bi.dir, filePath))
	if err != nil {
		return bead.Record{}, err
	}
	md.FilePath = filePath

	err = bi.withWrite(ctx, func(tx *sql.Tx) error {
		return insertBead(ctx, tx, md)
	})
	if err != nil {
		return bead.Record{}, err
	}

	return bead.Record{
		Name:         md.Name,
		Kind:         md.Kind,
		ContentID:    md.ContentID,
		FreezeName:   md.FreezeName,
		FreezeTime:   md.FreezeTime,
		Inputs:       md.Inputs,
		InputsLoaded: true,
	}, nil
}

// Remove deletes the index row for filePath. It does not touch the archive
// file itself - callers that also want the file gone do that separately.
func (bi *BoxIndex) Remove(ctx context.Context, filePath string) error {
	if bi.degraded {
		return boxerr.New(boxerr.IndexUnavailable, "no database is open; remove is unavailable in degraded (enumeration-only) mode").WithPath(bi.dir)
	}
	return bi.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM beads WHERE file_path = ?`, filePath)
		return err
	})
}

// insertBead upserts one bead row, keyed on file_path. The schema also
// enforces UNIQUE(name, content_id) (spec.md §6, §9(c)), but that
// constraint alone can only fail the whole INSERT with a raw SQLite error,
// aborting the surrounding transaction - not what the "one bad file
// shouldn't sink the rebuild" invariant wants. So the conflict is detected
// up front, against the same two columns the constraint covers, and
// reported as a typed boxerr.Ambiguous that callers can isolate per file.
func insertBead(ctx context.Context, tx *sql.Tx, md *archive.Metadata) error {
	var conflictPath string
	err := tx.QueryRowContext(ctx, `
		SELECT file_path FROM beads WHERE name = ? AND content_id = ? AND file_path != ?
	`, md.Name, md.ContentID, md.FilePath).Scan(&conflictPath)
	switch {
	case err == nil:
		return boxerr.New(boxerr.Ambiguous,
			"name %q content_id %q claimed by both %q and %q; rebuild the index",
			md.Name, md.ContentID, conflictPath, md.FilePath).WithPath(md.FilePath)
	case errors.Is(err, sql.ErrNoRows):
		// no existing claim on this identity - proceed.
	default:
		return err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO beads(name, content_id, kind, freeze_name, freeze_time_str, file_path)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			name = excluded.name, content_id = excluded.content_id, kind = excluded.kind,
			freeze_name = excluded.freeze_name, freeze_time_str = excluded.freeze_time_str
	`, md.Name, md.ContentID, md.Kind, md.FreezeName, md.FreezeTime, md.FilePath)
	if err != nil {
		return err
	}

	var beadID int64
	if n, _ := res.RowsAffected(); n > 0 {
		if id, err := res.LastInsertId(); err == nil && id != 0 {
			beadID = id
		}
	}
	if beadID == 0 {
		if err := tx.QueryRowContext(ctx, `SELECT bead_id FROM beads WHERE file_path = ?`, md.FilePath).Scan(&beadID); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM inputs WHERE bead_id = ?`, beadID); err != nil {
		return err
	}
	for _, in := range md.Inputs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inputs(bead_id, input_name, input_kind, input_content_id, input_freeze_time_str)
			VALUES (?, ?, ?, ?, ?)
		`, beadID, in.InputName, in.InputKind, in.InputContentID, in.InputFreezeTime); err != nil {
			return err
		}
	}
	return nil
}

func (bi *BoxIndex) knownPaths(ctx context.Context) (map[string]bool, error) {
	rows, err := bi.db.QueryContext(ctx, `SELECT file_path FROM beads`)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.IndexUnwritable, err, "read known paths")
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		known[p] = true
	}
	return known, rows.Err()
}

// walkArchives returns every *.bead file under the box directory, as paths
// relative to it - the form stored in beads.file_path (spec.md §6
// "file_path is stored as box-relative").
func (bi *BoxIndex) walkArchives() ([]string, error) {
	var paths []string
	err := afero.Walk(bi.fs, bi.dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if p != bi.dir && strings.HasPrefix(filepath.Base(p), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), archive.Ext) {
			rel, err := filepath.Rel(bi.dir, p)
			if err != nil {
				return err
			}
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
