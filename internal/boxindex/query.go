package boxindex

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/beadbox/bead/bead"
	"github.com/beadbox/bead/boxerr"
	"github.com/beadbox/bead/internal/archive"
	"github.com/beadbox/bead/internal/condition"
)

// Query returns every bead row matching conds, ordered by nothing in
// particular - ordering is BeadSearch's job, not the index's (spec.md §4.3).
// When includeInputs is true, each record's Inputs/InputsLoaded are
// populated with one extra query per matched row.
func (bi *BoxIndex) Query(ctx context.Context, conds []condition.Condition, includeInputs bool) ([]bead.Record, error) {
	if bi.degraded {
		return bi.queryDegraded(conds, includeInputs)
	}
	compiled := condition.Compile(conds)

	sqlText := fmt.Sprintf(`
		SELECT bead_id, name, content_id, kind, freeze_name, freeze_time_str, file_path
		FROM beads WHERE %s
	`, compiled.Fragment)

	rows, err := bi.db.QueryContext(ctx, sqlText, compiled.Args...)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.IndexUnwritable, err, "query beads")
	}
	defer rows.Close()

	type row struct {
		id         int64
		rec        bead.Record
		filePath   string
	}
	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.rec.Name, &r.rec.ContentID, &r.rec.Kind, &r.rec.FreezeName, &r.rec.FreezeTime, &r.filePath); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]bead.Record, 0, len(out))
	for _, r := range out {
		rec := r.rec
		if includeInputs {
			inputs, err := bi.loadInputs(ctx, r.id)
			if err != nil {
				return nil, err
			}
			rec.Inputs = inputs
			rec.InputsLoaded = true
		}
		records = append(records, rec)
	}
	return records, nil
}

func (bi *BoxIndex) loadInputs(ctx context.Context, beadID int64) ([]bead.InputSpec, error) {
	rows, err := bi.db.QueryContext(ctx, `
		SELECT input_name, input_kind, input_content_id, input_freeze_time_str
		FROM inputs WHERE bead_id = ?
		ORDER BY input_id
	`, beadID)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.IndexUnwritable, err, "query inputs")
	}
	defer rows.Close()

	var inputs []bead.InputSpec
	for rows.Next() {
		var in bead.InputSpec
		if err := rows.Scan(&in.InputName, &in.InputKind, &in.InputContentID, &in.InputFreezeTime); err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

// Locate resolves (name, contentID) to the box-relative file path of the
// archive that carries them, enforcing the index's one-archive-per-identity
// invariant (spec.md §4.4). Returns a *boxerr.Error of kind NotFound or
// Ambiguous when that invariant can't be satisfied.
//
// The schema's own UNIQUE(name, content_id) constraint, combined with
// insertBead's ingest-time conflict check, means a collision never actually
// reaches this table in the database-backed path - it is caught and
// reported (or isolated) at Rebuild/Sync/Add time instead. The multi-row
// branch below stays as defense in depth (and is the reachable path in
// locateDegraded, where nothing enforces the constraint without a
// database).
func (bi *BoxIndex) Locate(ctx context.Context, name, contentID string) (string, error) {
	if bi.degraded {
		return bi.locateDegraded(name, contentID)
	}
	rows, err := bi.db.QueryContext(ctx, `SELECT file_path FROM beads WHERE name = ? AND content_id = ?`, name, contentID)
	if err != nil {
		return "", boxerr.Wrap(boxerr.IndexUnwritable, err, "locate")
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return "", err
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(paths) {
	case 0:
		return "", boxerr.New(boxerr.NotFound, "no bead named %q with content_id %q", name, contentID)
	case 1:
		return paths[0], nil
	default:
		return "", boxerr.New(boxerr.Ambiguous, "multiple archives claim name %q content_id %q; rebuild the index", name, contentID)
	}
}

// queryDegraded serves Query by walking the box directory live and reading
// each archive's manifest, with no database behind it. Every archive file
// is opened on every call - the "slower path" spec.md §4.4 accepts in
// exchange for the box staying usable without a writable index.
func (bi *BoxIndex) queryDegraded(conds []condition.Condition, includeInputs bool) ([]bead.Record, error) {
	paths, err := bi.walkArchives()
	if err != nil {
		return nil, boxerr.Wrap(boxerr.IndexUnavailable, err, "enumerate box directory").WithPath(bi.dir)
	}

	var records []bead.Record
	for _, rel := range paths {
		md, err := archive.ReadMetadata(bi.fs, filepath.Join(bi.dir, rel))
		if err != nil {
			bi.log.Warn().Str("path", rel).Err(err).Msg("skipping unreadable archive during degraded enumeration")
			continue
		}
		if !condition.Matches(conds, md.Name, md.Kind, md.ContentID, md.FreezeTime) {
			continue
		}
		rec := bead.Record{
			Name:       md.Name,
			Kind:       md.Kind,
			ContentID:  md.ContentID,
			FreezeName: md.FreezeName,
			FreezeTime: md.FreezeTime,
		}
		if includeInputs {
			rec.Inputs = md.Inputs
			rec.InputsLoaded = true
		}
		records = append(records, rec)
	}
	return records, nil
}

// locateDegraded serves Locate from the same live walk. Unlike the
// database-backed path, nothing here enforces UNIQUE(name, content_id), so
// the Ambiguous branch is genuinely reachable: two on-disk files can
// collide on identity with no index to have caught it at ingest time.
func (bi *BoxIndex) locateDegraded(name, contentID string) (string, error) {
	paths, err := bi.walkArchives()
	if err != nil {
		return "", boxerr.Wrap(boxerr.IndexUnavailable, err, "enumerate box directory").WithPath(bi.dir)
	}

	var matches []string
	for _, rel := range paths {
		md, err := archive.ReadMetadata(bi.fs, filepath.Join(bi.dir, rel))
		if err != nil {
			bi.log.Warn().Str("path", rel).Err(err).Msg("skipping unreadable archive during degraded locate")
			continue
		}
		if md.Name == name && md.ContentID == contentID {
			matches = append(matches, rel)
		}
	}

	switch len(matches) {
	case 0:
		return "", boxerr.New(boxerr.NotFound, "no bead named %q with content_id %q", name, contentID)
	case 1:
		return matches[0], nil
	default:
		return "", boxerr.New(boxerr.Ambiguous, "multiple archives claim name %q content_id %q; rebuild the index", name, contentID)
	}
}
