// Package box implements the Box façade: a directory of archive files
// fronted by exactly one authoritative BoxIndex (spec.md §4.5). It is the
// only package external callers should import directly alongside search.
package box

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/beadbox/bead/bead"
	"github.com/beadbox/bead/boxerr"
	"github.com/beadbox/bead/internal/archive"
	"github.com/beadbox/bead/internal/boxindex"
	"github.com/beadbox/bead/internal/condition"
)

// Options configures how a Box opens its index.
type Options struct {
	// NetworkFS is forwarded to boxindex.Options.NetworkFS: forces
	// journal_mode=DELETE for boxes living on NFS/SMB mounts.
	NetworkFS bool

	BusyRetryLimit int
	Logger         *zerolog.Logger
}

// Box owns a directory and a logical name, fronted by one BoxIndex.
type Box struct {
	name  string
	dir   string
	fs    afero.Fs
	index *boxindex.BoxIndex
	log   zerolog.Logger
}

// Open opens (creating if necessary) the box rooted at dir, named name. It
// opens the underlying index, which syncs if healthy or rebuilds if not
// (spec.md §4.5 "on construction").
func Open(ctx context.Context, fs afero.Fs, name, dir string, opts Options) (*Box, error) {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	idx, err := boxindex.Open(ctx, fs, dir, boxindex.Options{
		NetworkFS:      opts.NetworkFS,
		BusyRetryLimit: opts.BusyRetryLimit,
		Logger:         &logger,
	})
	if err != nil {
		return nil, err
	}

	return &Box{name: name, dir: dir, fs: fs, index: idx, log: logger}, nil
}

// Name returns the box's logical name.
func (b *Box) Name() string { return b.name }

// Dir returns the box's directory.
func (b *Box) Dir() string { return b.dir }

// Close releases the underlying index handle.
func (b *Box) Close() error { return b.index.Close() }

// Degraded reports whether this box's index has no working database and is
// instead serving every read from a live directory walk (spec.md §4.4's
// filesystem-enumeration fallback for a disk-full or read-only box).
func (b *Box) Degraded() bool { return b.index.Degraded() }

// GetBeads delegates to index.query and stamps the box name onto every
// result (spec.md §4.5).
func (b *Box) GetBeads(ctx context.Context, conds []condition.Condition) ([]bead.Record, error) {
	return b.getBeads(ctx, conds, false)
}

// GetBeadsWithInputs is GetBeads but eagerly loads each record's Inputs.
func (b *Box) GetBeadsWithInputs(ctx context.Context, conds []condition.Condition) ([]bead.Record, error) {
	return b.getBeads(ctx, conds, true)
}

func (b *Box) getBeads(ctx context.Context, conds []condition.Condition, withInputs bool) ([]bead.Record, error) {
	recs, err := b.index.Query(ctx, conds, withInputs)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].BoxName = b.name
	}
	return recs, nil
}

// Resolve validates record against this box and the archive it names, then
// returns the opened, resource-owning Archive handle. The caller must Close
// it (spec.md §4.5, §3 invariant 5).
func (b *Box) Resolve(ctx context.Context, record bead.Record) (*archive.Archive, error) {
	if record.BoxName != b.name {
		return nil, boxerr.New(boxerr.WrongBox, "record belongs to box %q, not %q", record.BoxName, b.name).
			WithTuple(b.name, record.BoxName)
	}

	relPath, err := b.index.Locate(ctx, record.Name, record.ContentID)
	if err != nil {
		return nil, err
	}

	fullPath := filepath.Join(b.dir, relPath)
	arc, err := archive.Open(b.fs, fullPath)
	if err != nil {
		return nil, err
	}

	if arc.Name != record.Name || arc.ContentID != record.ContentID || arc.Kind != record.Kind {
		expected := fmt.Sprintf("%s/%s/%s", record.Name, record.ContentID, record.Kind)
		observed := fmt.Sprintf("%s/%s/%s", arc.Name, arc.ContentID, arc.Kind)
		arc.Close()
		return nil, boxerr.New(boxerr.IndexOutOfSync, "resolved archive disagrees with index row; rebuild the box").
			WithPath(fullPath).WithTuple(expected, observed)
	}
	return arc, nil
}

// Store copies sourceArchivePath (resolvable on the same afero.Fs as the
// box) into the box directory under a name derived from its metadata, then
// indexes it and returns the resulting record (spec.md §4.5).
func (b *Box) Store(ctx context.Context, sourceArchivePath string) (bead.Record, error) {
	md, err := archive.ReadMetadata(b.fs, sourceArchivePath)
	if err != nil {
		return bead.Record{}, err
	}

	destName := archive.BuildFilename(md.Name, md.FreezeTime)
	destPath := filepath.Join(b.dir, destName)
	if exists, _ := afero.Exists(b.fs, destPath); exists {
		existing, err := archive.ReadMetadata(b.fs, destPath)
		if err != nil || existing.ContentID != md.ContentID {
			// Genuine collision (not a repeat store of the same archive):
			// disambiguate with a uuid suffix, per the teacher's use of
			// uuid for synthesized identifiers.
			suffix := uuid.New().String()[:8]
			destName = archive.BuildFilename(md.Name+"-"+suffix, md.FreezeTime)
			destPath = filepath.Join(b.dir, destName)
			b.log.Warn().Str("name", md.Name).Str("disambiguated_as", destName).Msg("store: filename collision, disambiguating")
		} else {
			b.log.Debug().Str("path", destPath).Msg("store: archive already present, re-indexing in place")
		}
	}

	if destPath != sourceArchivePath {
		if err := copyFile(b.fs, sourceArchivePath, destPath); err != nil {
			return bead.Record{}, boxerr.Wrap(boxerr.IndexUnwritable, err, "copy archive into box").WithPath(destPath)
		}
	}

	rec, err := b.index.Add(ctx, destName)
	if err != nil {
		return bead.Record{}, err
	}
	rec.BoxName = b.name
	b.log.Info().Str("box", b.name).Str("name", rec.Name).Str("content_id", rec.ContentID).Msg("stored bead")
	return rec, nil
}

func copyFile(fs afero.Fs, srcPath, dstPath string) error {
	src, err := fs.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := fs.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// Describe renders a record for human consumption: name, kind, content_id,
// and a relative age (e.g. "3 days ago") computed from freeze_time.
func Describe(r bead.Record) string {
	age := r.FreezeTime
	if t, err := archive.ParseFreezeTime(r.FreezeTime); err == nil {
		age = humanize.Time(t)
	}
	return fmt.Sprintf("%s (kind=%s content_id=%s, frozen %s)", r.Name, r.Kind, r.ContentID, age)
}

// DescribeArchive renders an opened Archive's data/source footprint in
// human-readable byte counts.
func DescribeArchive(a *archive.Archive) string {
	var total int64
	for _, f := range a.DataFiles() {
		total += f.Size
	}
	for _, f := range a.SourceFiles() {
		total += f.Size
	}
	return fmt.Sprintf("%s: %d data file(s), %d source file(s), %s total",
		a.Name, len(a.DataFiles()), len(a.SourceFiles()), humanize.Bytes(uint64(total)))
}
