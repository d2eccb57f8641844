// Package archive implements ArchiveReader and the Archive handle it
// produces: opening a single .bead file, extracting its identity metadata
// cheaply (one manifest entry, no payload reads), and - only when a caller
// actually resolves a BeadRecord - exposing the full, resource-owning
// handle used to enumerate data/source files and input bindings.
//
// Archives are ZIP files (archive/zip): the archive container format's
// internal layout is explicitly out of scope for this module (spec.md §1),
// so this package owns the simplest self-contained format that can carry a
// manifest plus files, the way the donor pack's aistore wraps the same
// stdlib archive readers rather than a third-party archive library.
package archive

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/spf13/afero"

	"github.com/beadbox/bead/bead"
	"github.com/beadbox/bead/boxerr"
)

// Metadata is the cheap, payload-free result of opening an archive file:
// everything ArchiveReader produces for a well-formed archive per spec.md
// §6 "Archive metadata contract".
type Metadata struct {
	FilePath string // path this metadata was read from, as passed in; ingest replaces it with the box-relative path

	// Name is derived from the filename (spec.md §4.2); NameHint is the
	// manifest's own hint, used only when the filename is malformed.
	Name       string
	NameHint   string
	Kind       string
	ContentID  string
	FreezeName string
	FreezeTime string

	Inputs []bead.InputSpec
}

// ReadMetadata opens path on fs, reads only the bead.json manifest entry
// (never the data/source payload), and returns the archive's identity
// metadata. Returns a *boxerr.Error of kind ArchiveInvalid if the file is
// missing, not a valid zip, or lacks a well-formed manifest - callers
// (rebuild/sync) isolate this per file and continue.
func ReadMetadata(fs afero.Fs, filePath string) (*Metadata, error) {
	f, err := fs.Open(filePath)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.ArchiveInvalid, err, "open archive").WithPath(filePath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, boxerr.Wrap(boxerr.ArchiveInvalid, err, "stat archive").WithPath(filePath)
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, boxerr.Wrap(boxerr.ArchiveInvalid, err, "not a valid archive").WithPath(filePath)
	}

	manifest, err := readManifest(zr)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.ArchiveInvalid, err, "invalid manifest").WithPath(filePath)
	}

	name, freezeTime, ok := ParseFilename(path.Base(filePath))
	if !ok {
		// Malformed filename: fall back to the manifest's own hints, per
		// spec.md §6.
		name = manifest.NameHint
		freezeTime = manifest.FreezeTime
	}

	inputs := make([]bead.InputSpec, 0, len(manifest.Inputs))
	for _, mi := range manifest.Inputs {
		inputs = append(inputs, bead.InputSpec{
			InputName:       mi.InputName,
			InputKind:       mi.InputKind,
			InputContentID:  mi.InputContentID,
			InputFreezeTime: mi.InputFreezeTime,
		})
	}

	return &Metadata{
		FilePath:   filePath,
		Name:       name,
		NameHint:   manifest.NameHint,
		Kind:       manifest.Kind,
		ContentID:  manifest.ContentID,
		FreezeName: manifest.FreezeName,
		FreezeTime: freezeTime,
		Inputs:     inputs,
	}, nil
}

func readManifest(zr *zip.Reader) (*Manifest, error) {
	zf, err := zr.Open(ManifestEntryName)
	if err != nil {
		return nil, fmt.Errorf("missing %s: %w", ManifestEntryName, err)
	}
	defer zf.Close()

	var m Manifest
	if err := json.NewDecoder(zf).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ManifestEntryName, err)
	}
	if m.ContentID == "" || m.Kind == "" {
		return nil, fmt.Errorf("%s missing required kind/content_id", ManifestEntryName)
	}
	return &m, nil
}

// Archive is the heavyweight, resource-owning handle returned only by
// Box.resolve. It carries the full metadata of a BeadRecord plus the
// ability to enumerate data files, source files, and input bindings, and
// (a supplemental, non-goal-safe addition - extraction itself stays out of
// scope) open an individual entry's contents for inspection.
type Archive struct {
	Metadata
	file        afero.File
	zr          *zip.Reader
	opened      bool
	dataFiles   []FileEntry
	sourceFiles []FileEntry
}

// Open opens filePath on fs as a full Archive handle. The caller must call
// Close on every exit path; Box.Resolve closes the handle itself only when
// validation fails, and otherwise hands it to its caller to close. Opening
// goes through afero.Fs (not os directly) so
// the whole resolve path is testable against an in-memory filesystem.
func Open(fs afero.Fs, filePath string) (*Archive, error) {
	f, err := fs.Open(filePath)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.ArchiveInvalid, err, "open archive").WithPath(filePath)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, boxerr.Wrap(boxerr.ArchiveInvalid, err, "stat archive").WithPath(filePath)
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, boxerr.Wrap(boxerr.ArchiveInvalid, err, "not a valid archive").WithPath(filePath)
	}

	manifest, err := readManifest(zr)
	if err != nil {
		f.Close()
		return nil, boxerr.Wrap(boxerr.ArchiveInvalid, err, "invalid manifest").WithPath(filePath)
	}

	name, freezeTime, ok := ParseFilename(path.Base(filePath))
	if !ok {
		name = manifest.NameHint
		freezeTime = manifest.FreezeTime
	}

	inputs := make([]bead.InputSpec, 0, len(manifest.Inputs))
	for _, mi := range manifest.Inputs {
		inputs = append(inputs, bead.InputSpec{
			InputName:       mi.InputName,
			InputKind:       mi.InputKind,
			InputContentID:  mi.InputContentID,
			InputFreezeTime: mi.InputFreezeTime,
		})
	}

	a := &Archive{
		Metadata: Metadata{
			FilePath:   filePath,
			Name:       name,
			NameHint:   manifest.NameHint,
			Kind:       manifest.Kind,
			ContentID:  manifest.ContentID,
			FreezeName: manifest.FreezeName,
			FreezeTime: freezeTime,
			Inputs:     inputs,
		},
		file:        f,
		zr:          zr,
		opened:      true,
		dataFiles:   manifest.DataFiles,
		sourceFiles: manifest.SourceFiles,
	}
	return a, nil
}

// Close releases the underlying zip file handle. Safe to call more than
// once.
func (a *Archive) Close() error {
	if !a.opened {
		return nil
	}
	a.opened = false
	return a.file.Close()
}

// DataFiles lists the archive's output data file entries (name + size).
func (a *Archive) DataFiles() []FileEntry {
	return a.dataFiles
}

// SourceFiles lists the archive's function source file entries.
func (a *Archive) SourceFiles() []FileEntry {
	return a.sourceFiles
}

// OpenEntry opens one entry within the archive for reading (a data or source
// file named in DataFiles/SourceFiles). The caller must close the returned
// reader. This stops short of "extraction to a workspace", which spec.md
// §1 puts out of scope - it is in-place inspection only.
func (a *Archive) OpenEntry(name string) (io.ReadCloser, error) {
	if !a.opened {
		return nil, boxerr.New(boxerr.ArchiveInvalid, "archive already closed").WithPath(a.FilePath)
	}
	f, err := a.zr.Open(name)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.ArchiveInvalid, err, "open entry %q", name).WithPath(a.FilePath)
	}
	return f, nil
}
