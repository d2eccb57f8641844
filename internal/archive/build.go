package archive

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/beadbox/bead/bead"
)

// BuildSpec describes the archive Build should materialize: the identity
// metadata plus the data/source file contents to embed.
type BuildSpec struct {
	Kind       string
	ContentID  string
	FreezeName string
	FreezeTime string // FreezeTimeLayout; defaults to "now" if empty
	Inputs     []bead.InputSpec

	DataFiles   map[string][]byte // relative name -> content
	SourceFiles map[string][]byte
}

// Build writes a well-formed .bead archive to fs at filePath. The
// filename-derived name comes from filePath itself; the manifest's
// name_hint is spec.FreezeName. It exists so tests (and, in
// principle, a future freeze operation - out of scope per spec.md §1) can
// construct fixtures without hand-assembling a zip.
func Build(fs afero.Fs, filePath string, spec BuildSpec) error {
	f, err := fs.Create(filePath)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", filePath, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	freezeTime := spec.FreezeTime
	if freezeTime == "" {
		freezeTime = FormatFreezeTime(time.Now())
	}

	manifest := Manifest{
		NameHint:   spec.FreezeName,
		Kind:       spec.Kind,
		ContentID:  spec.ContentID,
		FreezeName: spec.FreezeName,
		FreezeTime: freezeTime,
	}
	for _, in := range spec.Inputs {
		manifest.Inputs = append(manifest.Inputs, ManifestInput{
			InputName:       in.InputName,
			InputKind:       in.InputKind,
			InputContentID:  in.InputContentID,
			InputFreezeTime: in.InputFreezeTime,
		})
	}

	for name, contents := range spec.DataFiles {
		entryName := DataPrefix + name
		if err := writeEntry(zw, entryName, contents); err != nil {
			return err
		}
		manifest.DataFiles = append(manifest.DataFiles, FileEntry{Name: entryName, Size: int64(len(contents))})
	}
	for name, contents := range spec.SourceFiles {
		entryName := SourcePrefix + name
		if err := writeEntry(zw, entryName, contents); err != nil {
			return err
		}
		manifest.SourceFiles = append(manifest.SourceFiles, FileEntry{Name: entryName, Size: int64(len(contents))})
	}

	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest: %w", err)
	}
	if err := writeEntry(zw, ManifestEntryName, manifestBytes); err != nil {
		return err
	}

	return zw.Close()
}

func writeEntry(zw *zip.Writer, name string, contents []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("archive: create entry %s: %w", name, err)
	}
	if _, err := w.Write(contents); err != nil {
		return fmt.Errorf("archive: write entry %s: %w", name, err)
	}
	return nil
}
