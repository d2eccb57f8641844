package archive

// ManifestEntryName is the path, inside the zip, of the JSON manifest that
// carries a bead's identity metadata. It is the only entry ArchiveReader
// reads during rebuild/sync - cheap enough to call per file, per spec.md
// §4.1.
const ManifestEntryName = "bead.json"

// DataPrefix and SourcePrefix distinguish output data files from function
// source files within the zip, per spec.md §1's output/function split.
const (
	DataPrefix   = "data/"
	SourcePrefix = "src/"
)

// ManifestInput mirrors bead.InputSpec in the archive's on-disk JSON form.
type ManifestInput struct {
	InputName       string `json:"input_name"`
	InputKind       string `json:"input_kind"`
	InputContentID  string `json:"input_content_id"`
	InputFreezeTime string `json:"input_freeze_time"`
}

// FileEntry describes one file recorded in the manifest's file list, used
// to answer Archive.DataFiles()/SourceFiles() without re-reading the zip's
// central directory.
type FileEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Manifest is the bead.json payload: everything ArchiveReader needs
// without opening any other entry in the zip.
type Manifest struct {
	// NameHint is used only when the filename is malformed (spec.md §6
	// "Archive metadata contract"); the index-facing Name always prefers
	// the filename-derived value.
	NameHint string `json:"name_hint"`

	Kind       string `json:"kind"`
	ContentID  string `json:"content_id"`
	FreezeName string `json:"freeze_name"`
	FreezeTime string `json:"freeze_time"`

	Inputs []ManifestInput `json:"inputs"`

	DataFiles   []FileEntry `json:"data_files"`
	SourceFiles []FileEntry `json:"source_files"`
}
