package boxindex

// IndexFileName is the SQLite database file colocated in every box
// directory (spec.md §6).
const IndexFileName = ".index.sqlite"

// currentSchemaVersion is bumped whenever the DDL below changes shape.
// open() rebuilds from scratch on any version mismatch (spec.md §4.4).
const currentSchemaVersion = 1

// schema is the literal DDL from spec.md §6, with IF NOT EXISTS added to
// each statement, plus the schema_meta bookkeeping table open()/rebuild() use to detect the
// existing shape.
const schema = `
CREATE TABLE IF NOT EXISTS schema_meta (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS beads (
    bead_id           INTEGER PRIMARY KEY,
    name              TEXT NOT NULL,
    content_id        TEXT NOT NULL,
    kind              TEXT NOT NULL,
    freeze_name       TEXT NOT NULL,
    freeze_time_str   TEXT NOT NULL,
    file_path         TEXT NOT NULL,
    UNIQUE(file_path),
    UNIQUE(name, content_id)
);
CREATE INDEX IF NOT EXISTS idx_beads_name        ON beads(name);
CREATE INDEX IF NOT EXISTS idx_beads_content_id  ON beads(content_id);
CREATE INDEX IF NOT EXISTS idx_beads_kind        ON beads(kind);
CREATE INDEX IF NOT EXISTS idx_beads_freeze_time ON beads(freeze_time_str);

CREATE TABLE IF NOT EXISTS inputs (
    input_id              INTEGER PRIMARY KEY,
    bead_id               INTEGER NOT NULL,
    input_name            TEXT NOT NULL,
    input_kind            TEXT NOT NULL,
    input_content_id      TEXT NOT NULL,
    input_freeze_time_str TEXT NOT NULL,
    FOREIGN KEY (bead_id) REFERENCES beads(bead_id) ON DELETE CASCADE,
    UNIQUE(bead_id, input_name)
);
CREATE INDEX IF NOT EXISTS idx_inputs_bead_id     ON inputs(bead_id);
CREATE INDEX IF NOT EXISTS idx_inputs_content_id  ON inputs(input_content_id);
CREATE INDEX IF NOT EXISTS idx_inputs_kind        ON inputs(input_kind);
CREATE INDEX IF NOT EXISTS idx_inputs_name        ON inputs(input_name);
`
