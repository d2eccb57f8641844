package archive

import (
	"strings"
	"time"
)

// FreezeTimeLayout is the fixed-width, punctuation-stripped ISO-8601 UTC
// layout used both inside the manifest and in archive filenames, so
// lexicographic order equals chronological order and the timestamp
// round-trips cleanly through a filesystem path (spec.md §9 open question
// (b)).
const FreezeTimeLayout = "20060102T150405Z"

// Ext is the archive file extension.
const Ext = ".bead"

// FormatFreezeTime renders t in FreezeTimeLayout, in UTC.
func FormatFreezeTime(t time.Time) string {
	return t.UTC().Format(FreezeTimeLayout)
}

// ParseFreezeTime parses a FreezeTimeLayout string back into a time.Time.
func ParseFreezeTime(s string) (time.Time, error) {
	return time.Parse(FreezeTimeLayout, s)
}

// BuildFilename composes the box-relative filename for a bead with the
// given name and freeze time: "<name>_<freeze_time>.bead".
func BuildFilename(name, freezeTime string) string {
	return name + "_" + freezeTime + Ext
}

// ParseFilename splits an archive basename into (name, freezeTime) per
// spec.md §6: name is everything before the last underscore, freezeTime is
// parsed from the remainder. Returns ok=false if the name carries no
// underscore or the remainder does not parse as FreezeTimeLayout - callers
// must fall back to the manifest's name_hint/freeze_time in that case.
func ParseFilename(basename string) (name, freezeTime string, ok bool) {
	base := strings.TrimSuffix(basename, Ext)
	idx := strings.LastIndex(base, "_")
	if idx < 0 || idx == len(base)-1 {
		return "", "", false
	}
	candidateName := base[:idx]
	candidateTime := base[idx+1:]
	if _, err := ParseFreezeTime(candidateTime); err != nil {
		return "", "", false
	}
	return candidateName, candidateTime, true
}
