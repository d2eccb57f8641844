// Package bead defines the value types shared by every layer of the Box:
// the lightweight BeadRecord returned by queries and the InputSpec entries
// it carries. Nothing in this package touches a filesystem or a database.
package bead

import "sort"

// InputSpec identifies, by value, one input a bead referenced at freeze
// time. It never points back to the referenced bead's row - only to its
// identity as it existed when this bead was frozen.
type InputSpec struct {
	InputName       string
	InputKind       string
	InputContentID  string
	InputFreezeTime string
}

// Record is the lightweight metadata tuple returned by queries. It
// identifies an archive without opening it. Obtained from BoxIndex.Query,
// from ingest (sync/add/rebuild), or constructed directly by tests.
type Record struct {
	BoxName   string
	Name      string
	Kind      string
	ContentID string

	// FreezeName is the immutable name recorded at freeze time. It is
	// never used for resolution - only Name (derived from the filename)
	// identifies a bead to locate/resolve.
	FreezeName string
	FreezeTime string

	Inputs []InputSpec

	// InputsLoaded distinguishes "no inputs" from "inputs not fetched by
	// this particular query". A lightweight listing leaves this false and
	// Inputs nil; a query run with inputs requested, or a record built
	// from an opened Archive, sets it true even when Inputs is empty.
	InputsLoaded bool
}

// Equal reports structural equality for resolution purposes: box, name and
// content_id. Two records with the same (box, name, content_id) identify
// the same archive regardless of how their Inputs/FreezeTime were
// populated.
func (r Record) Equal(other Record) bool {
	return r.BoxName == other.BoxName && r.Name == other.Name && r.ContentID == other.ContentID
}

// Key returns the (name, content_id) pair that uniquely identifies an
// archive within a box (invariant 1 of the index schema).
func (r Record) Key() (name, contentID string) {
	return r.Name, r.ContentID
}

// SortByFreezeTime orders records lexicographically by FreezeTime
// (fixed-width ISO-8601 UTC, so lexicographic order equals chronological
// order), breaking ties by ContentID ascending - the tie-breaker BeadSearch
// uses for newest/oldest.
func SortByFreezeTime(records []Record, ascending bool) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.FreezeTime != b.FreezeTime {
			if ascending {
				return a.FreezeTime < b.FreezeTime
			}
			return a.FreezeTime > b.FreezeTime
		}
		return a.ContentID < b.ContentID
	})
}
