// Package condition compiles an ordered list of (ConditionKind, value)
// pairs into a parameterized SQL WHERE fragment. It is the only package in
// this module that constructs SQL out of user-supplied values, and it
// never string-interpolates one: every value flows through as a bound
// parameter (spec.md §4.3).
package condition

import "strings"

// Kind enumerates the condition kinds spec.md §4.3 defines. There is no
// open-ended/dynamic condition kind - BeadSearch's builder methods map
// 1:1 onto this closed set (spec.md §9 "Builder pattern over dynamic
// keyword parameters").
type Kind int

const (
	BeadName Kind = iota
	BeadKind
	ContentID
	AtTime
	NewerThan
	OlderThan
	AtOrNewer
	AtOrOlder
)

// column and operator implement the table in spec.md §4.3.
func (k Kind) column() string {
	switch k {
	case BeadName:
		return "name"
	case BeadKind:
		return "kind"
	case ContentID:
		return "content_id"
	default:
		return "freeze_time_str"
	}
}

func (k Kind) operator() string {
	switch k {
	case BeadName, BeadKind, ContentID, AtTime:
		return "="
	case NewerThan:
		return ">"
	case OlderThan:
		return "<"
	case AtOrNewer:
		return ">="
	case AtOrOlder:
		return "<="
	default:
		return "="
	}
}

// Condition is one (kind, value) pair as accumulated by a search builder.
type Condition struct {
	Kind  Kind
	Value string
}

// Compiled is a WHERE-clause fragment (without the leading "WHERE") plus
// its parallel, positionally-ordered parameter list.
type Compiled struct {
	Fragment string
	Args     []any
}

// Compile conjoins conds with AND into a single parameterized fragment. An
// empty list compiles to "1=1", selecting all rows without any special-
// casing at call sites.
func Compile(conds []Condition) Compiled {
	if len(conds) == 0 {
		return Compiled{Fragment: "1=1"}
	}

	var b strings.Builder
	args := make([]any, 0, len(conds))
	for i, c := range conds {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(c.Kind.column())
		b.WriteString(" ")
		b.WriteString(c.Kind.operator())
		b.WriteString(" ?")
		args = append(args, c.Value)
	}
	return Compiled{Fragment: b.String(), Args: args}
}

// Matches reports whether a single bead's (name, kind, contentID,
// freezeTime) tuple satisfies every condition in conds, evaluated in Go
// rather than compiled to SQL. It exists for the degraded, database-less
// enumeration path (spec.md §4.4's filesystem-enumeration fallback), where
// there is no WHERE clause to push the filter into. freezeTime comparisons
// are plain string comparisons, valid because freeze_time_str is a
// fixed-width ISO-8601 UTC string (see bead.SortByFreezeTime).
func Matches(conds []Condition, name, kind, contentID, freezeTime string) bool {
	for _, c := range conds {
		var field string
		switch c.Kind {
		case BeadName:
			field = name
		case BeadKind:
			field = kind
		case ContentID:
			field = contentID
		default:
			field = freezeTime
		}
		switch c.Kind {
		case BeadName, BeadKind, ContentID, AtTime:
			if field != c.Value {
				return false
			}
		case NewerThan:
			if field <= c.Value {
				return false
			}
		case OlderThan:
			if field >= c.Value {
				return false
			}
		case AtOrNewer:
			if field < c.Value {
				return false
			}
		case AtOrOlder:
			if field > c.Value {
				return false
			}
		}
	}
	return true
}
