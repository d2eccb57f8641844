// Package search implements BeadSearch: a fluent condition accumulator that
// drives one box or an ordered list of boxes (spec.md §4.6). It is a single
// builder parameterized by a backend - a tagged variant, not a type
// hierarchy, per spec.md §9 "Tagged variant instead of inheritance".
package search

import (
	"context"

	"github.com/beadbox/bead/bead"
	"github.com/beadbox/bead/box"
	"github.com/beadbox/bead/internal/condition"
)

// backend abstracts over a single Box or an ordered slice of Boxes so
// BeadSearch's builder methods and terminators need only one implementation.
type backend interface {
	queryAll(ctx context.Context, conds []condition.Condition) ([]bead.Record, error)
}

type singleBoxBackend struct {
	b *box.Box
}

func (s singleBoxBackend) queryAll(ctx context.Context, conds []condition.Condition) ([]bead.Record, error) {
	return s.b.GetBeads(ctx, conds)
}

// multiBoxBackend preserves box order: queryAll concatenates each box's
// results in the order the boxes were supplied, so First (which returns
// without sorting) naturally favors the earliest box.
type multiBoxBackend struct {
	boxes []*box.Box
}

func (m multiBoxBackend) queryAll(ctx context.Context, conds []condition.Condition) ([]bead.Record, error) {
	var out []bead.Record
	for _, b := range m.boxes {
		recs, err := b.GetBeads(ctx, conds)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// BeadSearch accumulates conditions against a bound backend and exposes
// fluent builder methods plus the terminators in spec.md §4.6.
type BeadSearch struct {
	backend backend
	conds   []condition.Condition
}

// OnBox binds a BeadSearch to a single box.
func OnBox(b *box.Box) *BeadSearch {
	return &BeadSearch{backend: singleBoxBackend{b: b}}
}

// OnBoxes binds a BeadSearch to an ordered list of boxes. Order is preserved
// as the primary key for First; Newest/Oldest override it by sorting on
// freeze_time across the union (spec.md §4.6).
func OnBoxes(boxes ...*box.Box) *BeadSearch {
	return &BeadSearch{backend: multiBoxBackend{boxes: boxes}}
}

func (s *BeadSearch) append(kind condition.Kind, value string) *BeadSearch {
	s.conds = append(s.conds, condition.Condition{Kind: kind, Value: value})
	return s
}

func (s *BeadSearch) ByName(name string) *BeadSearch       { return s.append(condition.BeadName, name) }
func (s *BeadSearch) ByKind(kind string) *BeadSearch        { return s.append(condition.BeadKind, kind) }
func (s *BeadSearch) ByContentID(id string) *BeadSearch     { return s.append(condition.ContentID, id) }
func (s *BeadSearch) AtTime(t string) *BeadSearch           { return s.append(condition.AtTime, t) }
func (s *BeadSearch) NewerThan(t string) *BeadSearch        { return s.append(condition.NewerThan, t) }
func (s *BeadSearch) OlderThan(t string) *BeadSearch        { return s.append(condition.OlderThan, t) }
func (s *BeadSearch) AtOrNewer(t string) *BeadSearch        { return s.append(condition.AtOrNewer, t) }
func (s *BeadSearch) AtOrOlder(t string) *BeadSearch        { return s.append(condition.AtOrOlder, t) }

// All returns every match across the bound box(es).
func (s *BeadSearch) All(ctx context.Context) ([]bead.Record, error) {
	return s.backend.queryAll(ctx, s.conds)
}

// First returns any match, preferring box order over recency; ok is false
// when nothing matches.
func (s *BeadSearch) First(ctx context.Context) (rec bead.Record, ok bool, err error) {
	recs, err := s.All(ctx)
	if err != nil {
		return bead.Record{}, false, err
	}
	if len(recs) == 0 {
		return bead.Record{}, false, nil
	}
	return recs[0], true, nil
}

// Newest returns the match with the greatest freeze_time, ties broken by
// content_id ascending.
func (s *BeadSearch) Newest(ctx context.Context) (rec bead.Record, ok bool, err error) {
	return s.extremum(ctx, false)
}

// Oldest returns the match with the least freeze_time, same tie-breaker.
func (s *BeadSearch) Oldest(ctx context.Context) (rec bead.Record, ok bool, err error) {
	return s.extremum(ctx, true)
}

func (s *BeadSearch) extremum(ctx context.Context, oldest bool) (bead.Record, bool, error) {
	recs, err := s.All(ctx)
	if err != nil {
		return bead.Record{}, false, err
	}
	if len(recs) == 0 {
		return bead.Record{}, false, nil
	}
	bead.SortByFreezeTime(recs, oldest)
	return recs[0], true, nil
}

// Exists reports whether any bead matches the accumulated conditions.
func (s *BeadSearch) Exists(ctx context.Context) (bool, error) {
	recs, err := s.All(ctx)
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}
