// Package enumerate assigns dense indices to the id-keyed entities of one attempt.
package enumerate

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Category names an entity family of an enumeration.
type Category string

const (
	CategoryUnit     Category = "unit"
	CategoryResource Category = "resource"
	CategoryTarget   Category = "target"
	CategoryPeriod   Category = "period"
)

var categories = []Category{CategoryUnit, CategoryResource, CategoryTarget, CategoryPeriod}

// ErrMismatch means a stored enumeration does not match the current entities.
var ErrMismatch = errors.New("enumeration does not match current data")

// Index is a bijection between entity ids and [0, n).
type Index struct {
	toIndex map[int64]int
	toID    []int64
}

// NewIndex enumerates ids in the given order. Duplicates keep their first index.
func NewIndex(ids []int64) *Index {
	idx := &Index{toIndex: make(map[int64]int, len(ids)), toID: make([]int64, 0, len(ids))}
	for _, id := range ids {
		if _, ok := idx.toIndex[id]; ok {
			continue
		}
		idx.toIndex[id] = len(idx.toID)
		idx.toID = append(idx.toID, id)
	}
	return idx
}

func (x *Index) Len() int { return len(x.toID) }

// Index returns the index of id.
func (x *Index) Index(id int64) (int, bool) {
	i, ok := x.toIndex[id]
	return i, ok
}

// ID returns the id at index i.
func (x *Index) ID(i int) int64 { return x.toID[i] }

// IDs returns the ids in index order. The slice must not be modified.
func (x *Index) IDs() []int64 { return x.toID }

// Enumeration holds the four index spaces of one attempt.
type Enumeration struct {
	Units     *Index
	Resources *Index
	Targets   *Index
	Periods   *Index
}

// Fresh enumerates the given ids, which must already be in canonical order.
func Fresh(units, resources, targets, periods []int64) *Enumeration {
	return &Enumeration{
		Units:     NewIndex(units),
		Resources: NewIndex(resources),
		Targets:   NewIndex(targets),
		Periods:   NewIndex(periods),
	}
}

func (e *Enumeration) index(c Category) *Index {
	switch c {
	case CategoryUnit:
		return e.Units
	case CategoryResource:
		return e.Resources
	case CategoryTarget:
		return e.Targets
	case CategoryPeriod:
		return e.Periods
	}
	return nil
}

func (e *Enumeration) String() string {
	return fmt.Sprintf("units=%d resources=%d targets=%d periods=%d",
		e.Units.Len(), e.Resources.Len(), e.Targets.Len(), e.Periods.Len())
}

// Row is one persisted enumeration entry.
type Row struct {
	AttemptID string   `csv:"attempt_id" db:"attempt_id"`
	Category  Category `csv:"category" db:"category"`
	Index     int      `csv:"enumeration_index" db:"enumeration_index"`
	EntityKey int64    `csv:"entity_key" db:"entity_key"`
}

// Rows serializes the enumeration in category then index order.
func (e *Enumeration) Rows(attemptID string) []Row {
	var rows []Row
	for _, c := range categories {
		for i, id := range e.index(c).IDs() {
			rows = append(rows, Row{AttemptID: attemptID, Category: c, Index: i, EntityKey: id})
		}
	}
	return rows
}

// Replay rebuilds an enumeration from persisted rows. Rows are read back in
// ascending index order whatever order they arrive in, and every category must
// cover a contiguous range starting at zero.
func Replay(rows []Row) (*Enumeration, error) {
	byCat := make(map[Category][]Row, len(categories))
	for _, r := range rows {
		if !knownCategory(r.Category) {
			return nil, errors.Wrapf(ErrMismatch, "unknown category %q", r.Category)
		}
		byCat[r.Category] = append(byCat[r.Category], r)
	}

	e := &Enumeration{}
	for _, c := range categories {
		cr := byCat[c]
		sort.Slice(cr, func(i, j int) bool { return cr[i].Index < cr[j].Index })
		ids := make([]int64, len(cr))
		seen := make(map[int64]struct{}, len(cr))
		for i, r := range cr {
			if r.Index != i {
				return nil, errors.Wrapf(ErrMismatch, "%s enumeration has a gap at index %d", c, i)
			}
			if _, dup := seen[r.EntityKey]; dup {
				return nil, errors.Wrapf(ErrMismatch, "%s %d enumerated twice", c, r.EntityKey)
			}
			seen[r.EntityKey] = struct{}{}
			ids[i] = r.EntityKey
		}
		idx := NewIndex(ids)
		switch c {
		case CategoryUnit:
			e.Units = idx
		case CategoryResource:
			e.Resources = idx
		case CategoryTarget:
			e.Targets = idx
		case CategoryPeriod:
			e.Periods = idx
		}
	}
	return e, nil
}

func knownCategory(c Category) bool {
	for _, k := range categories {
		if k == c {
			return true
		}
	}
	return false
}

// Check verifies that every enumerated id is present in the current entity
// sets. Current entities missing from the enumeration are allowed; they take
// no part in the replayed attempt.
func (e *Enumeration) Check(units, resources, targets, periods []int64) error {
	current := map[Category][]int64{
		CategoryUnit:     units,
		CategoryResource: resources,
		CategoryTarget:   targets,
		CategoryPeriod:   periods,
	}
	for _, c := range categories {
		have := make(map[int64]struct{}, len(current[c]))
		for _, id := range current[c] {
			have[id] = struct{}{}
		}
		for _, id := range e.index(c).IDs() {
			if _, ok := have[id]; !ok {
				return errors.Wrapf(ErrMismatch, "%s %d no longer exists", c, id)
			}
		}
	}
	return nil
}
