package availability

import (
	"github.com/rhyrak/go-allocate/pkg/model"
)

// Lookup returns the status of entity row for target column.
type Lookup func(row, col int) model.Availability

// Matrices are the availability inputs of a model.
type Matrices struct {
	// Resource is 1 where the resource may be placed at the target. If-needed counts as available.
	Resource *Matrix
	// IfNeeded is 1 exactly where the resource is if-needed. It only feeds the objective.
	IfNeeded *Matrix
	// Unit is 1 where the unit may be placed at the target.
	Unit *Matrix
}

// Build evaluates the lookups over every (entity, target) pair in range.
func Build(units, resources, targets int, unit, resource Lookup) *Matrices {
	m := &Matrices{
		Resource: NewMatrix(resources, targets, 0),
		IfNeeded: NewMatrix(resources, targets, 0),
		Unit:     NewMatrix(units, targets, 0),
	}
	for r := 0; r < resources; r++ {
		for t := 0; t < targets; t++ {
			switch resource(r, t) {
			case model.Available:
				m.Resource.Set(r, t, 1)
			case model.IfNeeded:
				m.Resource.Set(r, t, 1)
				m.IfNeeded.Set(r, t, 1)
			}
		}
	}
	for u := 0; u < units; u++ {
		for t := 0; t < targets; t++ {
			if unit(u, t) != model.Unavailable {
				m.Unit.Set(u, t, 1)
			}
		}
	}
	return m
}

// SessionLookup resolves (row, col) to (entity id, session id) and consults table.
func SessionLookup(table model.AvailabilityTable, entity func(int) int64, session func(int) int64) Lookup {
	return func(row, col int) model.Availability {
		return table.Status(entity(row), session(col))
	}
}
