package model

import (
	"fmt"
	"strings"
)

// Availability is the status of an entity for one session.
type Availability int8

const (
	Available Availability = iota
	IfNeeded
	Unavailable
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case IfNeeded:
		return "ifneeded"
	case Unavailable:
		return "unavailable"
	}
	return fmt.Sprintf("Availability(%d)", int8(a))
}

// ParseAvailability accepts the spellings used in exported availability sheets.
func ParseAvailability(s string) (Availability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "available", "yes", "y":
		return Available, nil
	case "ifneeded", "if-needed", "if_needed", "maybe":
		return IfNeeded, nil
	case "unavailable", "busy", "no", "n":
		return Unavailable, nil
	}
	return Available, fmt.Errorf("unknown availability %q", s)
}

// AvailabilityCSV is one row of an availability file.
// Entities without a row for a session are available.
type AvailabilityCSV struct {
	EntityID  int64  `csv:"entity_id"`
	SessionID int64  `csv:"session_id"`
	StatusSTR string `csv:"status"`
}

// AvailabilityTable answers (entity id, session id) lookups.
type AvailabilityTable map[int64]map[int64]Availability

func (t AvailabilityTable) Set(entity, session int64, a Availability) {
	row, ok := t[entity]
	if !ok {
		row = make(map[int64]Availability)
		t[entity] = row
	}
	row[session] = a
}

// Status returns Available for unknown pairs.
func (t AvailabilityTable) Status(entity, session int64) Availability {
	if row, ok := t[entity]; ok {
		return row[session]
	}
	return Available
}

// NewAvailabilityTable merges csv rows into a table.
func NewAvailabilityTable(rows []*AvailabilityCSV) (AvailabilityTable, error) {
	t := make(AvailabilityTable)
	for _, r := range rows {
		a, err := ParseAvailability(r.StatusSTR)
		if err != nil {
			return nil, fmt.Errorf("entity %d session %d: %v", r.EntityID, r.SessionID, err)
		}
		t.Set(r.EntityID, r.SessionID, a)
	}
	return t, nil
}
