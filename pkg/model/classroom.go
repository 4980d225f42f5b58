package model

import "sort"

// Facility is a bit set of room features.
type Facility uint32

const (
	FacilityRecording Facility = 1 << iota
	FacilityProjector
	FacilityAccessible
)

// Has reports whether every facility in req is present.
func (f Facility) Has(req Facility) bool {
	return f&req == req
}

type Room struct {
	ID   int64  `csv:"room_id"`
	Name string `csv:"name"`
	// Occupancy is the number of parallel streams the room hosts in one session.
	Occupancy  int      `csv:"occupancy"`
	Facilities Facility `csv:"facilities"`
}

type Session struct {
	ID    int64  `csv:"session_id"`
	Label string `csv:"label"`
}

// Slot is one placement target: a session x room x stream combination.
type Slot struct {
	ID         int64    `csv:"slot_id"`
	SessionID  int64    `csv:"session_id"`
	RoomID     int64    `csv:"room_id"`
	Stream     int      `csv:"stream"`
	Facilities Facility `csv:"facilities"`
}

// GenerateSlots replicates every room once per unit of occupancy in every session
// in which the room is not marked unavailable. Ids are assigned 1..n in session
// order, then room id, then stream, so identical inputs always produce identical slots.
func GenerateSlots(sessions []*Session, rooms []*Room, roomStatus AvailabilityTable) []*Slot {
	sorted := make([]*Room, len(rooms))
	copy(sorted, rooms)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	var slots []*Slot
	for _, s := range sessions {
		for _, r := range sorted {
			if roomStatus.Status(r.ID, s.ID) == Unavailable {
				continue
			}
			occupancy := r.Occupancy
			if occupancy < 1 {
				occupancy = 1
			}
			for k := 0; k < occupancy; k++ {
				slots = append(slots, &Slot{
					ID:         int64(len(slots) + 1),
					SessionID:  s.ID,
					RoomID:     r.ID,
					Stream:     k,
					Facilities: r.Facilities,
				})
			}
		}
	}
	return slots
}
