package model

import "sort"

// Placement is the member list of one used target.
type Placement struct {
	TargetID  int64
	Units     []int64
	Resources []int64
}

const (
	MemberUnit     = "unit"
	MemberResource = "resource"
)

// PlacementCSV is one member of one placement.
type PlacementCSV struct {
	TargetID int64  `csv:"target_id" db:"target_id"`
	Member   string `csv:"member" db:"member"`
	EntityID int64  `csv:"entity_id" db:"entity_id"`
}

// FlattenPlacements turns placements into csv rows.
func FlattenPlacements(placements []Placement) []*PlacementCSV {
	var rows []*PlacementCSV
	for _, p := range placements {
		for _, u := range p.Units {
			rows = append(rows, &PlacementCSV{TargetID: p.TargetID, Member: MemberUnit, EntityID: u})
		}
		for _, r := range p.Resources {
			rows = append(rows, &PlacementCSV{TargetID: p.TargetID, Member: MemberResource, EntityID: r})
		}
	}
	return rows
}

// GroupPlacements is the inverse of FlattenPlacements. Output is ordered by target id.
func GroupPlacements(rows []*PlacementCSV) []Placement {
	byTarget := make(map[int64]*Placement)
	for _, r := range rows {
		p, ok := byTarget[r.TargetID]
		if !ok {
			p = &Placement{TargetID: r.TargetID}
			byTarget[r.TargetID] = p
		}
		switch r.Member {
		case MemberUnit:
			p.Units = append(p.Units, r.EntityID)
		case MemberResource:
			p.Resources = append(p.Resources, r.EntityID)
		}
	}
	out := make([]Placement, 0, len(byTarget))
	for _, p := range byTarget {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TargetID < out[j].TargetID
	})
	return out
}
