package objective

import (
	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// Prior is an earlier solution expressed in the index space of a new model.
type Prior struct {
	Units, Resources, Targets int

	X []uint8
	Y []uint8

	used []bool
}

// Used reports whether target t had any member in the prior solution.
func (p *Prior) Used(t int) bool { return p.used[t] }

// NewPrior places the members of placements into e's index space. Targets,
// units and resources that e does not enumerate are skipped and counted.
func NewPrior(e *enumerate.Enumeration, placements []model.Placement) (*Prior, int) {
	nu, nr, nt := e.Units.Len(), e.Resources.Len(), e.Targets.Len()
	p := &Prior{
		Units: nu, Resources: nr, Targets: nt,
		X:    make([]uint8, nu*nt),
		Y:    make([]uint8, nr*nt),
		used: make([]bool, nt),
	}
	skipped := 0
	for _, pl := range placements {
		t, ok := e.Targets.Index(pl.TargetID)
		if !ok {
			skipped += len(pl.Units) + len(pl.Resources)
			continue
		}
		for _, id := range pl.Units {
			u, ok := e.Units.Index(id)
			if !ok {
				skipped++
				continue
			}
			p.X[u*nt+t] = 1
			p.used[t] = true
		}
		for _, id := range pl.Resources {
			r, ok := e.Resources.Index(id)
			if !ok {
				skipped++
				continue
			}
			p.Y[r*nt+t] = 1
			p.used[t] = true
		}
	}
	return p, skipped
}
