package csvio

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// WritePlacements writes one row per placed member.
func WritePlacements(w io.Writer, placements []model.Placement) error {
	rows := model.FlattenPlacements(placements)
	return errors.Wrap(gocsv.Marshal(&rows, w), "writing placements")
}

// ExportPlacements writes placements to the file at path, replacing it.
func ExportPlacements(placements []model.Placement, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := WritePlacements(out, placements); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// WriteEnumeration writes enumeration rows.
func WriteEnumeration(w io.Writer, rows []enumerate.Row) error {
	ptrs := make([]*enumerate.Row, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	return errors.Wrap(gocsv.Marshal(&ptrs, w), "writing enumeration")
}

// PrintPlacements prints placements grouped by target.
func PrintPlacements(w io.Writer, placements []model.Placement) {
	for _, p := range placements {
		fmt.Fprintf(w, "%-8d units: %-24s resources: %s\n", p.TargetID, joinIDs(p.Units), joinIDs(p.Resources))
	}
	fmt.Fprintf(w, "Printed targets: %d\n", len(placements))
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
