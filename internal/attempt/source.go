package attempt

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rhyrak/go-allocate/internal/csvio"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// Source reads the snapshot an attempt solves. Input is the attempt's Input
// field.
type Source interface {
	Schedule(ctx context.Context, input string) (*model.ScheduleSnapshot, error)
	Matching(ctx context.Context, input string) (*model.MatchingSnapshot, error)
}

// DirSource reads snapshots from CSV directories below Root.
type DirSource struct {
	Root string
}

var _ Source = DirSource{}

// path keeps input inside Root.
func (s DirSource) path(input string) string {
	return filepath.Join(s.Root, filepath.Clean("/"+input))
}

func (s DirSource) Schedule(_ context.Context, input string) (*model.ScheduleSnapshot, error) {
	snap, err := csvio.LoadSchedule(s.path(input))
	if err != nil {
		return nil, errors.Wrap(ErrDataUnavailable, err.Error())
	}
	return snap, nil
}

func (s DirSource) Matching(_ context.Context, input string) (*model.MatchingSnapshot, error) {
	snap, err := csvio.LoadMatching(s.path(input))
	if err != nil {
		return nil, errors.Wrap(ErrDataUnavailable, err.Error())
	}
	return snap, nil
}
