package memory

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/internal/storage"
	"github.com/rhyrak/go-allocate/pkg/model"
)

func TestAttempts(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	require.NoError(t, s.CreateAttempt(ctx, &model.Attempt{ID: "b", CreatedAt: now}))
	require.NoError(t, s.CreateAttempt(ctx, &model.Attempt{ID: "a", CreatedAt: now.Add(-time.Minute)}))
	assert.Equal(t, storage.ErrExists, errors.Cause(s.CreateAttempt(ctx, &model.Attempt{ID: "a"})))

	a, err := s.GetAttempt(ctx, "a")
	require.NoError(t, err)
	a.Message = "changed"
	got, _ := s.GetAttempt(ctx, "a")
	assert.Empty(t, got.Message)

	require.NoError(t, s.UpdateAttempt(ctx, a))
	got, _ = s.GetAttempt(ctx, "a")
	assert.Equal(t, "changed", got.Message)

	list, err := s.ListAttempts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	_, err = s.GetAttempt(ctx, "zzz")
	assert.Equal(t, storage.ErrNotFound, errors.Cause(err))
	assert.Equal(t, storage.ErrNotFound, errors.Cause(s.UpdateAttempt(ctx, &model.Attempt{ID: "zzz"})))
}

func TestPlacementsAndRevert(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateAttempt(ctx, &model.Attempt{ID: "a"}))

	placed := []model.Placement{
		{TargetID: 2, Units: []int64{1}, Resources: []int64{7}},
		{TargetID: 1, Units: []int64{2}},
	}
	require.NoError(t, s.StorePlacements(ctx, "a", placed))
	s.SetCurrent("a", []model.Placement{{TargetID: 3, Units: []int64{1, 2}}})

	cur, err := s.Placements(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), cur[0].TargetID)

	require.NoError(t, s.RevertToOriginal(ctx, "a"))
	cur, _ = s.Placements(ctx, "a")
	require.Len(t, cur, 2)
	assert.Equal(t, int64(1), cur[0].TargetID)
	assert.Equal(t, []int64{7}, cur[1].Resources)

	assert.Error(t, s.StorePlacements(ctx, "nope", placed))
}

func TestEnumerationPurge(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateAttempt(ctx, &model.Attempt{ID: "done", Finished: true}))
	require.NoError(t, s.CreateAttempt(ctx, &model.Attempt{ID: "open"}))
	rows := enumerate.Fresh([]int64{1}, nil, nil, nil).Rows("x")
	require.NoError(t, s.SaveEnumeration(ctx, "done", rows))
	require.NoError(t, s.SaveEnumeration(ctx, "open", rows))

	n, err := s.PurgeEnumerations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Enumeration(ctx, "done")
	assert.Equal(t, storage.ErrNotFound, errors.Cause(err))
	got, err := s.Enumeration(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	require.NoError(t, s.DeleteEnumeration(ctx, "open"))
	_, err = s.Enumeration(ctx, "open")
	assert.Error(t, err)
}

func TestArtifacts(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveArtifact(ctx, "a", storage.FormatLP, []byte("Minimize")))
	data, err := s.Artifact(ctx, "a", storage.FormatLP)
	require.NoError(t, err)
	assert.Equal(t, "Minimize", string(data))

	_, err = s.Artifact(ctx, "a", storage.FormatMPS)
	assert.Equal(t, storage.ErrNotFound, errors.Cause(err))
}
