package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/internal/storage"
	"github.com/rhyrak/go-allocate/pkg/model"
)

type StoreTestSuite struct {
	suite.Suite

	mock  sqlmock.Sqlmock
	store *Store
	ctx   context.Context
}

func TestStore(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.mock = mock
	s.store = New(sqlx.NewDb(db, "postgres"))
	s.ctx = context.Background()
}

func (s *StoreTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *StoreTestSuite) TestCreateAttempt() {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	a := &model.Attempt{
		ID: "a1", Kind: model.KindScheduling, Mode: model.ModeLive, Backend: "gophersat",
		Objective: model.ObjectiveFresh, State: model.StateCreated, CreatedAt: created,
	}
	s.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attempts")).
		WithArgs("a1", "scheduling", "live", "gophersat", "fresh", "", false, "",
			"created", int64(0), 0.0, int64(0), int64(0), false, "", created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s.NoError(s.store.CreateAttempt(s.ctx, a))
}

func (s *StoreTestSuite) TestGetAttempt() {
	created := time.Now().UTC()
	cols := []string{"id", "kind", "mode", "backend", "objective", "prior_attempt_id", "no_new_targets", "input",
		"state", "outcome", "score", "construct_ms", "compute_ms", "finished", "message", "created_at"}
	s.mock.ExpectQuery(regexp.QuoteMeta("FROM attempts WHERE id = $1")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a1", "matching", "offline", "cbc", "deviation", "a0", true, "data/",
			"finished", -1, 2.5, 1500, 250, true, "infeasible", created))

	a, err := s.store.GetAttempt(s.ctx, "a1")
	s.Require().NoError(err)
	s.Equal(model.KindMatching, a.Kind)
	s.Equal(model.Infeasible, a.Outcome)
	s.Equal(1500*time.Millisecond, a.ConstructTime)
	s.Equal("a0", a.PriorAttemptID)
	s.True(a.Finished)
}

func (s *StoreTestSuite) TestGetAttemptNotFound() {
	s.mock.ExpectQuery(regexp.QuoteMeta("FROM attempts WHERE id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.store.GetAttempt(s.ctx, "nope")
	s.Equal(storage.ErrNotFound, errors.Cause(err))
}

func (s *StoreTestSuite) TestUpdateMissingAttempt() {
	s.mock.ExpectExec(regexp.QuoteMeta("UPDATE attempts SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.store.UpdateAttempt(s.ctx, &model.Attempt{ID: "nope"})
	s.Equal(storage.ErrNotFound, errors.Cause(err))
}

func (s *StoreTestSuite) TestStorePlacementsWritesCurrentAndOriginal() {
	insert := regexp.QuoteMeta("INSERT INTO placements")
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM placements WHERE attempt_id = $1")).
		WithArgs("a1").WillReturnResult(sqlmock.NewResult(0, 4))
	for _, original := range []bool{false, true} {
		s.mock.ExpectExec(insert).WithArgs("a1", int64(7), model.MemberUnit, int64(1), original).
			WillReturnResult(sqlmock.NewResult(0, 1))
		s.mock.ExpectExec(insert).WithArgs("a1", int64(7), model.MemberResource, int64(9), original).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	s.mock.ExpectCommit()

	s.NoError(s.store.StorePlacements(s.ctx, "a1", []model.Placement{
		{TargetID: 7, Units: []int64{1}, Resources: []int64{9}},
	}))
}

func (s *StoreTestSuite) TestStorePlacementsRollsBack() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM placements")).
		WillReturnError(errors.New("connection reset"))
	s.mock.ExpectRollback()

	s.Error(s.store.StorePlacements(s.ctx, "a1", nil))
}

func (s *StoreTestSuite) TestPlacements() {
	s.mock.ExpectQuery(regexp.QuoteMeta("FROM placements")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"target_id", "member", "entity_id"}).
			AddRow(3, "resource", 9).
			AddRow(3, "unit", 1).
			AddRow(5, "unit", 2))

	got, err := s.store.Placements(s.ctx, "a1")
	s.Require().NoError(err)
	s.Equal([]model.Placement{
		{TargetID: 3, Units: []int64{1}, Resources: []int64{9}},
		{TargetID: 5, Units: []int64{2}},
	}, got)
}

func (s *StoreTestSuite) TestRevertToOriginal() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM placements WHERE attempt_id = $1 AND NOT original")).
		WithArgs("a1").WillReturnResult(sqlmock.NewResult(0, 2))
	s.mock.ExpectExec(regexp.QuoteMeta("SELECT attempt_id, target_id, member, entity_id, FALSE")).
		WithArgs("a1").WillReturnResult(sqlmock.NewResult(0, 2))
	s.mock.ExpectCommit()

	s.NoError(s.store.RevertToOriginal(s.ctx, "a1"))
}

func (s *StoreTestSuite) TestEnumeration() {
	s.mock.ExpectQuery(regexp.QuoteMeta("FROM enumerations WHERE attempt_id = $1")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"attempt_id", "category", "enumeration_index", "entity_key"}).
			AddRow("a1", "unit", 0, 40).
			AddRow("a1", "unit", 1, 10))

	rows, err := s.store.Enumeration(s.ctx, "a1")
	s.Require().NoError(err)
	s.Equal([]enumerate.Row{
		{AttemptID: "a1", Category: enumerate.CategoryUnit, Index: 0, EntityKey: 40},
		{AttemptID: "a1", Category: enumerate.CategoryUnit, Index: 1, EntityKey: 10},
	}, rows)
}

func (s *StoreTestSuite) TestEnumerationMissing() {
	s.mock.ExpectQuery(regexp.QuoteMeta("FROM enumerations")).
		WillReturnRows(sqlmock.NewRows([]string{"attempt_id", "category", "enumeration_index", "entity_key"}))

	_, err := s.store.Enumeration(s.ctx, "a1")
	s.Equal(storage.ErrNotFound, errors.Cause(err))
}

func (s *StoreTestSuite) TestPurgeEnumerations() {
	s.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enumerations e USING attempts a")).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := s.store.PurgeEnumerations(s.ctx)
	s.NoError(err)
	s.Equal(12, n)
}

func (s *StoreTestSuite) TestArtifact() {
	s.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO artifacts")).
		WithArgs("a1", storage.FormatLP, []byte("Minimize")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM artifacts")).
		WithArgs("a1", storage.FormatMPS).
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	s.NoError(s.store.SaveArtifact(s.ctx, "a1", storage.FormatLP, []byte("Minimize")))
	_, err := s.store.Artifact(s.ctx, "a1", storage.FormatMPS)
	s.Equal(storage.ErrNotFound, errors.Cause(err))
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
