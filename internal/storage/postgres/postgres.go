// Package postgres is a Store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/internal/storage"
	"github.com/rhyrak/go-allocate/pkg/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// Open connects to dsn and waits for the database to answer.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := ping(db); err != nil {
		return nil, err
	}
	return New(db), nil
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
	var err error
	for attempts := 1; attempts <= 30; attempts++ {
		if err = db.Ping(); err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}
	return errors.Wrap(err, "DB ping timeout")
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting dialect")
	}
	if err := goose.Up(s.db.DB, "migrations"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

type attemptRow struct {
	ID             string    `db:"id"`
	Kind           string    `db:"kind"`
	Mode           string    `db:"mode"`
	Backend        string    `db:"backend"`
	Objective      string    `db:"objective"`
	PriorAttemptID string    `db:"prior_attempt_id"`
	NoNewTargets   bool      `db:"no_new_targets"`
	Input          string    `db:"input"`
	State          string    `db:"state"`
	Outcome        int       `db:"outcome"`
	Score          float64   `db:"score"`
	ConstructMS    int64     `db:"construct_ms"`
	ComputeMS      int64     `db:"compute_ms"`
	Finished       bool      `db:"finished"`
	Message        string    `db:"message"`
	CreatedAt      time.Time `db:"created_at"`
}

func toRow(a *model.Attempt) attemptRow {
	return attemptRow{
		ID: a.ID, Kind: string(a.Kind), Mode: string(a.Mode), Backend: a.Backend,
		Objective: string(a.Objective), PriorAttemptID: a.PriorAttemptID,
		NoNewTargets: a.NoNewTargets, Input: a.Input, State: string(a.State),
		Outcome: int(a.Outcome), Score: a.Score,
		ConstructMS: a.ConstructTime.Milliseconds(), ComputeMS: a.ComputeTime.Milliseconds(),
		Finished: a.Finished, Message: a.Message, CreatedAt: a.CreatedAt,
	}
}

func (r attemptRow) attempt() *model.Attempt {
	return &model.Attempt{
		ID: r.ID, Kind: model.Kind(r.Kind), Mode: model.Mode(r.Mode), Backend: r.Backend,
		Objective: model.ObjectiveKind(r.Objective), PriorAttemptID: r.PriorAttemptID,
		NoNewTargets: r.NoNewTargets, Input: r.Input, State: model.State(r.State),
		Outcome: model.Outcome(r.Outcome), Score: r.Score,
		ConstructTime: time.Duration(r.ConstructMS) * time.Millisecond,
		ComputeTime:   time.Duration(r.ComputeMS) * time.Millisecond,
		Finished:      r.Finished, Message: r.Message, CreatedAt: r.CreatedAt,
	}
}

const attemptColumns = `id, kind, mode, backend, objective, prior_attempt_id, no_new_targets, input,
	state, outcome, score, construct_ms, compute_ms, finished, message, created_at`

func (s *Store) CreateAttempt(ctx context.Context, a *model.Attempt) error {
	r := toRow(a)
	_, err := s.db.ExecContext(ctx, `INSERT INTO attempts (`+attemptColumns+`)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ID, r.Kind, r.Mode, r.Backend, r.Objective, r.PriorAttemptID, r.NoNewTargets, r.Input,
		r.State, r.Outcome, r.Score, r.ConstructMS, r.ComputeMS, r.Finished, r.Message, r.CreatedAt)
	return errors.Wrap(err, "inserting attempt")
}

func (s *Store) UpdateAttempt(ctx context.Context, a *model.Attempt) error {
	r := toRow(a)
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET state = $2, outcome = $3, score = $4,
	construct_ms = $5, compute_ms = $6, finished = $7, message = $8 WHERE id = $1`,
		r.ID, r.State, r.Outcome, r.Score, r.ConstructMS, r.ComputeMS, r.Finished, r.Message)
	if err != nil {
		return errors.Wrap(err, "updating attempt")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrap(storage.ErrNotFound, a.ID)
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, id string) (*model.Attempt, error) {
	var r attemptRow
	err := s.db.GetContext(ctx, &r, `SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "selecting attempt")
	}
	return r.attempt(), nil
}

func (s *Store) ListAttempts(ctx context.Context) ([]*model.Attempt, error) {
	var rows []attemptRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+attemptColumns+` FROM attempts ORDER BY created_at, id`); err != nil {
		return nil, errors.Wrap(err, "selecting attempts")
	}
	out := make([]*model.Attempt, len(rows))
	for i, r := range rows {
		out[i] = r.attempt()
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (s *Store) StorePlacements(ctx context.Context, id string, placements []model.Placement) error {
	rows := model.FlattenPlacements(placements)
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM placements WHERE attempt_id = $1`, id); err != nil {
			return errors.Wrap(err, "clearing placements")
		}
		for _, original := range []bool{false, true} {
			for _, r := range rows {
				if _, err := tx.ExecContext(ctx, `INSERT INTO placements (attempt_id, target_id, member, entity_id, original)
	VALUES ($1, $2, $3, $4, $5)`, id, r.TargetID, r.Member, r.EntityID, original); err != nil {
					return errors.Wrap(err, "inserting placement")
				}
			}
		}
		return nil
	})
}

func (s *Store) Placements(ctx context.Context, id string) ([]model.Placement, error) {
	var rows []*model.PlacementCSV
	err := s.db.SelectContext(ctx, &rows, `SELECT target_id, member, entity_id FROM placements
	WHERE attempt_id = $1 AND NOT original ORDER BY target_id, member, entity_id`, id)
	if err != nil {
		return nil, errors.Wrap(err, "selecting placements")
	}
	return model.GroupPlacements(rows), nil
}

func (s *Store) RevertToOriginal(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM placements WHERE attempt_id = $1 AND NOT original`, id); err != nil {
			return errors.Wrap(err, "clearing placements")
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO placements (attempt_id, target_id, member, entity_id, original)
	SELECT attempt_id, target_id, member, entity_id, FALSE FROM placements WHERE attempt_id = $1 AND original`, id)
		return errors.Wrap(err, "restoring placements")
	})
}

func (s *Store) SaveEnumeration(ctx context.Context, id string, rows []enumerate.Row) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM enumerations WHERE attempt_id = $1`, id); err != nil {
			return errors.Wrap(err, "clearing enumeration")
		}
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx, `INSERT INTO enumerations (attempt_id, category, enumeration_index, entity_key)
	VALUES ($1, $2, $3, $4)`, id, string(r.Category), r.Index, r.EntityKey); err != nil {
				return errors.Wrap(err, "inserting enumeration")
			}
		}
		return nil
	})
}

func (s *Store) Enumeration(ctx context.Context, id string) ([]enumerate.Row, error) {
	var rows []enumerate.Row
	err := s.db.SelectContext(ctx, &rows, `SELECT attempt_id, category, enumeration_index, entity_key
	FROM enumerations WHERE attempt_id = $1 ORDER BY category, enumeration_index`, id)
	if err != nil {
		return nil, errors.Wrap(err, "selecting enumeration")
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(storage.ErrNotFound, "enumeration of %s", id)
	}
	return rows, nil
}

func (s *Store) DeleteEnumeration(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM enumerations WHERE attempt_id = $1`, id)
	return errors.Wrap(err, "deleting enumeration")
}

func (s *Store) PurgeEnumerations(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM enumerations e USING attempts a
	WHERE e.attempt_id = a.id AND a.finished`)
	if err != nil {
		return 0, errors.Wrap(err, "purging enumerations")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "purging enumerations")
}

func (s *Store) SaveArtifact(ctx context.Context, id, format string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO artifacts (attempt_id, format, data) VALUES ($1, $2, $3)
	ON CONFLICT (attempt_id, format) DO UPDATE SET data = EXCLUDED.data`, id, format, data)
	return errors.Wrap(err, "saving artifact")
}

func (s *Store) Artifact(ctx context.Context, id, format string) ([]byte, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `SELECT data FROM artifacts WHERE attempt_id = $1 AND format = $2`, id, format)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(storage.ErrNotFound, "%s artifact of %s", format, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "selecting artifact")
	}
	return data, nil
}
