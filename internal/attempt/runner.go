// Package attempt runs solve attempts end to end: snapshot loading, model
// construction, live or offline solving, materialization and reporting.
package attempt

import (
	"bytes"
	"context"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/internal/lp"
	"github.com/rhyrak/go-allocate/internal/materialize"
	"github.com/rhyrak/go-allocate/internal/matching"
	"github.com/rhyrak/go-allocate/internal/notify"
	"github.com/rhyrak/go-allocate/internal/objective"
	"github.com/rhyrak/go-allocate/internal/scheduler"
	"github.com/rhyrak/go-allocate/internal/solver"
	"github.com/rhyrak/go-allocate/internal/storage"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// Options configure a Runner.
type Options struct {
	Scheduling        scheduler.Options
	SchedulingWeights objective.Weights
	Matching          matching.Options
	MatchingWeights   objective.Weights

	// DefaultBackend is used for requests that name no backend.
	DefaultBackend string
	// ArtifactDir receives a copy of offline model files when set.
	ArtifactDir string
	Recipients  []mail.Address
}

// Request describes an attempt to create.
type Request struct {
	Kind           model.Kind          `json:"kind" binding:"required,oneof=scheduling matching"`
	Mode           model.Mode          `json:"mode" binding:"omitempty,oneof=live offline"`
	Backend        string              `json:"backend"`
	Objective      model.ObjectiveKind `json:"objective" binding:"omitempty,oneof=fresh deviation"`
	PriorAttemptID string              `json:"prior_attempt_id" binding:"required_if=Objective deviation"`
	NoNewTargets   bool                `json:"no_new_targets"`
	Input          string              `json:"input" binding:"required"`
}

// Runner executes attempts.
type Runner struct {
	store    storage.Store
	source   Source
	solvers  *solver.Registry
	notifier notify.Notifier
	opts     Options
	metrics  *Metrics
	validate *validator.Validate

	running int64
}

func NewRunner(store storage.Store, source Source, solvers *solver.Registry, notifier notify.Notifier, opts Options, scope tally.Scope) *Runner {
	v := validator.New()
	v.SetTagName("binding")
	return &Runner{
		store:    store,
		source:   source,
		solvers:  solvers,
		notifier: notifier,
		opts:     opts,
		metrics:  NewMetrics(scope),
		validate: v,
	}
}

// Metrics returns the runner's metrics.
func (r *Runner) Metrics() *Metrics { return r.metrics }

// Create validates req and stores a new attempt in the created state.
func (r *Runner) Create(ctx context.Context, req Request) (*model.Attempt, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, errors.Wrap(err, "invalid request")
	}
	a := &model.Attempt{
		ID:             uuid.New().String(),
		Kind:           req.Kind,
		Mode:           req.Mode,
		Backend:        req.Backend,
		Objective:      req.Objective,
		PriorAttemptID: req.PriorAttemptID,
		NoNewTargets:   req.NoNewTargets,
		Input:          req.Input,
		State:          model.StateCreated,
		CreatedAt:      time.Now().UTC(),
	}
	if a.Mode == "" {
		a.Mode = model.ModeLive
	}
	if a.Objective == "" {
		a.Objective = model.ObjectiveFresh
	}
	if a.Backend == "" {
		a.Backend = r.opts.DefaultBackend
	}
	if a.Mode == model.ModeLive {
		if _, err := r.solvers.Get(a.Backend); err != nil {
			return nil, err
		}
	}
	if a.Objective == model.ObjectiveDeviation {
		prior, err := r.store.GetAttempt(ctx, a.PriorAttemptID)
		if err != nil {
			return nil, errors.Wrap(err, "prior attempt")
		}
		if prior.Kind != a.Kind {
			return nil, errors.Errorf("prior attempt %s is a %s attempt", prior.ID, prior.Kind)
		}
	}
	if err := r.store.CreateAttempt(ctx, a); err != nil {
		return nil, err
	}
	r.metrics.Created.Inc(1)
	log.WithFields(log.Fields{
		"attempt_id": a.ID,
		"kind":       a.Kind,
		"mode":       a.Mode,
		"objective":  a.Objective,
	}).Info("attempt created")
	return a, nil
}

// Run solves a live attempt or prepares the model files of an offline one.
// Errors satisfying IsRetryable leave the attempt unfinished.
func (r *Runner) Run(ctx context.Context, id string) error {
	a, err := r.store.GetAttempt(ctx, id)
	if err != nil {
		return err
	}
	if a.Finished {
		return model.ErrAttemptFinished
	}
	if err := a.Begin(); err != nil {
		return err
	}
	if err := r.store.UpdateAttempt(ctx, a); err != nil {
		return err
	}

	r.metrics.Running.Update(float64(atomic.AddInt64(&r.running, 1)))
	defer func() {
		r.metrics.Running.Update(float64(atomic.AddInt64(&r.running, -1)))
	}()

	if a.Mode == model.ModeOffline {
		return r.prepare(ctx, a)
	}
	return r.solve(ctx, a)
}

// construct builds the model of p over e, or over a fresh enumeration when e
// is nil.
func (r *Runner) construct(ctx context.Context, a *model.Attempt, p *problem, e *enumerate.Enumeration) (*built, error) {
	if e == nil {
		e = p.enumerate()
	}
	cost, err := r.cost(ctx, a, p.weights, e)
	if err != nil {
		return nil, err
	}
	b, err := p.build(e, cost)
	if err != nil {
		if errors.Is(err, enumerate.ErrMismatch) {
			return nil, err
		}
		return nil, errors.Wrap(err, "building model")
	}
	units, resources, targets := p.sizes()
	log.WithFields(log.Fields{
		"attempt_id":  a.ID,
		"kind":        a.Kind,
		"objective":   cost.Name(),
		"units":       units,
		"resources":   resources,
		"targets":     targets,
		"variables":   b.model.NumVars(),
		"constraints": b.model.NumConstraints(),
	}).Info("model built")
	for _, w := range b.warnings {
		log.WithField("attempt_id", a.ID).Warn(w)
	}
	return b, nil
}

// load reads the snapshot of a and builds its model over a fresh enumeration.
// Entities that reference missing data are reported as unavailable data.
func (r *Runner) load(ctx context.Context, a *model.Attempt) (*problem, *built, error) {
	p, err := r.problem(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	b, err := r.construct(ctx, a, p, nil)
	if err != nil {
		if errors.Is(err, enumerate.ErrMismatch) {
			return nil, nil, errors.Wrap(ErrDataUnavailable, err.Error())
		}
		return nil, nil, err
	}
	return p, b, nil
}

func (r *Runner) cost(ctx context.Context, a *model.Attempt, w objective.Weights, e *enumerate.Enumeration) (objective.CostModel, error) {
	if a.Objective != model.ObjectiveDeviation {
		return &objective.Fresh{Weights: w}, nil
	}
	placements, err := r.store.Placements(ctx, a.PriorAttemptID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.Wrapf(ErrDataUnavailable, "placements of prior attempt %s", a.PriorAttemptID)
		}
		return nil, err
	}
	prior, skipped := objective.NewPrior(e, placements)
	if skipped > 0 {
		log.WithFields(log.Fields{
			"attempt_id": a.ID,
			"prior":      a.PriorAttemptID,
			"skipped":    skipped,
		}).Warn("prior placements reference entities missing from the snapshot")
	}
	return &objective.Deviation{Weights: w, Prior: prior, Pin: a.NoNewTargets}, nil
}

func (r *Runner) solve(ctx context.Context, a *model.Attempt) error {
	start := time.Now()
	p, b, err := r.load(ctx, a)
	if err != nil {
		return err
	}
	constructTime := time.Since(start)

	adapter, err := r.solvers.Get(a.Backend)
	if err != nil {
		return err
	}
	start = time.Now()
	res, err := adapter.Solve(ctx, b.model)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"attempt_id": a.ID,
			"backend":    adapter.Name(),
		}).Error("solver backend failed")
		return err
	}
	return r.finish(ctx, a, p, b, res, constructTime, time.Since(start))
}

// finish classifies res, stores placements of optimal results and records the
// terminal state of a.
func (r *Runner) finish(ctx context.Context, a *model.Attempt, p *problem, b *built, res *solver.Result, constructTime, computeTime time.Duration) error {
	rep := materialize.Report{
		Outcome:       solver.Classify(res.Status),
		ConstructTime: constructTime,
		ComputeTime:   computeTime,
	}
	msgs := append([]string(nil), b.warnings...)
	if res.Message != "" {
		msgs = append(msgs, res.Message)
	}
	if rep.Outcome == model.Optimal {
		placements, score, err := materialize.Materialize(ctx, r.store, a.ID, b.model, b.vars, b.enum, res.Solution)
		if err != nil {
			return err
		}
		rep.Score = score
		ok, report := p.validate(b.enum, placements)
		if !ok {
			log.WithField("attempt_id", a.ID).Warn("placements failed validation")
		}
		msgs = append(msgs, report)
	}
	rep.Message = strings.Join(msgs, "\n")
	if err := rep.Apply(a); err != nil {
		return err
	}
	return r.record(ctx, a)
}

// record persists a finished attempt, then reports it.
func (r *Runner) record(ctx context.Context, a *model.Attempt) error {
	if err := r.store.UpdateAttempt(ctx, a); err != nil {
		return err
	}
	r.metrics.Outcome(a.Outcome).Inc(1)
	r.metrics.ConstructTime.Record(a.ConstructTime)
	r.metrics.ComputeTime.Record(a.ComputeTime)
	log.WithFields(log.Fields{
		"attempt_id":     a.ID,
		"outcome":        a.Outcome,
		"score":          a.Score,
		"construct_time": a.ConstructTime,
		"compute_time":   a.ComputeTime,
	}).Info("attempt finished")
	r.notify(ctx, a, notify.Finished(a, r.opts.Recipients))
	return nil
}

func (r *Runner) notify(ctx context.Context, a *model.Attempt, msg *notify.Message) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, msg); err != nil {
		log.WithError(err).WithField("attempt_id", a.ID).Error("notification failed")
	}
}

// prepare writes the LP and MPS files of an offline attempt and keeps its
// enumeration for the solution upload.
func (r *Runner) prepare(ctx context.Context, a *model.Attempt) error {
	start := time.Now()
	_, b, err := r.load(ctx, a)
	if err != nil {
		return err
	}

	var lpBuf, mpsBuf bytes.Buffer
	if err := lp.WriteLP(&lpBuf, b.model); err != nil {
		return errors.Wrap(err, "writing lp")
	}
	if err := lp.WriteMPS(&mpsBuf, b.model); err != nil {
		return errors.Wrap(err, "writing mps")
	}
	if err := r.store.SaveEnumeration(ctx, a.ID, b.enum.Rows(a.ID)); err != nil {
		return err
	}
	if err := r.store.SaveArtifact(ctx, a.ID, storage.FormatLP, lpBuf.Bytes()); err != nil {
		return err
	}
	if err := r.store.SaveArtifact(ctx, a.ID, storage.FormatMPS, mpsBuf.Bytes()); err != nil {
		return err
	}
	if r.opts.ArtifactDir != "" {
		if err := r.writeArtifacts(a.ID, lpBuf.Bytes(), mpsBuf.Bytes()); err != nil {
			return err
		}
	}

	a.ConstructTime = time.Since(start)
	if err := r.store.UpdateAttempt(ctx, a); err != nil {
		return err
	}
	r.metrics.Prepared.Inc(1)
	log.WithFields(log.Fields{
		"attempt_id": a.ID,
		"lp_bytes":   lpBuf.Len(),
		"mps_bytes":  mpsBuf.Len(),
	}).Info("offline model prepared")
	r.notify(ctx, a, notify.Prepared(a, r.opts.Recipients, lpBuf.Bytes(), mpsBuf.Bytes()))
	return nil
}

func (r *Runner) writeArtifacts(id string, lpData, mpsData []byte) error {
	if err := os.MkdirAll(r.opts.ArtifactDir, 0o755); err != nil {
		return errors.Wrap(err, "creating artifact directory")
	}
	for ext, data := range map[string][]byte{storage.FormatLP: lpData, storage.FormatMPS: mpsData} {
		path := filepath.Join(r.opts.ArtifactDir, id+"."+ext)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	return nil
}

// ImportSolution reads a solution file for a prepared offline attempt and
// finishes the attempt. Files that do not fit the stored model finish the
// attempt with an undefined outcome.
func (r *Runner) ImportSolution(ctx context.Context, id string, solution io.Reader) (*model.Attempt, error) {
	a, err := r.store.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case a.Mode != model.ModeOffline:
		return nil, ErrNotOffline
	case a.Finished:
		return nil, model.ErrAttemptFinished
	case a.State != model.StateSolving:
		return nil, ErrNotPrepared
	}

	start := time.Now()
	rows, err := r.store.Enumeration(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return a, r.abort(ctx, a, model.Undefined, "the enumeration of this attempt is gone, prepare a new attempt")
		}
		return nil, err
	}
	e, err := enumerate.Replay(rows)
	if err != nil {
		return a, r.abort(ctx, a, model.Undefined, err.Error())
	}
	p, err := r.problem(ctx, a)
	if err != nil {
		return nil, err
	}
	if err := e.Check(p.ids()); err != nil {
		return a, r.abort(ctx, a, model.Undefined, err.Error())
	}
	b, err := r.construct(ctx, a, p, e)
	if err != nil {
		if errors.Is(err, enumerate.ErrMismatch) {
			return a, r.abort(ctx, a, model.Undefined, err.Error())
		}
		return nil, err
	}
	constructTime := time.Since(start)

	start = time.Now()
	res := solver.Import(solution, b.model)
	if err := r.finish(ctx, a, p, b, res, constructTime, time.Since(start)); err != nil {
		return nil, err
	}
	r.metrics.Imported.Inc(1)
	r.dropEnumeration(ctx, id)
	return a, nil
}

// abort finishes a without placements.
func (r *Runner) abort(ctx context.Context, a *model.Attempt, outcome model.Outcome, message string) error {
	if a.State != model.StateSolving {
		if err := a.Begin(); err != nil {
			return err
		}
	}
	if err := a.Finish(outcome, message); err != nil {
		return err
	}
	if err := r.record(ctx, a); err != nil {
		return err
	}
	r.dropEnumeration(ctx, a.ID)
	return nil
}

func (r *Runner) dropEnumeration(ctx context.Context, id string) {
	if err := r.store.DeleteEnumeration(ctx, id); err != nil {
		log.WithError(err).WithField("attempt_id", id).Warn("deleting enumeration failed")
	}
}

// Abandon finishes an attempt that could not be run with an undefined
// outcome and cause as its message. Finished attempts are left untouched.
func (r *Runner) Abandon(ctx context.Context, id string, cause error) error {
	a, err := r.store.GetAttempt(ctx, id)
	if err != nil {
		return err
	}
	if a.Finished {
		return nil
	}
	r.metrics.Abandoned.Inc(1)
	return r.abort(ctx, a, model.Undefined, cause.Error())
}

// Revert restores the placements an attempt was solved with.
func (r *Runner) Revert(ctx context.Context, id string) error {
	return r.store.RevertToOriginal(ctx, id)
}

// Purge deletes enumerations no finished attempt needs anymore.
func (r *Runner) Purge(ctx context.Context) (int, error) {
	n, err := r.store.PurgeEnumerations(ctx)
	if err != nil {
		return 0, err
	}
	log.WithField("purged", n).Info("enumerations purged")
	return n, nil
}
