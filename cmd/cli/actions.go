package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rhyrak/go-allocate/internal/app"
	"github.com/rhyrak/go-allocate/internal/attempt"
	"github.com/rhyrak/go-allocate/internal/csvio"
	"github.com/rhyrak/go-allocate/internal/storage"
	"github.com/rhyrak/go-allocate/pkg/model"
)

type client struct {
	app *app.App
	out io.Writer
}

type solveOptions struct {
	backend   string
	prior     string
	priorFile string
	pin       bool
	out       string
}

type importOptions struct {
	attemptID   string
	kind        model.Kind
	input       string
	enumeration string
	out         string
}

// run runs attempt id under the configured retry policy and records it as
// failed when that does not succeed.
func (c *client) run(ctx context.Context, id string) error {
	err := attempt.Retry(ctx, c.app.RetryPolicy(), func() error {
		return c.app.Runner.Run(ctx, id)
	})
	if err != nil {
		if aerr := c.app.Runner.Abandon(ctx, id, err); aerr != nil {
			return errors.Wrap(aerr, err.Error())
		}
		return err
	}
	return nil
}

func (c *client) solveAction(ctx context.Context, kind model.Kind, input string, opts solveOptions) error {
	abs, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	req := attempt.Request{Kind: kind, Input: abs, Backend: opts.backend, NoNewTargets: opts.pin}
	switch {
	case opts.priorFile != "":
		id, err := c.seedPrior(ctx, kind, opts.priorFile)
		if err != nil {
			return err
		}
		req.Objective, req.PriorAttemptID = model.ObjectiveDeviation, id
	case opts.prior != "":
		req.Objective, req.PriorAttemptID = model.ObjectiveDeviation, opts.prior
	}

	a, err := c.app.Runner.Create(ctx, req)
	if err != nil {
		return err
	}
	if err := c.run(ctx, a.ID); err != nil {
		return err
	}
	return c.showAction(ctx, a.ID, opts.out)
}

// seedPrior stores the placements of file as a finished attempt.
func (c *client) seedPrior(ctx context.Context, kind model.Kind, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()
	placements, err := csvio.LoadPlacements(f)
	if err != nil {
		return "", err
	}

	a := &model.Attempt{
		ID:        uuid.New().String(),
		Kind:      kind,
		Mode:      model.ModeLive,
		Objective: model.ObjectiveFresh,
		Input:     file,
		State:     model.StateCreated,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.app.Store.CreateAttempt(ctx, a); err != nil {
		return "", err
	}
	if err := c.app.Store.StorePlacements(ctx, a.ID, placements); err != nil {
		return "", err
	}
	if err := a.Begin(); err != nil {
		return "", err
	}
	if err := a.Finish(model.Optimal, "placements read from "+file); err != nil {
		return "", err
	}
	return a.ID, c.app.Store.UpdateAttempt(ctx, a)
}

func (c *client) exportAction(ctx context.Context, kind model.Kind, input, outDir string) error {
	abs, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	a, err := c.app.Runner.Create(ctx, attempt.Request{Kind: kind, Mode: model.ModeOffline, Input: abs})
	if err != nil {
		return err
	}
	if err := c.run(ctx, a.ID); err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, format := range []string{storage.FormatLP, storage.FormatMPS} {
		data, err := c.app.Store.Artifact(ctx, a.ID, format)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(outDir, a.ID+"."+format), data, 0o644); err != nil {
			return err
		}
	}
	rows, err := c.app.Store.Enumeration(ctx, a.ID)
	if err != nil {
		return err
	}
	enumPath := filepath.Join(outDir, a.ID+"-"+csvio.EnumerationFile)
	f, err := os.Create(enumPath)
	if err != nil {
		return err
	}
	if err := csvio.WriteEnumeration(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Attempt: %s\nModel files: %s.{lp,mps}\nEnumeration: %s\n", a.ID, filepath.Join(outDir, a.ID), enumPath)
	return nil
}

func (c *client) importAction(ctx context.Context, solution string, opts importOptions) error {
	id := opts.attemptID
	if id == "" {
		var err error
		if id, err = c.seedOffline(ctx, opts); err != nil {
			return err
		}
	}
	f, err := os.Open(solution)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := c.app.Runner.ImportSolution(ctx, id, f); err != nil {
		return err
	}
	return c.showAction(ctx, id, opts.out)
}

// seedOffline recreates a prepared offline attempt from an exported
// enumeration, for stores that do not outlive the process.
func (c *client) seedOffline(ctx context.Context, opts importOptions) (string, error) {
	if opts.kind == "" || opts.input == "" || opts.enumeration == "" {
		return "", errors.New("import needs --attempt, or --kind, --input and --enumeration")
	}
	abs, err := filepath.Abs(opts.input)
	if err != nil {
		return "", err
	}
	f, err := os.Open(opts.enumeration)
	if err != nil {
		return "", err
	}
	defer f.Close()
	rows, err := csvio.LoadEnumeration(f)
	if err != nil {
		return "", err
	}

	a := &model.Attempt{
		ID:        uuid.New().String(),
		Kind:      opts.kind,
		Mode:      model.ModeOffline,
		Objective: model.ObjectiveFresh,
		Input:     abs,
		State:     model.StateCreated,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.Begin(); err != nil {
		return "", err
	}
	if err := c.app.Store.CreateAttempt(ctx, a); err != nil {
		return "", err
	}
	for i := range rows {
		rows[i].AttemptID = a.ID
	}
	return a.ID, c.app.Store.SaveEnumeration(ctx, a.ID, rows)
}

func (c *client) purgeAction(ctx context.Context) error {
	n, err := c.app.Runner.Purge(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Purged enumerations: %d\n", n)
	return nil
}

func (c *client) revertAction(ctx context.Context, id string) error {
	if err := c.app.Runner.Revert(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Reverted %s\n", id)
	return nil
}

// showAction prints attempt id and its placements, and writes them to out
// when set.
func (c *client) showAction(ctx context.Context, id, out string) error {
	a, err := c.app.Store.GetAttempt(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Attempt: %s (%s, %s, %s)\n", a.ID, a.Kind, a.Mode, a.Objective)
	fmt.Fprintf(c.out, "Outcome: %s\n", a.Outcome)
	if a.Outcome == model.Optimal {
		fmt.Fprintf(c.out, "Score: %g\n", a.Score)
	}
	fmt.Fprintf(c.out, "Construct time: %s\nCompute time: %s\n", a.ConstructTime, a.ComputeTime)
	if a.Message != "" {
		fmt.Fprintln(c.out, a.Message)
	}

	placements, err := c.app.Store.Placements(ctx, id)
	if err != nil {
		return err
	}
	csvio.PrintPlacements(c.out, placements)
	if out != "" {
		if err := csvio.ExportPlacements(placements, out); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Placements written to %s\n", out)
	}
	return nil
}
