package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhyrak/go-allocate/internal/app"
	"github.com/rhyrak/go-allocate/internal/config"
	"github.com/rhyrak/go-allocate/internal/csvio"
	"github.com/rhyrak/go-allocate/pkg/model"
)

var snapshotFiles = map[string]string{
	csvio.TalksFile:     "talk_id,period_id,group_id,dont_clash,supervisor_id\n10,1,10,false,0\n11,1,11,false,0\n",
	csvio.PoolFile:      "talk_id,assessor_id\n10,100\n11,100\n",
	csvio.AssessorsFile: "assessor_id,assigned_limit,enrolled\n100,,true\n",
	csvio.SessionsFile:  "session_id,label\n1,Mon AM\n",
	csvio.RoomsFile:     "room_id,name,occupancy,facilities\n1,Hall,1,0\n",
	csvio.PeriodsFile:   "period_id,required_resources,max_occupancy,facilities,supervising_cats,marking_cats\n1,1,2,0,0,0\n",
}

func newClient(t *testing.T) (*client, *bytes.Buffer, string) {
	dir := t.TempDir()
	for name, content := range snapshotFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	cfg := config.NewDefaultConfiguration()
	cfg.Notify.Kind = "none"
	a, err := app.New(cfg, "/")
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	out := &bytes.Buffer{}
	return &client{app: a, out: out}, out, dir
}

func TestSolveActionWritesPlacements(t *testing.T) {
	c, out, dir := newClient(t)
	path := filepath.Join(t.TempDir(), "placements.csv")

	require.NoError(t, c.solveAction(context.Background(), model.KindScheduling, dir, solveOptions{out: path}))
	assert.Contains(t, out.String(), "Outcome: optimal")
	assert.Contains(t, out.String(), "Printed targets: 1")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	placements, err := csvio.LoadPlacements(f)
	require.NoError(t, err)
	require.Len(t, placements, 1)
	assert.ElementsMatch(t, []int64{10, 11}, placements[0].Units)
	assert.Equal(t, []int64{100}, placements[0].Resources)
}

func TestSolveActionDeviationFromFile(t *testing.T) {
	c, out, dir := newClient(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prior.csv")

	require.NoError(t, c.solveAction(ctx, model.KindScheduling, dir, solveOptions{out: path}))
	out.Reset()
	require.NoError(t, c.solveAction(ctx, model.KindScheduling, dir, solveOptions{priorFile: path, pin: true}))
	assert.Contains(t, out.String(), "deviation")
	assert.Contains(t, out.String(), "Score: 0")

	attempts, err := c.app.Store.ListAttempts(ctx)
	require.NoError(t, err)
	assert.Len(t, attempts, 3)
}

func TestSolveActionUnknownPrior(t *testing.T) {
	c, _, dir := newClient(t)

	err := c.solveAction(context.Background(), model.KindScheduling, dir, solveOptions{prior: "missing"})
	assert.Error(t, err)
}

func TestExportAction(t *testing.T) {
	c, out, dir := newClient(t)
	outDir := filepath.Join(t.TempDir(), "models")

	require.NoError(t, c.exportAction(context.Background(), model.KindScheduling, dir, outDir))
	assert.Contains(t, out.String(), "Attempt: ")

	lpFiles, err := filepath.Glob(filepath.Join(outDir, "*.lp"))
	require.NoError(t, err)
	assert.Len(t, lpFiles, 1)
	mpsFiles, err := filepath.Glob(filepath.Join(outDir, "*.mps"))
	require.NoError(t, err)
	assert.Len(t, mpsFiles, 1)

	enumFiles, err := filepath.Glob(filepath.Join(outDir, "*-"+csvio.EnumerationFile))
	require.NoError(t, err)
	require.Len(t, enumFiles, 1)
	f, err := os.Open(enumFiles[0])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csvio.LoadEnumeration(f)
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestImportActionSeedsOfflineAttempt(t *testing.T) {
	c, out, dir := newClient(t)
	ctx := context.Background()
	outDir := t.TempDir()
	require.NoError(t, c.exportAction(ctx, model.KindScheduling, dir, outDir))
	enumFiles, err := filepath.Glob(filepath.Join(outDir, "*-"+csvio.EnumerationFile))
	require.NoError(t, err)
	require.Len(t, enumFiles, 1)

	solution := filepath.Join(outDir, "solution.sol")
	require.NoError(t, os.WriteFile(solution, []byte("not a solution\n"), 0o644))

	out.Reset()
	require.NoError(t, c.importAction(ctx, solution, importOptions{
		kind:        model.KindScheduling,
		input:       dir,
		enumeration: enumFiles[0],
	}))
	assert.Contains(t, out.String(), "offline")
	assert.Contains(t, out.String(), "Outcome: undefined")
	assert.Contains(t, out.String(), "Printed targets: 0")
}

func TestImportActionNeedsAttemptOrSeed(t *testing.T) {
	c, _, _ := newClient(t)

	err := c.importAction(context.Background(), "solution.sol", importOptions{kind: model.KindMatching})
	assert.EqualError(t, err, "import needs --attempt, or --kind, --input and --enumeration")
}

func TestPurgeRevertShow(t *testing.T) {
	c, out, dir := newClient(t)
	ctx := context.Background()
	require.NoError(t, c.solveAction(ctx, model.KindScheduling, dir, solveOptions{}))

	attempts, err := c.app.Store.ListAttempts(ctx)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	id := attempts[0].ID

	out.Reset()
	require.NoError(t, c.revertAction(ctx, id))
	assert.Equal(t, "Reverted "+id+"\n", out.String())

	out.Reset()
	require.NoError(t, c.purgeAction(ctx))
	assert.Contains(t, out.String(), "Purged enumerations: ")

	out.Reset()
	require.NoError(t, c.showAction(ctx, id, ""))
	assert.Contains(t, out.String(), "Attempt: "+id+" (scheduling, live, fresh)")

	assert.Error(t, c.showAction(ctx, "missing", ""))
}
