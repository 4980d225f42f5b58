package lp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSolutionCBC(t *testing.T) {
	in := `Optimal - objective value 3.00000000
      0 X_0_0                    1                       1
      1 X_0_1                    0                       2
**    2 count                    3                       0
`
	f, err := ReadSolution(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "cbc", f.Format)
	assert.Equal(t, StatusOptimal, f.Status)
	assert.True(t, f.HasObjective)
	assert.Equal(t, 3.0, f.Objective)
	assert.Equal(t, map[string]float64{"X_0_0": 1, "X_0_1": 0, "count": 3}, f.Values)
}

func TestReadSolutionCBCStatuses(t *testing.T) {
	tests := map[string]Status{
		"Infeasible - objective value 0.00000000":         StatusInfeasible,
		"Integer infeasible - objective value 0.00000000": StatusInfeasible,
		"Unbounded - objective value 0.00000000":          StatusUnbounded,
		"Stopped on time - objective value 4.00000000":    StatusStopped,
		"Something odd":                                   StatusUnknown,
	}
	for header, want := range tests {
		f, err := ReadSolution(strings.NewReader(header + "\n"))
		require.NoError(t, err, header)
		assert.Equal(t, want, f.Status, header)
	}
}

func TestReadSolutionGurobi(t *testing.T) {
	in := "# Solution for model sample\n# Objective value = 2\nX_0_0 0\nX_0_1 1\n"
	f, err := ReadSolution(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "gurobi", f.Format)
	assert.Equal(t, StatusOptimal, f.Status)
	assert.Equal(t, 2.0, f.Objective)
	assert.Equal(t, 1.0, f.Values["X_0_1"])
}

func TestReadSolutionSCIP(t *testing.T) {
	in := "solution status: optimal solution found\nobjective value: 1\nX_0_0 1 \t(obj:1)\n"
	f, err := ReadSolution(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "scip", f.Format)
	assert.Equal(t, StatusOptimal, f.Status)
	assert.Equal(t, 1.0, f.Values["X_0_0"])

	f, err = ReadSolution(strings.NewReader("solution status: time limit reached\nno solution available\n"))
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, f.Status)
}

func TestReadSolutionMalformed(t *testing.T) {
	_, err := ReadSolution(strings.NewReader(""))
	assert.Equal(t, ErrMalformedSolution, errors.Cause(err))

	_, err = ReadSolution(strings.NewReader("Optimal - objective value 1\n  0 X_0_0 one 0\n"))
	assert.Equal(t, ErrMalformedSolution, errors.Cause(err))

	_, err = ReadSolution(strings.NewReader("Optimal - objective value 1\ngarbage\n"))
	assert.Equal(t, ErrMalformedSolution, errors.Cause(err))
}

func TestBindUnknownVariable(t *testing.T) {
	m := sampleModel()
	f := &SolutionFile{Values: map[string]float64{"X_9_9": 1}}
	_, err := f.Bind(m)
	assert.Equal(t, ErrUnknownVariable, errors.Cause(err))
}

func TestWriteSolutionRoundTrip(t *testing.T) {
	m := sampleModel()
	sol := NewSolution(m.NumVars())
	sol.Values[0] = 1
	sol.Values[2] = 3

	var buf bytes.Buffer
	require.NoError(t, WriteSolution(&buf, m, "Optimal", sol))

	f, err := ReadSolution(&buf)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, f.Status)
	assert.Equal(t, 1.0, f.Objective)

	got, err := f.Bind(m)
	require.NoError(t, err)
	assert.Equal(t, sol.Values, got.Values)
}
