package lp

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModel() *Model {
	m := NewModel("sample")
	x := m.AddBinary("X_0_0")
	y := m.AddBinary("X_0_1")
	n := m.AddVar("count", Integer, 0, 4)
	a := m.AddVar("amax", Continuous, 0, math.Inf(1))

	obj := Sum(x)
	obj.Add(y, 2).Add(a, -1)
	m.SetObjective(obj)

	m.AddConstraint("assign", Sum(x, y), Equal, 1)
	e := Sum(n)
	e.Add(x, -3)
	m.AddConstraint("link", e, GreaterEqual, 0)
	m.AddConstraint("cap", Sum(a), LessEqual, 10)
	return m
}

func TestWriteLP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLP(&buf, sampleModel()))
	out := buf.String()

	assert.Contains(t, out, "Minimize\nOBJ: X_0_0 + 2 X_0_1 - amax\n")
	assert.Contains(t, out, "assign: X_0_0 + X_0_1 = 1\n")
	assert.Contains(t, out, "link: - 3 X_0_0 + count >= 0\n")
	assert.Contains(t, out, " 0 <= count <= 4\n")
	assert.Contains(t, out, "Generals\ncount\n")
	assert.Contains(t, out, "Binaries\nX_0_0 X_0_1\n")
	assert.NotContains(t, out, dummyVar)
	assert.True(t, strings.HasSuffix(out, "End\n"))
}

func TestWriteLPEmptyRowUsesDummy(t *testing.T) {
	m := NewModel("empty")
	m.AddBinary("x")
	m.AddConstraint("nothing", Expr{}, GreaterEqual, 1)

	var buf bytes.Buffer
	require.NoError(t, WriteLP(&buf, m))
	out := buf.String()
	assert.Contains(t, out, "OBJ: 0 __dummy\n")
	assert.Contains(t, out, "nothing: 0 __dummy >= 1\n")
	assert.Contains(t, out, " __dummy = 0\n")
}

func TestWriteLPWrapsLongRows(t *testing.T) {
	m := NewModel("wide")
	var e Expr
	for i := 0; i < 100; i++ {
		e.Add(m.AddBinary(fmt.Sprintf("variable_%03d_%s", i, strings.Repeat("x", 20))), 1)
	}
	m.AddConstraint("wide", e, LessEqual, 1)

	var buf bytes.Buffer
	require.NoError(t, WriteLP(&buf, m))
	for _, line := range strings.Split(buf.String(), "\n") {
		assert.LessOrEqual(t, len(line), maxLineSize)
	}
}

func TestWriteMPS(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMPS(&buf, sampleModel()))
	out := buf.String()

	assert.Contains(t, out, "ROWS\n N OBJ\n E assign\n G link\n L cap\n")
	assert.Contains(t, out, "    MARKER 'MARKER' 'INTORG'\n    X_0_0 OBJ 1\n    X_0_0 assign 1\n    X_0_0 link -3\n")
	assert.Contains(t, out, "    count link 1\n    MARKER 'MARKER' 'INTEND'\n    amax OBJ -1\n    amax cap 1\n")
	assert.Contains(t, out, "RHS\n    RHS assign 1\n    RHS cap 10\nBOUNDS\n")
	assert.Contains(t, out, " BV BND X_0_0\n BV BND X_0_1\n UP BND count 4\n")
	assert.NotContains(t, out, "UP BND amax")
	assert.True(t, strings.HasSuffix(out, "ENDATA\n"))
}
