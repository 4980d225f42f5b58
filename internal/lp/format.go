package lp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	dummyVar    = "__dummy"
	objRow      = "OBJ"
	maxLineSize = 200
)

func formatNumber(x float64) string {
	return strconv.FormatFloat(x, 'g', 12, 64)
}

// needsDummy reports whether an empty expression must be written. Both formats
// reject rows without variables, so these carry a variable fixed to zero.
func (m *Model) needsDummy() bool {
	if len(m.objective.Terms) == 0 {
		return true
	}
	for _, c := range m.constraints {
		if len(c.Expr.Terms) == 0 {
			return true
		}
	}
	return false
}

type lineWriter struct {
	w    *bufio.Writer
	line int
}

func (lw *lineWriter) word(s string) {
	if lw.line > 0 && lw.line+len(s)+1 > maxLineSize {
		lw.w.WriteString("\n")
		lw.line = 0
	}
	if lw.line > 0 {
		lw.w.WriteString(" ")
		lw.line++
	}
	lw.w.WriteString(s)
	lw.line += len(s)
}

func (lw *lineWriter) end() {
	lw.w.WriteString("\n")
	lw.line = 0
}

func (m *Model) writeExpr(lw *lineWriter, e Expr) {
	if len(e.Terms) == 0 {
		lw.word("0 " + dummyVar)
		return
	}
	for i, t := range e.Terms {
		name := m.vars[t.Var].Name
		c := t.Coef
		sign := "+"
		if c < 0 {
			sign = "-"
			c = -c
		}
		var s string
		if c == 1 {
			s = name
		} else {
			s = formatNumber(c) + " " + name
		}
		if i == 0 {
			if sign == "-" {
				s = "- " + s
			}
		} else {
			s = sign + " " + s
		}
		lw.word(s)
	}
}

// WriteLP writes the model in CPLEX LP format.
func WriteLP(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)
	lw := &lineWriter{w: bw}

	fmt.Fprintf(bw, "\\* %s *\\\n", m.Name)
	bw.WriteString("Minimize\n")
	lw.word(objRow + ":")
	m.writeExpr(lw, m.objective)
	lw.end()

	bw.WriteString("Subject To\n")
	for _, c := range m.constraints {
		lw.word(c.Name + ":")
		m.writeExpr(lw, c.Expr)
		lw.word(c.Sense.String())
		lw.word(formatNumber(c.RHS))
		lw.end()
	}

	var generals, binaries []string
	bw.WriteString("Bounds\n")
	for _, v := range m.vars {
		switch v.Kind {
		case Binary:
			binaries = append(binaries, v.Name)
			continue
		case Integer:
			generals = append(generals, v.Name)
		}
		lo, up := v.Lower, v.Upper
		switch {
		case math.IsInf(lo, -1) && math.IsInf(up, 1):
			fmt.Fprintf(bw, " %s free\n", v.Name)
		case lo == up:
			fmt.Fprintf(bw, " %s = %s\n", v.Name, formatNumber(lo))
		case math.IsInf(up, 1):
			if lo != 0 {
				fmt.Fprintf(bw, " %s >= %s\n", v.Name, boundNumber(lo))
			}
		default:
			fmt.Fprintf(bw, " %s <= %s <= %s\n", boundNumber(lo), v.Name, formatNumber(up))
		}
	}
	if m.needsDummy() {
		fmt.Fprintf(bw, " %s = 0\n", dummyVar)
	}

	if len(generals) > 0 {
		bw.WriteString("Generals\n")
		for _, n := range generals {
			lw.word(n)
		}
		lw.end()
	}
	if len(binaries) > 0 {
		bw.WriteString("Binaries\n")
		for _, n := range binaries {
			lw.word(n)
		}
		lw.end()
	}
	bw.WriteString("End\n")
	return bw.Flush()
}

func boundNumber(x float64) string {
	if math.IsInf(x, -1) {
		return "-inf"
	}
	return formatNumber(x)
}

type entry struct {
	row  string
	coef float64
}

// WriteMPS writes the model in free MPS format. Integer columns are wrapped in
// MARKER blocks and binaries carry BV bounds.
func WriteMPS(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)

	columns := make([][]entry, len(m.vars))
	for _, t := range m.objective.Terms {
		columns[t.Var] = append(columns[t.Var], entry{objRow, t.Coef})
	}
	for _, c := range m.constraints {
		for _, t := range c.Expr.Terms {
			columns[t.Var] = append(columns[t.Var], entry{c.Name, t.Coef})
		}
	}

	bw.WriteString("*SENSE:Minimize\n")
	fmt.Fprintf(bw, "NAME %s\n", strings.ReplaceAll(m.Name, " ", "_"))
	bw.WriteString("ROWS\n")
	fmt.Fprintf(bw, " N %s\n", objRow)
	for _, c := range m.constraints {
		var t string
		switch c.Sense {
		case LessEqual:
			t = "L"
		case GreaterEqual:
			t = "G"
		default:
			t = "E"
		}
		fmt.Fprintf(bw, " %s %s\n", t, c.Name)
	}

	bw.WriteString("COLUMNS\n")
	inInt := false
	for i, v := range m.vars {
		integral := v.Kind != Continuous
		if integral && !inInt {
			bw.WriteString("    MARKER 'MARKER' 'INTORG'\n")
			inInt = true
		} else if !integral && inInt {
			bw.WriteString("    MARKER 'MARKER' 'INTEND'\n")
			inInt = false
		}
		if len(columns[i]) == 0 {
			fmt.Fprintf(bw, "    %s %s 0\n", v.Name, objRow)
			continue
		}
		for _, e := range columns[i] {
			fmt.Fprintf(bw, "    %s %s %s\n", v.Name, e.row, formatNumber(e.coef))
		}
	}
	if inInt {
		bw.WriteString("    MARKER 'MARKER' 'INTEND'\n")
	}
	if m.needsDummy() {
		fmt.Fprintf(bw, "    %s %s 0\n", dummyVar, objRow)
	}

	bw.WriteString("RHS\n")
	for _, c := range m.constraints {
		if c.RHS != 0 {
			fmt.Fprintf(bw, "    RHS %s %s\n", c.Name, formatNumber(c.RHS))
		}
	}

	bw.WriteString("BOUNDS\n")
	for _, v := range m.vars {
		if v.Kind == Binary {
			fmt.Fprintf(bw, " BV BND %s\n", v.Name)
			continue
		}
		lo, up := v.Lower, v.Upper
		switch {
		case math.IsInf(lo, -1) && math.IsInf(up, 1):
			fmt.Fprintf(bw, " FR BND %s\n", v.Name)
			continue
		case lo == up:
			fmt.Fprintf(bw, " FX BND %s %s\n", v.Name, formatNumber(lo))
			continue
		case math.IsInf(lo, -1):
			fmt.Fprintf(bw, " MI BND %s\n", v.Name)
		case lo != 0:
			fmt.Fprintf(bw, " LO BND %s %s\n", v.Name, formatNumber(lo))
		}
		if math.IsInf(up, 1) {
			if v.Kind == Integer {
				fmt.Fprintf(bw, " PL BND %s\n", v.Name)
			}
		} else {
			fmt.Fprintf(bw, " UP BND %s %s\n", v.Name, formatNumber(up))
		}
	}
	if m.needsDummy() {
		fmt.Fprintf(bw, " FX BND %s 0\n", dummyVar)
	}
	bw.WriteString("ENDATA\n")
	return bw.Flush()
}
