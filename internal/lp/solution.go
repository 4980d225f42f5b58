package lp

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Status is the solve status reported by a solution file.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusStopped:
		return "stopped"
	}
	return "unknown"
}

var (
	ErrMalformedSolution = errors.New("malformed solution file")
	ErrUnknownVariable   = errors.New("solution names a variable the model does not declare")
)

// SolutionFile is the parsed content of a solver solution file.
type SolutionFile struct {
	Format       string
	Status       Status
	StatusText   string
	Objective    float64
	HasObjective bool
	Values       map[string]float64
}

// ReadSolution parses a CBC, SCIP or Gurobi style solution file. Variables the
// file omits are zero.
func ReadSolution(r io.Reader) (*SolutionFile, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	f := &SolutionFile{Values: make(map[string]float64)}
	lineNo := 0
	first := true
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			switch {
			case strings.HasPrefix(line, "#"):
				f.Format = "gurobi"
			case strings.HasPrefix(strings.ToLower(line), "solution status:"):
				f.Format = "scip"
			default:
				f.Format = "cbc"
				f.parseCBCHeader(line)
				continue
			}
		}
		var err error
		switch f.Format {
		case "gurobi":
			err = f.parseGurobiLine(line)
		case "scip":
			err = f.parseSCIPLine(line)
		default:
			err = f.parseCBCLine(line)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading solution")
	}
	if first {
		return nil, errors.Wrap(ErrMalformedSolution, "empty file")
	}
	if f.Format == "gurobi" && f.Status == StatusUnknown && len(f.Values) > 0 {
		// gurobi only writes .sol files for solutions it found
		f.Status = StatusOptimal
	}
	return f, nil
}

func (f *SolutionFile) parseCBCHeader(line string) {
	f.StatusText = line
	lower := strings.ToLower(line)
	switch {
	case strings.HasPrefix(lower, "optimal"):
		f.Status = StatusOptimal
	case strings.Contains(lower, "infeasible"):
		f.Status = StatusInfeasible
	case strings.HasPrefix(lower, "unbounded"):
		f.Status = StatusUnbounded
	case strings.HasPrefix(lower, "stopped"):
		f.Status = StatusStopped
	}
	if i := strings.Index(lower, "objective value"); i >= 0 {
		fields := strings.Fields(line[i+len("objective value"):])
		if len(fields) > 0 {
			if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
				f.Objective = v
				f.HasObjective = true
			}
		}
	}
}

func (f *SolutionFile) parseCBCLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) > 0 && fields[0] == "**" {
		fields = fields[1:]
	}
	if len(fields) < 3 {
		return errors.Wrapf(ErrMalformedSolution, "expected index, name and value in %q", line)
	}
	if _, err := strconv.Atoi(fields[0]); err != nil {
		return errors.Wrapf(ErrMalformedSolution, "bad column index %q", fields[0])
	}
	return f.setValue(fields[1], fields[2])
}

func (f *SolutionFile) parseGurobiLine(line string) error {
	if strings.HasPrefix(line, "#") {
		lower := strings.ToLower(line)
		if i := strings.Index(lower, "objective value"); i >= 0 {
			rest := strings.TrimSpace(line[i+len("objective value"):])
			rest = strings.TrimSpace(strings.TrimPrefix(rest, "="))
			if v, err := strconv.ParseFloat(rest, 64); err == nil {
				f.Objective = v
				f.HasObjective = true
			}
		}
		return nil
	}
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return errors.Wrapf(ErrMalformedSolution, "expected name and value in %q", line)
	}
	return f.setValue(fields[0], fields[1])
}

func (f *SolutionFile) parseSCIPLine(line string) error {
	lower := strings.ToLower(line)
	switch {
	case strings.HasPrefix(lower, "solution status:"):
		f.StatusText = strings.TrimSpace(line[len("solution status:"):])
		status := strings.ToLower(f.StatusText)
		switch {
		case strings.HasPrefix(status, "optimal"):
			f.Status = StatusOptimal
		case strings.Contains(status, "infeasible"):
			f.Status = StatusInfeasible
		case strings.Contains(status, "unbounded"):
			f.Status = StatusUnbounded
		case strings.Contains(status, "limit"), strings.Contains(status, "interrupt"):
			f.Status = StatusStopped
		}
		return nil
	case strings.HasPrefix(lower, "objective value:"):
		v, err := strconv.ParseFloat(strings.TrimSpace(line[len("objective value:"):]), 64)
		if err != nil {
			return errors.Wrapf(ErrMalformedSolution, "bad objective in %q", line)
		}
		f.Objective = v
		f.HasObjective = true
		return nil
	case strings.HasPrefix(lower, "no solution available"):
		return nil
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return errors.Wrapf(ErrMalformedSolution, "expected name and value in %q", line)
	}
	return f.setValue(fields[0], fields[1])
}

func (f *SolutionFile) setValue(name, raw string) error {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return errors.Wrapf(ErrMalformedSolution, "bad value %q for %s", raw, name)
	}
	f.Values[name] = v
	return nil
}

// Bind maps the file's named values onto m's variables.
func (f *SolutionFile) Bind(m *Model) (Solution, error) {
	sol := NewSolution(m.NumVars())
	for name, v := range f.Values {
		if name == dummyVar {
			continue
		}
		idx, ok := m.Lookup(name)
		if !ok {
			return Solution{}, errors.Wrap(ErrUnknownVariable, name)
		}
		sol.Values[idx] = v
	}
	return sol, nil
}

// WriteSolution writes sol in CBC's solution format. Zero values are omitted,
// as CBC does.
func WriteSolution(w io.Writer, m *Model, status string, sol Solution) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(status + " - objective value " + formatNumber(m.Objective().Eval(sol.Values)) + "\n")
	for i, v := range m.Variables() {
		if sol.Values[i] == 0 {
			continue
		}
		bw.WriteString("      " + strconv.Itoa(i) + " " + v.Name + " " + formatNumber(sol.Values[i]) + " 0\n")
	}
	return bw.Flush()
}
