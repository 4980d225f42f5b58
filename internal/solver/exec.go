package solver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rhyrak/go-allocate/internal/lp"
)

const (
	BackendCBC  = "cbc"
	BackendSCIP = "scip"
)

// Exec solves models with an external solver binary. The model is written in
// LP format to a scratch directory and the solution file is read back.
type Exec struct {
	name      string
	Binary    string
	TimeLimit time.Duration
	args      func(model, solution string, limit time.Duration) []string
}

// NewCBC returns a backend running the COIN-OR CBC binary.
func NewCBC(binary string, limit time.Duration) *Exec {
	if binary == "" {
		binary = "cbc"
	}
	return &Exec{name: BackendCBC, Binary: binary, TimeLimit: limit, args: cbcArgs}
}

// NewSCIP returns a backend running the SCIP binary.
func NewSCIP(binary string, limit time.Duration) *Exec {
	if binary == "" {
		binary = "scip"
	}
	return &Exec{name: BackendSCIP, Binary: binary, TimeLimit: limit, args: scipArgs}
}

func cbcArgs(model, solution string, limit time.Duration) []string {
	args := []string{model}
	if limit > 0 {
		args = append(args, "sec", strconv.Itoa(int(limit.Seconds())))
	}
	return append(args, "solve", "solu", solution)
}

func scipArgs(model, solution string, limit time.Duration) []string {
	cmd := "read " + model
	if limit > 0 {
		cmd += fmt.Sprintf(" set limits time %d", int(limit.Seconds()))
	}
	cmd += " optimize write solution " + solution + " quit"
	return []string{"-c", cmd}
}

func (x *Exec) Name() string { return x.name }

func (x *Exec) Solve(ctx context.Context, m *lp.Model) (*Result, error) {
	dir, err := os.MkdirTemp("", "allocate-"+x.name+"-")
	if err != nil {
		return nil, errors.Wrapf(ErrBackend, "creating scratch dir: %v", err)
	}
	defer os.RemoveAll(dir)

	modelPath := filepath.Join(dir, "model.lp")
	solPath := filepath.Join(dir, "model.sol")
	f, err := os.Create(modelPath)
	if err != nil {
		return nil, errors.Wrapf(ErrBackend, "creating model file: %v", err)
	}
	if err := lp.WriteLP(f, m); err != nil {
		f.Close()
		return nil, errors.Wrapf(ErrBackend, "writing model file: %v", err)
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrapf(ErrBackend, "writing model file: %v", err)
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, x.Binary, x.args(modelPath, solPath, x.TimeLimit)...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	start := time.Now()
	runErr := cmd.Run()
	log.WithFields(log.Fields{
		"backend": x.name,
		"elapsed": time.Since(start),
	}).Debug("External solver finished")

	if ctx.Err() != nil {
		return &Result{Status: lp.StatusStopped, Message: ctx.Err().Error()}, nil
	}
	if runErr != nil {
		return nil, errors.Wrapf(ErrBackend, "%s: %v: %s", x.Binary, runErr, lastLine(out.Bytes()))
	}

	sf, err := os.Open(solPath)
	if err != nil {
		return nil, errors.Wrapf(ErrBackend, "%s wrote no solution: %s", x.Binary, lastLine(out.Bytes()))
	}
	defer sf.Close()
	return Import(sf, m), nil
}

func lastLine(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
