package hmc

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
	"morphocv/ports"
)

// Priors holds the net-spec prior strings of the MLP weight groups
type Priors struct {
	InputHidden  string
	BiasHidden   string
	HiddenOutput string
	InputOutput  string
	BiasOutput   string
}

// PriorsForARD returns the priors of ARD level 0 (none), 1 (one precision
// per input group) or 2 (per input and hidden unit on input-hidden weights)
func PriorsForARD(level int) (Priors, error) {
	p := Priors{
		InputHidden:  "x0.2:0.5",
		BiasHidden:   "0.1:0.5",
		HiddenOutput: "x0.05:0.5",
		InputOutput:  "x0.2:0.5",
		BiasOutput:   "1",
	}
	switch level {
	case 0:
	case 1:
		p.InputHidden = "x0.2:0.5:1"
		p.InputOutput = "x0.2:0.5:1"
	case 2:
		p.InputHidden = "x0.2:0.5:1:5"
		p.InputOutput = "x0.2:0.5:1"
	default:
		return Priors{}, errors.ConfigInvalidf("ARD level %d is not one of 0, 1, 2", level)
	}
	return p, nil
}

// BurnIn is the number of leading samples discarded: a quarter of the run
func BurnIn(iterations int) int { return iterations / 4 }

// Model describes one network simulation
type Model struct {
	Inputs     int
	Hidden     int
	ClassCount int
	Priors     Priors
	Iterations int
	Seed       uint64
}

// FoldFiles names the files of one fold inside the iteration directory
type FoldFiles struct {
	Data   string
	Log    string
	Script string
	Preds  string
	ARD    string
}

// NewFoldFiles derives the per-fold file names from the iteration base name
func NewFoldFiles(base, data string, fold int) FoldFiles {
	return FoldFiles{
		Data:   data,
		Log:    fmt.Sprintf("%s_net_%d.log", base, fold),
		Script: fmt.Sprintf("%s_%d_runmc.sh", base, fold),
		Preds:  fmt.Sprintf("%s_%d%s", base, fold, DefaultPredSuffix),
		ARD:    fmt.Sprintf("%s_%d%s", base, fold, DefaultARDSuffix),
	}
}

// Toolchain resolves sampler program names against an optional bin directory
type Toolchain struct {
	BinDir string
}

// Program returns the path of a sampler program
func (t Toolchain) Program(name string) string {
	if t.BinDir == "" {
		return name
	}
	return filepath.Join(t.BinDir, name)
}

// SetupCommands returns the command chain that specifies the network, the
// model, the data split and the warm-up sampling for one fold. Test rows
// are the fold's range; training rows are everything else, or the same
// range when the fold covers the whole table.
func (t Toolchain) SetupCommands(m Model, files FoldFiles, fold cv.Fold, nSamples int) []ports.Command {
	target, outputs := TargetFor(m.ClassCount)
	from, to := fold.OneBasedInclusive()
	test := fmt.Sprintf("%s@%d:%d", files.Data, from, to)
	train := fmt.Sprintf("%s@-%d:%d", files.Data, from, to)
	if fold.Start == 0 && fold.End == nSamples {
		train = test
	}
	p := m.Priors
	cmd := func(name string, args ...string) ports.Command {
		return ports.Command{Path: t.Program(name), Args: append([]string{files.Log}, args...)}
	}
	return []ports.Command{
		cmd("net-spec", itoa(m.Inputs), itoa(m.Hidden), itoa(outputs), "/",
			"ih="+p.InputHidden, "bh="+p.BiasHidden, "ho="+p.HiddenOutput, "io="+p.InputOutput, "bo="+p.BiasOutput),
		cmd("model-spec", string(target)),
		cmd("data-spec", itoa(m.Inputs), "1", itoa(m.ClassCount), "/", train, ".", test, "."),
		cmd("rand-seed", strconv.FormatUint(m.Seed, 10)),
		cmd("net-gen", "0"),
		cmd("mc-spec", "repeat", "50", "sample-noise", "heatbath", "hybrid", "10", "0.1"),
		cmd("net-mc", "1"),
		cmd("mc-spec", "repeat", "50", "sample-sigmas", "heatbath", "hybrid", "10", "0.1"),
		cmd("net-mc", "2"),
		cmd("mc-spec", "repeat", "10", "sample-sigmas", "heatbath", "0.9", "hybrid", "90:5", "0.1", "negate", "/", "leapfrog", "8"),
	}
}

// RunScript renders the shell script that runs the main simulation and
// extracts predictions (after burn-in) and the input ARD hyperparameters
func (t Toolchain) RunScript(m Model, files FoldFiles) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("set -e\n")
	fmt.Fprintf(&b, "%s %s %d\n", t.Program("net-mc"), files.Log, m.Iterations)
	fmt.Fprintf(&b, "%s tn %s %d: > %s\n", t.Program("net-pred"), files.Log, BurnIn(m.Iterations), files.Preds)
	fmt.Fprintf(&b, "%s th1@h4@ %s > %s\n", t.Program("net-tbl"), files.Log, files.ARD)
	return b.String()
}

// FoldSeed derives a reproducible sampler seed per iteration and fold
func FoldSeed(base uint64, iteration, fold int) uint64 {
	return base + uint64(iteration)*1000 + uint64(fold)
}

func itoa(v int) string { return strconv.Itoa(v) }
