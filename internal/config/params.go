// Package config holds the tunable parameters of a mallob process. CLI
// parsing itself is treated as an external collaborator (it is explicitly
// out of scope); this package only owns the resulting data and defaults.
package config

import (
	"flag"
	"fmt"
	"time"
)

// Params collects the subset of the CLI surface (spec §6) that the core
// balancer/subprocess/clause-exchange components consume directly.
type Params struct {
	NumClients int     // -c
	NumWorkers int     // -w
	NumThreads int      // -t, threads/solvers per process
	LoadFactor float64  // -l
	BalancingPeriod time.Duration // -p

	ClauseBufferBaseSize int // -cbbs

	MaxClauseLength      int // -mcl
	HardMaxClauseLength  int // -hmcl
	SoftMaxClauseLength  int // -smcl

	StrictLbdLimit       int // -slbdl
	HardLbdLimit         int // -hlbdl
	ImportLbdLimit       int // -ilbdl
	FirstSharingLbdLimit int // -fslbdl (first sharing round)
	FirstHardLbdLimit    int // -fhlbdl

	PortfolioCycle string // -satsolver, e.g. "lcg"

	InterfaceFilesystem bool // -interface-fs
	InterfaceIPC        bool // -interface-ipc
	MonoFile            bool // -mono

	LogDirectory string        // -log
	Verbosity    int           // -v, 0-6
	WallclockLimit time.Duration // -T

	// ReshareImprovedLbd toggles C3's improved-LBD resharing policy.
	ReshareImprovedLbd bool
	// EpochHorizon bounds how recently a clause may have been shared
	// before a strictly-better LBD is required to re-admit it.
	EpochHorizon int
	// PerformanceFactor calibrates the deterministic clause synchronizer
	// (open question in spec §9; default nominal unit of 1e6 ops).
	PerformanceFactor float64

	// SolverBinaryPath is the executable the subprocess adapter forks
	// and execs as the solver child (spec §4.2 "Public contract");
	// the CDCL/portfolio engines themselves are an out-of-scope
	// external collaborator, so this is just the path to invoke.
	SolverBinaryPath string
	// TerminationGracePeriod bounds how long an aborting subprocess is
	// given before a hard SIGKILL (spec §4.2 "Failure semantics",
	// default ~1s).
	TerminationGracePeriod time.Duration
}

// Default returns the parameter set used when no flags are supplied,
// matching the nominal values named throughout spec.md.
func Default() Params {
	return Params{
		NumClients:           1,
		NumWorkers:           1,
		NumThreads:           1,
		LoadFactor:           1.0,
		BalancingPeriod:      100 * time.Millisecond,
		ClauseBufferBaseSize: 1500,
		MaxClauseLength:      -1,
		HardMaxClauseLength:  -1,
		SoftMaxClauseLength:  -1,
		StrictLbdLimit:       -1,
		HardLbdLimit:         -1,
		ImportLbdLimit:       -1,
		FirstSharingLbdLimit: -1,
		FirstHardLbdLimit:    -1,
		PortfolioCycle:       "l",
		InterfaceFilesystem:  true,
		InterfaceIPC:         false,
		MonoFile:             false,
		LogDirectory:         "",
		Verbosity:            2,
		WallclockLimit:       0,
		ReshareImprovedLbd:   true,
		EpochHorizon:         5,
		PerformanceFactor:    1.0,
		SolverBinaryPath:     "mallob_sat_process",
		TerminationGracePeriod: time.Second,
	}
}

// Parse fills a Params from the command line arguments using the
// "-<key>=<value>" flag surface named in spec §6.
func Parse(args []string) (Params, error) {
	p := Default()
	fs := flag.NewFlagSet("mallob", flag.ContinueOnError)
	fs.IntVar(&p.NumClients, "c", p.NumClients, "number of client processes")
	fs.IntVar(&p.NumWorkers, "w", p.NumWorkers, "number of worker processes")
	fs.IntVar(&p.NumThreads, "t", p.NumThreads, "threads/solvers per process")
	fs.Float64Var(&p.LoadFactor, "l", p.LoadFactor, "cluster load factor")
	fs.DurationVar(&p.BalancingPeriod, "p", p.BalancingPeriod, "minimum interval between balancing rounds")
	fs.IntVar(&p.ClauseBufferBaseSize, "cbbs", p.ClauseBufferBaseSize, "clause buffer base size")
	fs.IntVar(&p.MaxClauseLength, "mcl", p.MaxClauseLength, "max clause length")
	fs.IntVar(&p.HardMaxClauseLength, "hmcl", p.HardMaxClauseLength, "hard max clause length")
	fs.IntVar(&p.SoftMaxClauseLength, "smcl", p.SoftMaxClauseLength, "soft max clause length")
	fs.IntVar(&p.StrictLbdLimit, "slbdl", p.StrictLbdLimit, "strict LBD limit")
	fs.IntVar(&p.HardLbdLimit, "hlbdl", p.HardLbdLimit, "hard LBD limit")
	fs.IntVar(&p.ImportLbdLimit, "ilbdl", p.ImportLbdLimit, "import LBD limit")
	fs.IntVar(&p.FirstSharingLbdLimit, "fslbdl", p.FirstSharingLbdLimit, "first-sharing LBD limit")
	fs.IntVar(&p.FirstHardLbdLimit, "fhlbdl", p.FirstHardLbdLimit, "first hard LBD limit")
	fs.StringVar(&p.PortfolioCycle, "satsolver", p.PortfolioCycle, "portfolio choice string, e.g. lcg")
	fs.BoolVar(&p.InterfaceFilesystem, "interface-fs", p.InterfaceFilesystem, "enable filesystem job interface")
	fs.BoolVar(&p.InterfaceIPC, "interface-ipc", p.InterfaceIPC, "enable IPC job interface")
	fs.BoolVar(&p.MonoFile, "mono", p.MonoFile, "single-file mode")
	fs.StringVar(&p.LogDirectory, "log", p.LogDirectory, "log directory")
	fs.IntVar(&p.Verbosity, "v", p.Verbosity, "verbosity 0-6")
	fs.DurationVar(&p.WallclockLimit, "T", p.WallclockLimit, "wall-time limit")
	fs.StringVar(&p.SolverBinaryPath, "solver-binary", p.SolverBinaryPath, "path to the solver subprocess executable")
	fs.DurationVar(&p.TerminationGracePeriod, "solver-term-grace", p.TerminationGracePeriod, "grace period before force-killing an aborting subprocess")
	if err := fs.Parse(args); err != nil {
		return Params{}, err
	}
	if p.Verbosity < 0 || p.Verbosity > 6 {
		return Params{}, fmt.Errorf("config: verbosity %d out of range [0,6]", p.Verbosity)
	}
	return p, nil
}
