package skald

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/skald-lang/skald/internal/logging"
	"github.com/skald-lang/skald/pkg/engine"
	"github.com/skald-lang/skald/pkg/script"
)

// Version is the library release, reported by the CLI.
const Version = "0.3.0"

type config struct {
	hostFunctions   engine.HostFunctionRegistry
	seed            uint32
	stepLimit       int
	compilerVersion string
	logger          *slog.Logger
}

// Option configures an engine created through the facade.
type Option func(*config)

// WithHostFunctions registers game-side functions callable from
// embedded code.
func WithHostFunctions(registry engine.HostFunctionRegistry) Option {
	return func(c *config) {
		c.hostFunctions = registry
	}
}

// WithRandomSeed fixes the deterministic random stream. Zero keeps
// the default seed.
func WithRandomSeed(seed uint32) Option {
	return func(c *config) {
		c.seed = seed
	}
}

// WithStepLimit bounds the silent work between two outputs. Zero
// disables the guard.
func WithStepLimit(limit int) Option {
	return func(c *config) {
		c.stepLimit = limit
	}
}

// WithCompilerVersion overrides the version stamped into snapshots
// and checked on resume.
func WithCompilerVersion(version string) Option {
	return func(c *config) {
		c.compilerVersion = version
	}
}

// WithLogger sets a structured logger for facade operations. The
// engine core itself never logs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func buildConfig(opts []Option) config {
	c := config{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c config) engineOptions(program *script.Program) engine.Options {
	return engine.Options{
		Program:         program,
		HostFunctions:   c.hostFunctions,
		RandomSeed:      c.seed,
		StepLimit:       c.stepLimit,
		CompilerVersion: c.compilerVersion,
	}
}

// LoadBundle reads and decodes a compiled bundle document.
func LoadBundle(path string) (*script.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	program, err := script.DecodeProgram(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bundle %s: %w", path, err)
	}
	return program, nil
}

// New creates an engine for an in-memory program.
func New(program *script.Program, opts ...Option) (*engine.Engine, error) {
	c := buildConfig(opts)
	eng, err := engine.New(c.engineOptions(program))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("engine created", "entry", program.EntryScript, "scripts", len(program.Scripts))
	return eng, nil
}

// Open loads a bundle from disk and creates an engine for it.
func Open(bundlePath string, opts ...Option) (*engine.Engine, error) {
	program, err := LoadBundle(bundlePath)
	if err != nil {
		return nil, err
	}
	return New(program, opts...)
}

// Resume rebuilds an engine from a snapshot taken against the same
// program and compiler version.
func Resume(program *script.Program, snap *engine.Snapshot, opts ...Option) (*engine.Engine, error) {
	c := buildConfig(opts)
	eng, err := engine.Resume(c.engineOptions(program), snap)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("engine resumed", "schema", snap.Schema, "frames", len(snap.Frames))
	return eng, nil
}
